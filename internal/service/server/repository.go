package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/repository/snapshot"
)

// errUnknownBackend is returned for store backends the server cannot open.
var errUnknownBackend = errors.New("unknown store backend")

// volatileRepository keeps nothing: the memory backend starts empty on every run.
type volatileRepository struct{}

func (volatileRepository) Load(context.Context) (*snapshot.Snapshot, error) {
	return nil, snapshot.ErrNotFound
}

func (volatileRepository) Save(context.Context, *snapshot.Snapshot) error {
	return nil
}

// openRepository opens the snapshot repository of the configured backend
// together with the function releasing it.
func openRepository(cfg *config.StoreConfig) (snapshot.Repository, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendMemory:
		return volatileRepository{}, noop, nil
	case config.BackendFile, "":
		return snapshot.NewFileRepository(cfg.StateFile), noop, nil
	case config.BackendSQLite, config.BackendPostgres:
		db, err := snapshot.OpenSQL(cfg.Backend, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}

		repo := snapshot.NewSQLRepository(db)

		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownBackend, cfg.Backend)
	}
}
