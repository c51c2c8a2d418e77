package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/device"
	"github.com/oshokin/silent-alarm/internal/logger"
)

// FileRepository reads and writes the device identifier record.
type FileRepository struct {
	// path is the filesystem location of the identifier record.
	path string
	// prefix is the fixed identifier prefix expected in the record.
	prefix string
}

// ErrNotFound is returned when the identifier record does not exist yet.
var ErrNotFound = errors.New("identifier record not found")

// NewFileRepository creates a repository for the record at path with the given prefix.
func NewFileRepository(path, prefix string) *FileRepository {
	return &FileRepository{
		path:   filepath.Clean(path),
		prefix: prefix,
	}
}

// Load returns the stored identifier. A malformed record yields device.ErrInvalidID.
func (r *FileRepository) Load(_ context.Context) (string, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read identifier record: %w", err)
	}

	id := strings.TrimSpace(string(contents))
	if err = device.ValidateID(id, r.prefix); err != nil {
		return "", err
	}

	return id, nil
}

// Save writes the identifier record.
func (r *FileRepository) Save(_ context.Context, id string) error {
	if err := device.ValidateID(id, r.prefix); err != nil {
		return err
	}

	if err := os.WriteFile(r.path, []byte(id+"\n"), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write identifier record: %w", err)
	}

	return nil
}

// Provision returns the stored identifier, regenerating it when the record is absent or malformed.
// Any other failure is returned because the device cannot run without a stable identity.
func (r *FileRepository) Provision(ctx context.Context) (string, error) {
	id, err := r.Load(ctx)

	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, ErrNotFound):
		logger.InfoKV(ctx, "No device identifier yet, generating one", "path", r.path)
	case errors.Is(err, device.ErrInvalidID):
		logger.WarnKV(ctx, "Malformed device identifier, regenerating", "path", r.path, "error", err)
	default:
		return "", err
	}

	id, err = device.GenerateID(r.prefix)
	if err != nil {
		return "", err
	}

	if err = r.Save(ctx, id); err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Device identifier provisioned", "device_id", id)

	return id, nil
}
