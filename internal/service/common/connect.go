//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/store"
)

// RemoteStore is a store reached over the network.
type RemoteStore interface {
	store.Store

	TriggerState(ctx context.Context, deviceID string) (*alarm.TriggerState, error)
	Close() error
}

// errUnknownTransport is returned for transports other than grpc and http.
var errUnknownTransport = errors.New("unknown transport")

// Connect opens a store client over the requested transport.
func Connect(
	ctx context.Context,
	transport, grpcAddress, httpAddress string,
	timeout time.Duration,
) (RemoteStore, error) {
	switch transport {
	case config.TransportGRPC, "":
		client, err := Dial(ctx, grpcAddress, WithCallTimeout(timeout))
		if err != nil {
			return nil, err
		}

		return client, nil
	case config.TransportHTTP:
		client, err := NewHTTPClient(httpAddress, WithCallTimeout(timeout))
		if err != nil {
			return nil, err
		}

		return client, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownTransport, transport)
	}
}
