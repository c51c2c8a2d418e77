//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/rpc/storev1"
	"github.com/oshokin/silent-alarm/internal/store"
)

// Client wraps the gRPC StoreService client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the store server.
	conn *grpc.ClientConn
	// api is the StoreService client interface.
	api storev1.StoreServiceClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errActorRequired is returned when an actor is not provided but is required for the operation.
	errActorRequired = errors.New("actor must be provided")
)

var _ store.Store = (*Client)(nil)

// Dial establishes a gRPC connection to the store server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial store server: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         storev1.NewStoreServiceClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Alarms retrieves the alarms of one device.
func (c *Client) Alarms(ctx context.Context, deviceID string) (alarm.List, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetAlarms(callCtx, &storev1.GetAlarmsRequest{DeviceID: deviceID})
	if err != nil {
		return nil, wrapCallError("get alarms", err)
	}

	return resp.Alarms, nil
}

// SetAlarms replaces the alarms of one device.
func (c *Client) SetAlarms(ctx context.Context, deviceID string, alarms alarm.List) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	request := &storev1.SetAlarmsRequest{
		DeviceID: deviceID,
		Alarms:   alarms,
	}

	if _, err := c.api.SetAlarms(callCtx, request); err != nil {
		return wrapCallError("set alarms", err)
	}

	return nil
}

// AllAlarms retrieves every device that has alarms.
func (c *Client) AllAlarms(ctx context.Context) (map[string]alarm.List, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.ListAlarms(callCtx, new(storev1.ListAlarmsRequest))
	if err != nil {
		return nil, wrapCallError("list alarms", err)
	}

	if resp.Devices == nil {
		return make(map[string]alarm.List), nil
	}

	return resp.Devices, nil
}

// Trigger retrieves the trigger of one device.
func (c *Client) Trigger(ctx context.Context, deviceID string) (bool, error) {
	state, err := c.TriggerState(ctx, deviceID)
	if err != nil {
		return false, err
	}

	return state.Value, nil
}

// TriggerState retrieves the trigger of one device with its write metadata.
func (c *Client) TriggerState(ctx context.Context, deviceID string) (*alarm.TriggerState, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetTrigger(callCtx, &storev1.GetTriggerRequest{DeviceID: deviceID})
	if err != nil {
		return nil, wrapCallError("get trigger", err)
	}

	return &alarm.TriggerState{
		UpdatedAt: resp.UpdatedAt,
		LastActor: resp.LastActor.ToDomain(),
		Value:     resp.Value,
	}, nil
}

// SetTrigger writes the trigger of one device on behalf of actor.
func (c *Client) SetTrigger(ctx context.Context, deviceID string, value bool, actor *alarm.Actor) error {
	if actor == nil {
		return errActorRequired
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	request := &storev1.SetTriggerRequest{
		DeviceID: deviceID,
		Value:    value,
		Actor:    storev1.FromDomainActor(actor),
	}

	if _, err := c.api.SetTrigger(callCtx, request); err != nil {
		return wrapCallError("set trigger", err)
	}

	return nil
}

// Triggers retrieves every stored trigger value.
func (c *Client) Triggers(ctx context.Context) (map[string]bool, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.ListTriggers(callCtx, new(storev1.ListTriggersRequest))
	if err != nil {
		return nil, wrapCallError("list triggers", err)
	}

	if resp.Triggers == nil {
		return make(map[string]bool), nil
	}

	return resp.Triggers, nil
}

// WatchTrigger opens a server stream for the trigger of one device. The stream
// has no call timeout; it lives until ctx is canceled, Close is called or the
// server ends it.
func (c *Client) WatchTrigger(ctx context.Context, deviceID string) (store.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := c.api.WatchTrigger(streamCtx, &storev1.WatchTriggerRequest{DeviceID: deviceID})
	if err != nil {
		cancel()

		return nil, wrapCallError("watch trigger", err)
	}

	recv := func() (bool, error) {
		event, recvErr := stream.Recv()
		if recvErr != nil {
			return false, wrapCallError("receive trigger", recvErr)
		}

		return event.Value, nil
	}

	return newRemoteSubscription(cancel, recv), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// wrapCallError maps transport errors to store sentinels where one applies.
func wrapCallError(operation string, err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", operation, store.ErrTimeout)
	case codes.InvalidArgument:
		message := status.Convert(err).Message()
		if strings.Contains(message, store.ErrInvalidDeviceID.Error()) {
			return fmt.Errorf("%s: %w", operation, store.ErrInvalidDeviceID)
		}

		return fmt.Errorf("%s: %w: %s", operation, alarm.ErrInvalidAlarm, message)
	case codes.Unavailable:
		if status.Convert(err).Message() == store.ErrClosed.Error() {
			return fmt.Errorf("%s: %w", operation, store.ErrClosed)
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}
