//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/oshokin/silent-alarm/internal/api/rest"
	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/rpc/storev1"
	"github.com/oshokin/silent-alarm/internal/store"
)

var (
	// errUnexpectedStatus is returned when the REST API answers with an unmapped error status.
	errUnexpectedStatus = errors.New("unexpected response status")
	// errUnexpectedEnvelope is returned when a watch socket delivers an unknown message.
	errUnexpectedEnvelope = errors.New("unexpected watch envelope")
)

// HTTPClient talks to the store over its REST and WebSocket API.
type HTTPClient struct {
	// http is the REST client bound to the store base URL.
	http *resty.Client
	// baseURL is the http:// root of the store API.
	baseURL *url.URL
	// dialer opens trigger watch sockets.
	dialer *websocket.Dialer
}

// errorBody mirrors the JSON error body of the REST API.
type errorBody struct {
	Error string `json:"error"`
}

var _ store.Store = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the store listening on address (host:port or URL).
func NewHTTPClient(address string, opts ...Option) (*HTTPClient, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	if !strings.Contains(address, "://") {
		address = "http://" + address
	}

	baseURL, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse store address: %w", err)
	}

	// Reuse the gRPC client options to resolve the timeout the same way.
	settings := &Client{callTimeout: config.DefaultTimeout}
	for _, opt := range opts {
		opt(settings)
	}

	r := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL.String(), "/")).
		SetTimeout(settings.callTimeout).
		SetHeader("Accept", "application/json")

	return &HTTPClient{
		http:    r,
		baseURL: baseURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: settings.callTimeout,
		},
	}, nil
}

// Close is a no-op kept for symmetry with Client.
func (c *HTTPClient) Close() error {
	return nil
}

// Alarms retrieves the alarms of one device.
func (c *HTTPClient) Alarms(ctx context.Context, deviceID string) (alarm.List, error) {
	var result storev1.AlarmsResponse

	err := c.do("get alarms", c.request(ctx, deviceID).SetResult(&result), http.MethodGet, "/v1/alarms/{device}")
	if err != nil {
		return nil, err
	}

	return result.Alarms, nil
}

// SetAlarms replaces the alarms of one device.
func (c *HTTPClient) SetAlarms(ctx context.Context, deviceID string, alarms alarm.List) error {
	if alarms == nil {
		alarms = alarm.List{}
	}

	request := c.request(ctx, deviceID).
		SetHeader("Content-Type", "application/json").
		SetBody(alarms)

	return c.do("set alarms", request, http.MethodPut, "/v1/alarms/{device}")
}

// AllAlarms retrieves every device that has alarms.
func (c *HTTPClient) AllAlarms(ctx context.Context) (map[string]alarm.List, error) {
	var result storev1.ListAlarmsResponse

	if err := c.do("list alarms", c.request(ctx, "").SetResult(&result), http.MethodGet, "/v1/alarms"); err != nil {
		return nil, err
	}

	if result.Devices == nil {
		return make(map[string]alarm.List), nil
	}

	return result.Devices, nil
}

// Trigger retrieves the trigger of one device.
func (c *HTTPClient) Trigger(ctx context.Context, deviceID string) (bool, error) {
	state, err := c.TriggerState(ctx, deviceID)
	if err != nil {
		return false, err
	}

	return state.Value, nil
}

// TriggerState retrieves the trigger of one device with its write metadata.
func (c *HTTPClient) TriggerState(ctx context.Context, deviceID string) (*alarm.TriggerState, error) {
	var result storev1.TriggerResponse

	request := c.request(ctx, deviceID).SetResult(&result)
	if err := c.do("get trigger", request, http.MethodGet, "/v1/triggers/{device}"); err != nil {
		return nil, err
	}

	return &alarm.TriggerState{
		UpdatedAt: result.UpdatedAt,
		LastActor: result.LastActor.ToDomain(),
		Value:     result.Value,
	}, nil
}

// SetTrigger writes the trigger of one device on behalf of actor.
func (c *HTTPClient) SetTrigger(ctx context.Context, deviceID string, value bool, actor *alarm.Actor) error {
	if actor == nil {
		return errActorRequired
	}

	request := c.request(ctx, deviceID).
		SetHeader("Content-Type", "application/json").
		SetHeader(rest.ActorHostnameHeader, actor.Hostname).
		SetHeader(rest.ActorUsernameHeader, actor.Username).
		SetBody(strconv.FormatBool(value))

	return c.do("set trigger", request, http.MethodPut, "/v1/triggers/{device}")
}

// Triggers retrieves every stored trigger value.
func (c *HTTPClient) Triggers(ctx context.Context) (map[string]bool, error) {
	var result storev1.ListTriggersResponse

	if err := c.do("list triggers", c.request(ctx, "").SetResult(&result), http.MethodGet, "/v1/triggers"); err != nil {
		return nil, err
	}

	if result.Triggers == nil {
		return make(map[string]bool), nil
	}

	return result.Triggers, nil
}

// WatchTrigger opens a WebSocket subscription for the trigger of one device.
func (c *HTTPClient) WatchTrigger(ctx context.Context, deviceID string) (store.Subscription, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, store.ErrInvalidDeviceID
	}

	watchURL := *c.baseURL
	watchURL.Scheme = "ws"

	if c.baseURL.Scheme == "https" {
		watchURL.Scheme = "wss"
	}

	watchURL.Path = strings.TrimSuffix(watchURL.Path, "/") + "/v1/triggers/" + url.PathEscape(deviceID) + "/watch"

	conn, resp, err := c.dialer.DialContext(ctx, watchURL.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, mapTransportError("watch trigger", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(watchCtx, func() {
		_ = conn.Close()
	})

	recv := func() (bool, error) {
		var envelope rest.Envelope
		if readErr := conn.ReadJSON(&envelope); readErr != nil {
			if watchCtx.Err() != nil {
				return false, watchCtx.Err()
			}

			return false, fmt.Errorf("receive trigger: %w", readErr)
		}

		switch {
		case envelope.Type == rest.EnvelopeError:
			return false, fmt.Errorf("receive trigger: %w: %s", store.ErrClosed, envelope.Error)
		case envelope.Type != rest.EnvelopeTrigger || envelope.Data == nil:
			return false, fmt.Errorf("receive trigger: %w %q", errUnexpectedEnvelope, envelope.Type)
		}

		return *envelope.Data, nil
	}

	closeAll := func() {
		cancel()
		stop()

		_ = conn.Close()
	}

	return newRemoteSubscription(closeAll, recv), nil
}

// request prepares a request bound to ctx with the device path parameter.
func (c *HTTPClient) request(ctx context.Context, deviceID string) *resty.Request {
	request := c.http.R().
		SetContext(ctx).
		SetError(new(errorBody))

	if deviceID != "" {
		request.SetPathParam("device", deviceID)
	}

	return request
}

// do executes the request and maps transport and status errors to store sentinels.
func (c *HTTPClient) do(operation string, request *resty.Request, method, path string) error {
	if strings.Contains(path, "{device}") && strings.TrimSpace(request.PathParams["device"]) == "" {
		return store.ErrInvalidDeviceID
	}

	resp, err := request.Execute(method, path)
	if err != nil {
		return mapTransportError(operation, err)
	}

	if !resp.IsError() {
		return nil
	}

	message := resp.Status()
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		message = body.Error
	}

	switch resp.StatusCode() {
	case http.StatusBadRequest:
		if strings.Contains(message, store.ErrInvalidDeviceID.Error()) {
			return fmt.Errorf("%s: %w", operation, store.ErrInvalidDeviceID)
		}

		return fmt.Errorf("%s: %w: %s", operation, alarm.ErrInvalidAlarm, message)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%s: %w", operation, store.ErrClosed)
	default:
		return fmt.Errorf("%s: %w %d: %s", operation, errUnexpectedStatus, resp.StatusCode(), message)
	}
}

// mapTransportError turns timeouts into store.ErrTimeout.
func mapTransportError(operation string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w", operation, store.ErrTimeout)
	}

	return fmt.Errorf("%s: %w", operation, err)
}
