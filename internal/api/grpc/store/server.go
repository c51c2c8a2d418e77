package store

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/rpc/storev1"
	storage "github.com/oshokin/silent-alarm/internal/store"
)

// Service abstracts the store operations the transport layer depends on.
type Service interface {
	storage.AlarmStore
	storage.TriggerStore
	storage.TriggerWatcher

	TriggerState(ctx context.Context, deviceID string) (*alarm.TriggerState, error)
}

// Server implements the StoreService gRPC API.
type Server struct {
	storev1.UnimplementedStoreServiceServer

	// service provides the store operations.
	service Service
}

// NewServer wires the provided store into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// GetAlarms returns the alarms of one device.
func (s *Server) GetAlarms(ctx context.Context, req *storev1.GetAlarmsRequest) (*storev1.AlarmsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	alarms, err := s.service.Alarms(ctx, req.DeviceID)
	if err != nil {
		return nil, toStatus(err)
	}

	return &storev1.AlarmsResponse{
		DeviceID: req.DeviceID,
		Alarms:   nonNil(alarms),
	}, nil
}

// SetAlarms replaces the alarms of one device.
func (s *Server) SetAlarms(ctx context.Context, req *storev1.SetAlarmsRequest) (*storev1.SetAlarmsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	if err := s.service.SetAlarms(ctx, req.DeviceID, req.Alarms); err != nil {
		return nil, toStatus(err)
	}

	return new(storev1.SetAlarmsResponse), nil
}

// ListAlarms returns every device that has alarms.
func (s *Server) ListAlarms(ctx context.Context, _ *storev1.ListAlarmsRequest) (*storev1.ListAlarmsResponse, error) {
	devices, err := s.service.AllAlarms(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return &storev1.ListAlarmsResponse{Devices: devices}, nil
}

// GetTrigger returns the trigger of one device with its write metadata.
func (s *Server) GetTrigger(ctx context.Context, req *storev1.GetTriggerRequest) (*storev1.TriggerResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	state, err := s.service.TriggerState(ctx, req.DeviceID)
	if err != nil {
		return nil, toStatus(err)
	}

	return &storev1.TriggerResponse{
		DeviceID:  req.DeviceID,
		Value:     state.Value,
		UpdatedAt: state.UpdatedAt,
		LastActor: storev1.FromDomainActor(state.LastActor),
	}, nil
}

// SetTrigger writes the trigger of one device.
func (s *Server) SetTrigger(ctx context.Context, req *storev1.SetTriggerRequest) (*storev1.SetTriggerResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	if err := s.service.SetTrigger(ctx, req.DeviceID, req.Value, req.Actor.ToDomain()); err != nil {
		return nil, toStatus(err)
	}

	return new(storev1.SetTriggerResponse), nil
}

// ListTriggers returns every stored trigger value.
func (s *Server) ListTriggers(
	ctx context.Context,
	_ *storev1.ListTriggersRequest,
) (*storev1.ListTriggersResponse, error) {
	triggers, err := s.service.Triggers(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return &storev1.ListTriggersResponse{Triggers: triggers}, nil
}

// WatchTrigger streams the trigger of one device until the client leaves or the store closes.
func (s *Server) WatchTrigger(
	req *storev1.WatchTriggerRequest,
	stream grpc.ServerStreamingServer[storev1.TriggerEvent],
) error {
	ctx := logger.WithKV(stream.Context(), "device_id", req.DeviceID)

	sub, err := s.service.WatchTrigger(ctx, req.DeviceID)
	if err != nil {
		return toStatus(err)
	}

	defer func() {
		_ = sub.Close()
	}()

	logger.Debug(ctx, "Trigger watch stream opened")

	for value := range sub.Updates() {
		event := &storev1.TriggerEvent{
			DeviceID: req.DeviceID,
			Value:    value,
		}

		if err = stream.Send(event); err != nil {
			return err
		}
	}

	logger.Debug(ctx, "Trigger watch stream closed")

	if err = sub.Err(); err != nil {
		return toStatus(err)
	}

	return nil
}

// toStatus maps store errors to gRPC status errors.
func toStatus(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidDeviceID), errors.Is(err, alarm.ErrInvalidAlarm):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, "unable to access store")
	}
}

// nonNil keeps empty lists as [] on the wire.
func nonNil(list alarm.List) alarm.List {
	if list == nil {
		return alarm.List{}
	}

	return list
}
