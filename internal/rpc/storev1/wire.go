package storev1

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
)

// ErrMalformedMessage is returned when a wire message does not have the expected layout.
var ErrMalformedMessage = errors.New("malformed message")

// Field names of the structpb messages.
const (
	deviceIDField  = "device_id"
	alarmsField    = "alarms"
	valueField     = "value"
	updatedAtField = "updated_at"
	lastActorField = "last_actor"
	actorField     = "actor"
	hostnameField  = "hostname"
	usernameField  = "username"
	dateField      = "date"
	timeField      = "time"
)

// wireMessage is implemented by every request, response and event of the
// service. Messages travel as well-known protobuf types, so the default gRPC
// proto codec carries them without generated code.
type wireMessage interface {
	// toWire encodes the message.
	toWire() proto.Message
	// newWire returns an empty protobuf message of the type toWire produces.
	newWire() proto.Message
	// fromWire decodes the message from a value created by newWire.
	fromWire(proto.Message) error
}

// wirePointer constrains a type parameter to a pointer to T implementing wireMessage.
type wirePointer[T any] interface {
	*T
	wireMessage
}

// decode builds a T from a received protobuf message.
func decode[T any, PT wirePointer[T]](m proto.Message) (*T, error) {
	out := PT(new(T))
	if err := out.fromWire(m); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *GetAlarmsRequest) toWire() proto.Message  { return wrapperspb.String(r.DeviceID) }
func (r *GetAlarmsRequest) newWire() proto.Message { return new(wrapperspb.StringValue) }
func (r *GetAlarmsRequest) fromWire(m proto.Message) error {
	return fromDeviceID(m, &r.DeviceID)
}

func (r *GetTriggerRequest) toWire() proto.Message  { return wrapperspb.String(r.DeviceID) }
func (r *GetTriggerRequest) newWire() proto.Message { return new(wrapperspb.StringValue) }
func (r *GetTriggerRequest) fromWire(m proto.Message) error {
	return fromDeviceID(m, &r.DeviceID)
}

func (r *WatchTriggerRequest) toWire() proto.Message  { return wrapperspb.String(r.DeviceID) }
func (r *WatchTriggerRequest) newWire() proto.Message { return new(wrapperspb.StringValue) }
func (r *WatchTriggerRequest) fromWire(m proto.Message) error {
	return fromDeviceID(m, &r.DeviceID)
}

func (*SetAlarmsResponse) toWire() proto.Message        { return new(emptypb.Empty) }
func (*SetAlarmsResponse) newWire() proto.Message       { return new(emptypb.Empty) }
func (*SetAlarmsResponse) fromWire(proto.Message) error { return nil }

func (*SetTriggerResponse) toWire() proto.Message        { return new(emptypb.Empty) }
func (*SetTriggerResponse) newWire() proto.Message       { return new(emptypb.Empty) }
func (*SetTriggerResponse) fromWire(proto.Message) error { return nil }

func (*ListAlarmsRequest) toWire() proto.Message        { return new(emptypb.Empty) }
func (*ListAlarmsRequest) newWire() proto.Message       { return new(emptypb.Empty) }
func (*ListAlarmsRequest) fromWire(proto.Message) error { return nil }

func (*ListTriggersRequest) toWire() proto.Message        { return new(emptypb.Empty) }
func (*ListTriggersRequest) newWire() proto.Message       { return new(emptypb.Empty) }
func (*ListTriggersRequest) fromWire(proto.Message) error { return nil }

func (r *AlarmsResponse) toWire() proto.Message {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		deviceIDField: structpb.NewStringValue(r.DeviceID),
		alarmsField:   alarmsValue(r.Alarms),
	}}
}

func (r *AlarmsResponse) newWire() proto.Message { return new(structpb.Struct) }

func (r *AlarmsResponse) fromWire(m proto.Message) error {
	s, err := asStruct(m)
	if err != nil {
		return err
	}

	r.DeviceID = s.GetFields()[deviceIDField].GetStringValue()
	r.Alarms, err = alarmsOf(s.GetFields()[alarmsField])

	return err
}

func (r *SetAlarmsRequest) toWire() proto.Message {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		deviceIDField: structpb.NewStringValue(r.DeviceID),
		alarmsField:   alarmsValue(r.Alarms),
	}}
}

func (r *SetAlarmsRequest) newWire() proto.Message { return new(structpb.Struct) }

func (r *SetAlarmsRequest) fromWire(m proto.Message) error {
	s, err := asStruct(m)
	if err != nil {
		return err
	}

	r.DeviceID = s.GetFields()[deviceIDField].GetStringValue()
	r.Alarms, err = alarmsOf(s.GetFields()[alarmsField])

	return err
}

func (r *ListAlarmsResponse) toWire() proto.Message {
	fields := make(map[string]*structpb.Value, len(r.Devices))
	for id, list := range r.Devices {
		fields[id] = alarmsValue(list)
	}

	return &structpb.Struct{Fields: fields}
}

func (r *ListAlarmsResponse) newWire() proto.Message { return new(structpb.Struct) }

func (r *ListAlarmsResponse) fromWire(m proto.Message) error {
	s, err := asStruct(m)
	if err != nil {
		return err
	}

	r.Devices = make(map[string]alarm.List, len(s.GetFields()))

	for id, value := range s.GetFields() {
		list, listErr := alarmsOf(value)
		if listErr != nil {
			return fmt.Errorf("alarms of %q: %w", id, listErr)
		}

		r.Devices[id] = list
	}

	return nil
}

func (r *TriggerResponse) toWire() proto.Message {
	fields := map[string]*structpb.Value{
		deviceIDField: structpb.NewStringValue(r.DeviceID),
		valueField:    structpb.NewBoolValue(r.Value),
	}

	if !r.UpdatedAt.IsZero() {
		fields[updatedAtField] = structpb.NewStringValue(r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}

	if r.LastActor != nil {
		fields[lastActorField] = r.LastActor.value()
	}

	return &structpb.Struct{Fields: fields}
}

func (r *TriggerResponse) newWire() proto.Message { return new(structpb.Struct) }

func (r *TriggerResponse) fromWire(m proto.Message) error {
	s, err := asStruct(m)
	if err != nil {
		return err
	}

	fields := s.GetFields()
	r.DeviceID = fields[deviceIDField].GetStringValue()
	r.Value = fields[valueField].GetBoolValue()
	r.LastActor = actorOf(fields[lastActorField])

	if at, ok := fields[updatedAtField]; ok {
		if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, at.GetStringValue()); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrMalformedMessage, updatedAtField, err)
		}
	}

	return nil
}

func (r *SetTriggerRequest) toWire() proto.Message {
	fields := map[string]*structpb.Value{
		deviceIDField: structpb.NewStringValue(r.DeviceID),
		valueField:    structpb.NewBoolValue(r.Value),
	}

	if r.Actor != nil {
		fields[actorField] = r.Actor.value()
	}

	return &structpb.Struct{Fields: fields}
}

func (r *SetTriggerRequest) newWire() proto.Message { return new(structpb.Struct) }

func (r *SetTriggerRequest) fromWire(m proto.Message) error {
	s, err := asStruct(m)
	if err != nil {
		return err
	}

	fields := s.GetFields()
	if _, ok := fields[valueField].GetKind().(*structpb.Value_BoolValue); !ok {
		return fmt.Errorf("%w: %s must be a boolean", ErrMalformedMessage, valueField)
	}

	r.DeviceID = fields[deviceIDField].GetStringValue()
	r.Value = fields[valueField].GetBoolValue()
	r.Actor = actorOf(fields[actorField])

	return nil
}

func (r *ListTriggersResponse) toWire() proto.Message {
	fields := make(map[string]*structpb.Value, len(r.Triggers))
	for id, value := range r.Triggers {
		fields[id] = structpb.NewBoolValue(value)
	}

	return &structpb.Struct{Fields: fields}
}

func (r *ListTriggersResponse) newWire() proto.Message { return new(structpb.Struct) }

func (r *ListTriggersResponse) fromWire(m proto.Message) error {
	s, err := asStruct(m)
	if err != nil {
		return err
	}

	r.Triggers = make(map[string]bool, len(s.GetFields()))
	for id, value := range s.GetFields() {
		r.Triggers[id] = value.GetBoolValue()
	}

	return nil
}

func (e *TriggerEvent) toWire() proto.Message {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		deviceIDField: structpb.NewStringValue(e.DeviceID),
		valueField:    structpb.NewBoolValue(e.Value),
	}}
}

func (e *TriggerEvent) newWire() proto.Message { return new(structpb.Struct) }

func (e *TriggerEvent) fromWire(m proto.Message) error {
	s, err := asStruct(m)
	if err != nil {
		return err
	}

	e.DeviceID = s.GetFields()[deviceIDField].GetStringValue()
	e.Value = s.GetFields()[valueField].GetBoolValue()

	return nil
}

func (a *Actor) value() *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		hostnameField: structpb.NewStringValue(a.Hostname),
		usernameField: structpb.NewStringValue(a.Username),
	}})
}

func actorOf(v *structpb.Value) *Actor {
	s := v.GetStructValue()
	if s == nil {
		return nil
	}

	return &Actor{
		Hostname: s.GetFields()[hostnameField].GetStringValue(),
		Username: s.GetFields()[usernameField].GetStringValue(),
	}
}

func alarmsValue(list alarm.List) *structpb.Value {
	values := make([]*structpb.Value, 0, len(list))
	for _, entry := range list {
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			dateField: structpb.NewStringValue(entry.Date),
			timeField: structpb.NewStringValue(entry.Time),
		}}))
	}

	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// alarmsOf decodes a list of {date, time} objects. A missing value is an empty list.
func alarmsOf(v *structpb.Value) (alarm.List, error) {
	if v == nil {
		return alarm.List{}, nil
	}

	values, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", ErrMalformedMessage, alarmsField)
	}

	list := make(alarm.List, 0, len(values.ListValue.GetValues()))

	for _, item := range values.ListValue.GetValues() {
		entry := item.GetStructValue()
		if entry == nil {
			return nil, fmt.Errorf("%w: alarm must be an object", ErrMalformedMessage)
		}

		list = append(list, alarm.Alarm{
			Date: entry.GetFields()[dateField].GetStringValue(),
			Time: entry.GetFields()[timeField].GetStringValue(),
		})
	}

	return list, nil
}

func asStruct(m proto.Message) (*structpb.Struct, error) {
	s, ok := m.(*structpb.Struct)
	if !ok {
		return nil, fmt.Errorf("%w: expected %T, got %T", ErrMalformedMessage, s, m)
	}

	return s, nil
}

func fromDeviceID(m proto.Message, deviceID *string) error {
	s, ok := m.(*wrapperspb.StringValue)
	if !ok {
		return fmt.Errorf("%w: expected %T, got %T", ErrMalformedMessage, s, m)
	}

	*deviceID = s.GetValue()

	return nil
}
