package storev1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
)

// transmit encodes m to protobuf bytes and decodes it into a fresh T, the way a peer would.
func transmit[T any, PT wirePointer[T]](t *testing.T, m PT) *T {
	t.Helper()

	data, err := proto.Marshal(m.toWire())
	require.NoError(t, err)

	wire := m.newWire()
	require.NoError(t, proto.Unmarshal(data, wire))

	out, err := decode[T, PT](wire)
	require.NoError(t, err)

	return out
}

// TestWire_TriggerResponse keeps the value, the timestamp and the writer.
func TestWire_TriggerResponse(t *testing.T) {
	t.Parallel()

	in := &TriggerResponse{
		DeviceID:  "pi04217",
		Value:     true,
		UpdatedAt: time.Date(2025, time.January, 1, 7, 0, 0, 0, time.UTC),
		LastActor: &Actor{Hostname: "coordinator", Username: "alarm"},
	}

	out := transmit(t, in)
	require.Equal(t, in.DeviceID, out.DeviceID)
	require.True(t, out.Value)
	require.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
	require.Equal(t, in.LastActor, out.LastActor)

	never := transmit(t, &TriggerResponse{DeviceID: "pi04217"})
	require.True(t, never.UpdatedAt.IsZero())
	require.Nil(t, never.LastActor)
}

// TestWire_Alarms keeps order and turns a missing list into an empty one.
func TestWire_Alarms(t *testing.T) {
	t.Parallel()

	alarms := alarm.List{{Date: "2025-01-02", Time: "07:00"}, {Date: "2025-01-01", Time: "06:30"}}

	out := transmit(t, &SetAlarmsRequest{DeviceID: "dev1", Alarms: alarms})
	require.Equal(t, "dev1", out.DeviceID)
	require.Equal(t, alarms, out.Alarms)

	var empty AlarmsResponse
	require.NoError(t, empty.fromWire(&structpb.Struct{}))
	require.NotNil(t, empty.Alarms)
	require.Empty(t, empty.Alarms)

	all := transmit(t, &ListAlarmsResponse{Devices: map[string]alarm.List{"dev1": alarms}})
	require.Equal(t, map[string]alarm.List{"dev1": alarms}, all.Devices)
}

// TestWire_Malformed rejects layouts that do not match the typed message.
func TestWire_Malformed(t *testing.T) {
	t.Parallel()

	var request SetTriggerRequest
	require.ErrorIs(t, request.fromWire(&structpb.Struct{}), ErrMalformedMessage)
	require.ErrorIs(t, request.fromWire(wrapperspb.String("dev1")), ErrMalformedMessage)

	notList, err := structpb.NewStruct(map[string]any{"alarms": "07:00"})
	require.NoError(t, err)

	var alarms SetAlarmsRequest
	require.ErrorIs(t, alarms.fromWire(notList), ErrMalformedMessage)

	badTime, err := structpb.NewStruct(map[string]any{"value": true, "updated_at": "yesterday"})
	require.NoError(t, err)

	var response TriggerResponse
	require.ErrorIs(t, response.fromWire(badTime), ErrMalformedMessage)

	var get GetAlarmsRequest
	require.ErrorIs(t, get.fromWire(&structpb.Struct{}), ErrMalformedMessage)
}

// TestActorConversion covers nil-safe conversions in both directions.
func TestActorConversion(t *testing.T) {
	t.Parallel()

	require.Nil(t, FromDomainActor(nil))
	require.Nil(t, (*Actor)(nil).ToDomain())

	actor := &alarm.Actor{Hostname: "h", Username: "u"}
	require.Equal(t, actor, FromDomainActor(actor).ToDomain())
}
