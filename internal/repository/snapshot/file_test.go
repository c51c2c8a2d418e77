package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
)

// sampleSnapshot returns a snapshot with two devices, one of them without alarms.
func sampleSnapshot() *Snapshot {
	s := New()
	s.Alarms["pi04217"] = alarm.List{
		{Date: "2025-01-01", Time: "07:00"},
		{Date: "2024-12-31", Time: "23:59"},
	}
	s.Triggers["pi04217"] = &alarm.TriggerState{
		UpdatedAt: time.Date(2025, time.January, 1, 6, 0, 0, 0, time.UTC),
		LastActor: &alarm.Actor{Hostname: "coordinator", Username: "alarm"},
		Value:     true,
	}
	s.Triggers["pi99999"] = &alarm.TriggerState{Value: false}

	return s
}

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.json"))
	s, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, s)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns an equal snapshot.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "state.json")
	repo := NewFileRepository(file)
	want := sampleSnapshot()

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.Alarms, got.Alarms)
	require.Len(t, got.Triggers, 2)
	require.True(t, got.Triggers["pi04217"].Value)
	require.True(t, want.Triggers["pi04217"].UpdatedAt.Equal(got.Triggers["pi04217"].UpdatedAt))
	require.Equal(t, want.Triggers["pi04217"].LastActor, got.Triggers["pi04217"].LastActor)
	require.False(t, got.Triggers["pi99999"].Value)
	require.Nil(t, got.Triggers["pi99999"].LastActor)

	_, err = os.Stat(file + ".tmp")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFileRepository_SkipsMalformedEntries loads a hand-written tree with invalid values.
func TestFileRepository_SkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "state.json")
	contents := `{
  "alarms": {
    "pi00001": [{"date": "2025-01-01", "time": "07:00"}, {"date": "soon"}, 42],
    "pi00002": "not-a-list",
    "pi00003": [{"date": "2025-02-30", "time": "07:00"}]
  },
  "triggers": {"pi00001": true, "pi00002": "yes"}
}`
	require.NoError(t, os.WriteFile(file, []byte(contents), 0o600))

	got, err := NewFileRepository(file).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]alarm.List{
		"pi00001": {{Date: "2025-01-01", Time: "07:00"}},
	}, got.Alarms)
	require.Len(t, got.Triggers, 1)
	require.True(t, got.Triggers["pi00001"].Value)
}

// TestFileRepository_CorruptFile reports decode errors instead of silently starting empty.
func TestFileRepository_CorruptFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0o600))

	_, err := NewFileRepository(file).Load(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

// TestSnapshotClone ensures clones do not share lists or trigger states.
func TestSnapshotClone(t *testing.T) {
	t.Parallel()

	original := sampleSnapshot()
	cloned := original.Clone()

	cloned.Alarms["pi04217"][0].Time = "09:00"
	cloned.Triggers["pi04217"].Value = false

	require.Equal(t, "07:00", original.Alarms["pi04217"][0].Time)
	require.True(t, original.Triggers["pi04217"].Value)
	require.NotNil(t, (*Snapshot)(nil).Clone())
}
