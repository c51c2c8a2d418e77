package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
)

// Top-level keys of the JSON tree.
const (
	alarmsKey         = "alarms"
	triggersKey       = "triggers"
	triggerUpdatesKey = "trigger_updates"
)

// FileRepository persists the snapshot as a JSON tree on disk:
//
//	{"alarms": {"pi04217": [{"date": "2025-01-01", "time": "07:00"}]},
//	 "triggers": {"pi04217": false},
//	 "trigger_updates": {"pi04217": {"at": "...", "hostname": "...", "username": "..."}}}
//
// The tree is produced and consumed through structpb and protojson, so the
// layout stays a plain JSON document that other tools can read.
type FileRepository struct {
	// path is the filesystem location of the JSON snapshot.
	path string
	// mu serializes access to the snapshot file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the snapshot from disk. Malformed entries are skipped.
func (r *FileRepository) Load(_ context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	var tree structpb.Struct
	if err = protojson.Unmarshal(contents, &tree); err != nil {
		return nil, fmt.Errorf("decode snapshot file: %w", err)
	}

	return fromTree(tree.AsMap()), nil
}

// Save atomically replaces the snapshot file.
func (r *FileRepository) Save(_ context.Context, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tree, err := structpb.NewStruct(toTree(snapshot))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		Indent:          "  ",
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	return nil
}

// toTree converts the snapshot into the generic map accepted by structpb.
func toTree(snapshot *Snapshot) map[string]any {
	var (
		alarms   = make(map[string]any)
		triggers = make(map[string]any)
		updates  = make(map[string]any)
	)

	if snapshot == nil {
		snapshot = New()
	}

	for id, list := range snapshot.Alarms {
		if len(list) == 0 {
			continue
		}

		entries := make([]any, 0, len(list))
		for _, entry := range list {
			entries = append(entries, map[string]any{
				"date": entry.Date,
				"time": entry.Time,
			})
		}

		alarms[id] = entries
	}

	for id, state := range snapshot.Triggers {
		if state == nil {
			continue
		}

		triggers[id] = state.Value

		update := map[string]any{}
		if !state.UpdatedAt.IsZero() {
			update["at"] = state.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}

		if state.LastActor != nil {
			update["hostname"] = state.LastActor.Hostname
			update["username"] = state.LastActor.Username
		}

		updates[id] = update
	}

	return map[string]any{
		alarmsKey:         alarms,
		triggersKey:       triggers,
		triggerUpdatesKey: updates,
	}
}

// fromTree rebuilds a snapshot from a decoded JSON tree, ignoring anything malformed.
func fromTree(tree map[string]any) *Snapshot {
	result := New()

	alarms, _ := tree[alarmsKey].(map[string]any)
	for id, raw := range alarms {
		entries, ok := raw.([]any)
		if !ok {
			continue
		}

		var list alarm.List

		for _, raw := range entries {
			fields, ok := raw.(map[string]any)
			if !ok {
				continue
			}

			date, _ := fields["date"].(string)
			clock, _ := fields["time"].(string)

			entry := alarm.Alarm{Date: date, Time: clock}
			if entry.Validate() != nil {
				continue
			}

			list = append(list, entry)
		}

		if len(list) > 0 {
			result.Alarms[id] = list
		}
	}

	triggers, _ := tree[triggersKey].(map[string]any)
	updates, _ := tree[triggerUpdatesKey].(map[string]any)

	for id, raw := range triggers {
		value, ok := raw.(bool)
		if !ok {
			continue
		}

		state := &alarm.TriggerState{Value: value}

		if update, ok := updates[id].(map[string]any); ok {
			if at, ok := update["at"].(string); ok {
				state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, at)
			}

			hostname, _ := update["hostname"].(string)
			username, _ := update["username"].(string)

			if hostname != "" || username != "" {
				state.LastActor = &alarm.Actor{Hostname: hostname, Username: username}
			}
		}

		result.Triggers[id] = state
	}

	return result
}
