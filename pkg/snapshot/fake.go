package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// FakeTool is an in-memory Tool double for tests that never shells out to a
// real restic binary. Snapshot IDs are derived from a content digest of the
// backed-up path plus its sequence number, so IDs look like real
// sha256-derived restic IDs instead of incrementing counters.
type FakeTool struct {
	mu        sync.Mutex
	snapshots []types.Snapshot
	locked    []string
	nowFunc   func() time.Time
}

// NewFakeTool returns a ready-to-use FakeTool with an empty repository.
func NewFakeTool() *FakeTool {
	return &FakeTool{nowFunc: time.Now}
}

func (f *FakeTool) Init(ctx context.Context) error { return nil }

// Backup derives a 64-hex snapshot ID from a digest of absolutePath and the
// current snapshot count, truncates it to restic's short_id convention
// (first 8 hex chars), and stores the snapshot in list order.
func (f *FakeTool) Backup(ctx context.Context, absolutePath string) (types.Snapshot, error) {
	if !strings.HasPrefix(absolutePath, "/") {
		return types.Snapshot{}, errs.InvalidInputf("backup path %q must be absolute", absolutePath)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	seq := len(f.snapshots)
	d := digest.FromString(fmt.Sprintf("%s#%d", absolutePath, seq))
	id := d.Encoded()

	snap := types.Snapshot{
		ID:       id,
		ShortID:  shortID(id),
		Time:     f.nowFunc(),
		Paths:    []string{absolutePath},
		Hostname: "fake-host",
		Username: "fake-user",
		Summary: &types.SnapshotSummary{
			FilesNew:            1,
			TotalFilesProcessed: 1,
			TotalBytesProcessed: int64(len(absolutePath)) * 1024,
		},
	}
	f.snapshots = append(f.snapshots, snap)
	return snap, nil
}

// List returns snapshots newest-first, optionally filtered to those whose
// recorded path equals pathFilter.
func (f *FakeTool) List(ctx context.Context, pathFilter string) ([]types.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.Snapshot
	for _, s := range f.snapshots {
		if pathFilter != "" && !containsPath(s.Paths, pathFilter) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out, nil
}

func containsPath(paths []string, want string) bool {
	for _, p := range paths {
		if p == want {
			return true
		}
	}
	return false
}

func (f *FakeTool) find(id string) (types.Snapshot, bool) {
	for _, s := range f.snapshots {
		if s.ID == id || s.ShortID == id {
			return s, true
		}
	}
	return types.Snapshot{}, false
}

// RestorePreview reports a single synthetic "restored" action per path
// recorded in the snapshot, matching the shape restic's --json --dry-run
// output takes without needing a real filesystem walk.
func (f *FakeTool) RestorePreview(ctx context.Context, id, target, includePath string) ([]types.RestoreAction, error) {
	f.mu.Lock()
	snap, ok := f.find(id)
	f.mu.Unlock()
	if !ok {
		return nil, errs.NotFoundf("snapshot %q", id)
	}

	var actions []types.RestoreAction
	for _, p := range snap.Paths {
		if includePath != "" && !strings.HasPrefix(p, includePath) {
			continue
		}
		actions = append(actions, types.RestoreAction{Action: "restored", Item: p, Size: snap.Summary.TotalBytesProcessed})
	}
	return actions, nil
}

// Restore is a no-op on the fake; it only validates the snapshot exists.
func (f *FakeTool) Restore(ctx context.Context, id, target, includePath string) error {
	f.mu.Lock()
	_, ok := f.find(id)
	f.mu.Unlock()
	if !ok {
		return errs.NotFoundf("snapshot %q", id)
	}
	return nil
}

// Forget keeps only the most recent keepLast snapshots.
func (f *FakeTool) Forget(ctx context.Context, keepLast int, prune bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if keepLast < 0 || keepLast >= len(f.snapshots) {
		return nil
	}
	sort.SliceStable(f.snapshots, func(i, j int) bool { return f.snapshots[i].Time.Before(f.snapshots[j].Time) })
	f.snapshots = f.snapshots[len(f.snapshots)-keepLast:]
	return nil
}

func (f *FakeTool) ListLocks(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.locked...), nil
}

func (f *FakeTool) Unlock(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = nil
	return nil
}

// Lock is a test helper simulating an externally held repository lock.
func (f *FakeTool) Lock(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = append(f.locked, id)
}
