package logtail

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOffsetStore struct {
	mu      sync.Mutex
	offsets map[string]int64
}

func newMemOffsetStore() *memOffsetStore {
	return &memOffsetStore{offsets: make(map[string]int64)}
}

func (s *memOffsetStore) Load(serverID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, ok := s.offsets[serverID]
	return off, ok, nil
}

func (s *memOffsetStore) Save(serverID string, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[serverID] = offset
	return nil
}

func (s *memOffsetStore) Delete(serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offsets, serverID)
	return nil
}

type lineCollector struct {
	mu    sync.Mutex
	lines []Line
}

func (c *lineCollector) handle(l Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, l)
}

func (c *lineCollector) snapshot() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func waitForLines(t *testing.T, c *lineCollector, n int) []Line {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lines := c.snapshot(); len(lines) >= n {
			return lines
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines, got %d", n, len(c.snapshot()))
	return nil
}

func TestDispatcher_TailsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	collector := &lineCollector{}
	d := New(newMemOffsetStore(), 10*time.Millisecond, collector.handle)
	require.NoError(t, d.Watch(context.Background(), "vanilla", path))
	defer d.StopAll()

	lines := waitForLines(t, collector, 1)
	assert.Equal(t, "hello", lines[0].Text)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("world\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines = waitForLines(t, collector, 2)
	assert.Equal(t, "world", lines[1].Text)
}

func TestDispatcher_PartialLineNotDispatchedUntilTerminated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, []byte("partial-no-newline-yet"), 0o644))

	collector := &lineCollector{}
	d := New(newMemOffsetStore(), 10*time.Millisecond, collector.handle)
	require.NoError(t, d.Watch(context.Background(), "vanilla", path))
	defer d.StopAll()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, collector.snapshot())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines := waitForLines(t, collector, 1)
	assert.Equal(t, "partial-no-newline-yet", lines[0].Text)
}

func TestDispatcher_TruncationResetsOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	collector := &lineCollector{}
	d := New(newMemOffsetStore(), 10*time.Millisecond, collector.handle)
	require.NoError(t, d.Watch(context.Background(), "vanilla", path))
	defer d.StopAll()

	waitForLines(t, collector, 3)

	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o644))

	lines := waitForLines(t, collector, 4)
	assert.Equal(t, "fresh", lines[3].Text)
}

func TestDispatcher_WatchRejectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	d := New(nil, 10*time.Millisecond, func(Line) {})
	require.NoError(t, d.Watch(context.Background(), "vanilla", path))
	defer d.StopAll()

	err := d.Watch(context.Background(), "vanilla", path)
	assert.Error(t, err)
}

func TestDispatcher_StopAllRejectsFurtherWatch(t *testing.T) {
	d := New(nil, 10*time.Millisecond, func(Line) {})
	d.StopAll()

	err := d.Watch(context.Background(), "vanilla", "/dev/null")
	assert.Error(t, err)
}

func TestDispatcher_ResumesFromPersistedOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o644))

	store := newMemOffsetStore()
	require.NoError(t, store.Save("vanilla", int64(len("one\n"))))

	collector := &lineCollector{}
	d := New(store, 10*time.Millisecond, collector.handle)
	require.NoError(t, d.Watch(context.Background(), "vanilla", path))
	defer d.StopAll()

	lines := waitForLines(t, collector, 1)
	assert.Equal(t, "two", lines[0].Text)
}

func TestDispatcher_StopStopsSpecificServer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	d := New(nil, 10*time.Millisecond, func(Line) {})
	require.NoError(t, d.Watch(context.Background(), "vanilla", path))
	assert.True(t, d.Watching("vanilla"))

	d.Stop("vanilla")
	assert.False(t, d.Watching("vanilla"))
}
