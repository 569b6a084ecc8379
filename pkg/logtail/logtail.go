// Package logtail watches each server's latest.log with a per-server
// polling goroutine, tracks a byte offset into the file across ticks, and
// hands newly-appeared lines to a pluggable handler in file order. Offsets
// survive a dispatcher restart by being mirrored into bbolt on every tick,
// the same embedded-store idiom the rest of the control plane uses for
// small durable key spaces.
package logtail

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/log"
)

var bucketLogOffsets = []byte("log_offsets")

// Line is one line read from a server's log file.
type Line struct {
	ServerID string
	Text     string
}

// Handler receives lines in file order, one server at a time; the
// dispatcher never calls it concurrently for the same server.
type Handler func(Line)

// OffsetStore persists the last-read byte offset per server so a
// dispatcher restart resumes instead of re-reading from the start of the
// file or skipping newly appended content.
type OffsetStore interface {
	Load(serverID string) (int64, bool, error)
	Save(serverID string, offset int64) error
	Delete(serverID string) error
}

// BoltOffsetStore is an OffsetStore backed by a bbolt database, storing
// each server's offset as a decimal string keyed
// by server ID within bucketLogOffsets.
type BoltOffsetStore struct {
	db *bolt.DB
}

// OpenBoltOffsetStore opens (creating if necessary) a bbolt database at
// path and ensures bucketLogOffsets exists.
func OpenBoltOffsetStore(path string) (*BoltOffsetStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open log offsets database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLogOffsets)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create log offsets bucket: %w", err)
	}
	return &BoltOffsetStore{db: db}, nil
}

func (s *BoltOffsetStore) Close() error { return s.db.Close() }

func (s *BoltOffsetStore) Load(serverID string) (int64, bool, error) {
	var offset int64
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLogOffsets).Get([]byte(serverID))
		if v == nil {
			return nil
		}
		found = true
		_, err := fmt.Sscanf(string(v), "%d", &offset)
		return err
	})
	return offset, found, err
}

func (s *BoltOffsetStore) Save(serverID string, offset int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLogOffsets).Put([]byte(serverID), []byte(fmt.Sprintf("%d", offset)))
	})
}

func (s *BoltOffsetStore) Delete(serverID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLogOffsets).Delete([]byte(serverID))
	})
}

// watcher holds the per-server state a poll goroutine owns exclusively.
type watcher struct {
	serverID string
	path     string
	offset   int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// Dispatcher owns one poll goroutine per watched server.
type Dispatcher struct {
	mu       sync.Mutex
	watchers map[string]*watcher
	offsets  OffsetStore
	interval time.Duration
	handler  Handler
	stopped  bool
}

// New builds a Dispatcher. offsets may be nil to disable offset
// persistence (useful in tests); interval is the poll cadence applied to
// every watched server.
func New(offsets OffsetStore, interval time.Duration, handler Handler) *Dispatcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Dispatcher{
		watchers: make(map[string]*watcher),
		offsets:  offsets,
		interval: interval,
		handler:  handler,
	}
}

// Watch starts tailing path for serverID. Returns a Conflict error if the
// server is already being watched, or an error if the dispatcher has been
// stopped.
func (d *Dispatcher) Watch(ctx context.Context, serverID, path string) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return errs.Unavailablef("log tail dispatcher is stopped, refusing new watch for %q", serverID)
	}
	if _, exists := d.watchers[serverID]; exists {
		d.mu.Unlock()
		return errs.AlreadyExists(fmt.Sprintf("already watching server %q", serverID))
	}

	var initialOffset int64
	if d.offsets != nil {
		if off, found, err := d.offsets.Load(serverID); err == nil && found {
			initialOffset = off
		}
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{serverID: serverID, path: path, offset: initialOffset, cancel: cancel, done: make(chan struct{})}
	d.watchers[serverID] = w
	d.mu.Unlock()

	go d.run(wctx, w)
	return nil
}

// Stop cancels the watcher for serverID, if any, and waits for its
// goroutine to exit.
func (d *Dispatcher) Stop(serverID string) {
	d.mu.Lock()
	w, exists := d.watchers[serverID]
	if exists {
		delete(d.watchers, serverID)
	}
	d.mu.Unlock()
	if !exists {
		return
	}
	w.cancel()
	<-w.done
}

// StopAll cancels every active watcher, waits for all of them to exit, and
// marks the dispatcher as stopped: subsequent Watch calls fail until a new
// Dispatcher is created.
func (d *Dispatcher) StopAll() {
	d.mu.Lock()
	d.stopped = true
	watchers := make([]*watcher, 0, len(d.watchers))
	for id, w := range d.watchers {
		watchers = append(watchers, w)
		delete(d.watchers, id)
	}
	d.mu.Unlock()

	for _, w := range watchers {
		w.cancel()
	}
	for _, w := range watchers {
		<-w.done
	}
}

// Watching reports whether serverID currently has an active watcher.
func (d *Dispatcher) Watching(serverID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.watchers[serverID]
	return ok
}

func (d *Dispatcher) run(ctx context.Context, w *watcher) {
	defer close(w.done)
	logger := log.WithServerID(w.serverID)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.poll(w); err != nil {
			logger.Warn().Err(err).Str("path", w.path).Msg("log tail poll failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll reads any bytes appended to w.path since w.offset, handles
// rotation/truncation by resetting to zero, splits whole lines to the
// handler, and advances+persists the offset.
func (d *Dispatcher) poll(w *watcher) error {
	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			w.offset = 0
			return nil
		}
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < w.offset {
		w.offset = 0
	}
	if info.Size() == w.offset {
		return nil
	}

	if _, err := f.Seek(w.offset, 0); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}

	// Only fully newline-terminated lines are dispatched and counted toward
	// the offset; a trailing partial line is left unread so it's re-read
	// (from the start of that partial segment) once the writer finishes it.
	chunk := buf.Bytes()
	var consumed int64
	for {
		idx := bytes.IndexByte(chunk[consumed:], '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(chunk[consumed:consumed+int64(idx)], "\r"))
		consumed += int64(idx) + 1
		if d.handler != nil {
			d.handler(Line{ServerID: w.serverID, Text: line})
		}
	}
	w.offset += consumed

	if d.offsets != nil {
		if err := d.offsets.Save(w.serverID, w.offset); err != nil {
			return fmt.Errorf("persist log offset: %w", err)
		}
	}
	return nil
}
