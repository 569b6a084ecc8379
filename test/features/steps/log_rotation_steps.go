package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/hearthstack/mcfleet/pkg/logtail"
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

type logRotationContext struct {
	dir        string
	logPath    string
	offsets    *memOffsetStore
	dispatcher *logtail.Dispatcher

	mu    sync.Mutex
	lines []logtail.Line
}

func (lc *logRotationContext) reset() {
	lc.dir = tempDirForScenario()
	lc.logPath = filepath.Join(lc.dir, "latest.log")
	lc.offsets = newMemOffsetStore()
	lc.lines = nil
	lc.dispatcher = logtail.New(lc.offsets, 10*time.Millisecond, func(l logtail.Line) {
		lc.mu.Lock()
		lc.lines = append(lc.lines, l)
		lc.mu.Unlock()
	})
}

func (lc *logRotationContext) aLogTailDispatcherWithAPersistedOffsetOfForServer(offset int64, serverID string) error {
	return lc.offsets.Save(serverID, offset)
}

func (lc *logRotationContext) serversLogFileNowContainsWithNoTrailingNewline(serverID, content string) error {
	unescaped := strings.ReplaceAll(content, `\n`, "\n")
	return os.WriteFile(lc.logPath, []byte(unescaped), 0o644)
}

func (lc *logRotationContext) theDispatcherPollsServer(serverID string) error {
	if err := lc.dispatcher.Watch(context.Background(), serverID, lc.logPath); err != nil {
		return err
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		lc.mu.Lock()
		n := len(lc.lines)
		lc.mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	lc.dispatcher.Stop(serverID)
	return nil
}

func (lc *logRotationContext) itDispatchesTheLinesThenForServer(first, second, serverID string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if len(lc.lines) < 2 {
		return fmt.Errorf("expected at least 2 dispatched lines, got %d", len(lc.lines))
	}
	if lc.lines[0].ServerID != serverID || lc.lines[0].Text != first {
		return fmt.Errorf("expected first line %q for %q, got %q for %q", first, serverID, lc.lines[0].Text, lc.lines[0].ServerID)
	}
	if lc.lines[1].ServerID != serverID || lc.lines[1].Text != second {
		return fmt.Errorf("expected second line %q for %q, got %q for %q", second, serverID, lc.lines[1].Text, lc.lines[1].ServerID)
	}
	if len(lc.lines) != 2 {
		return fmt.Errorf("expected exactly 2 dispatched lines (partial trailing line must not be dispatched), got %d", len(lc.lines))
	}
	return nil
}

func (lc *logRotationContext) thePersistedOffsetForServerBecomes(serverID string, want int64) error {
	got, ok, err := lc.offsets.Load(serverID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no persisted offset for %q", serverID)
	}
	if got != want {
		return fmt.Errorf("expected persisted offset %d, got %d", want, got)
	}
	return nil
}

// InitializeLogRotationScenario registers the log-rotation-recovery
// scenario.
func InitializeLogRotationScenario(sc *godog.ScenarioContext) {
	lc := &logRotationContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		lc.reset()
		return ctx, nil
	})

	sc.Step(`^a log tail dispatcher with a persisted offset of (\d+) for server "([^"]*)"$`, lc.aLogTailDispatcherWithAPersistedOffsetOfForServer)
	sc.Step(`^server "([^"]*)"'s log file now contains "([^"]*)" with no trailing newline$`, lc.serversLogFileNowContainsWithNoTrailingNewline)
	sc.Step(`^the dispatcher polls server "([^"]*)"$`, lc.theDispatcherPollsServer)
	sc.Step(`^it dispatches the lines "([^"]*)" then "([^"]*)" for server "([^"]*)"$`, lc.itDispatchesTheLinesThenForServer)
	sc.Step(`^the persisted offset for server "([^"]*)" becomes (\d+)$`, lc.thePersistedOffsetForServerBecomes)
}
