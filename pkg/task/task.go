// Package task implements the in-process background task manager: callers
// submit a long-running generator function, the manager drives it on its own
// goroutine, streams its progress into a shared task record, and exposes
// submit/cancel/get/list operations over that record.
//
// The shape is grounded on the teacher's worker: a map of in-flight handles
// guarded by a mutex, one goroutine per unit of work, and a per-task yield
// callback through which the generator reports progress.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthstack/mcfleet/pkg/log"
	"github.com/hearthstack/mcfleet/pkg/metrics"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// Generator is the long-running function a caller submits. It reports
// progress through yield and returns the task's final result, or an error
// if it failed. A panic inside Generator is recovered and converted to a
// FAILED terminal state.
type Generator func(ctx context.Context, yield func(types.Progress)) (any, error)

// handle is the manager's internal bookkeeping for one submitted task: the
// exported record (mutex-guarded), its cancellation signal, and a channel
// that closes exactly once the task reaches a terminal state.
type handle struct {
	mu          sync.Mutex
	task        types.Task
	cancel      context.CancelFunc
	done        chan struct{}
	hadProgress bool
}

// Manager owns every submitted task for the process's lifetime (until
// removed or cleared).
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*handle
	lastGauge map[types.TaskStatus]int
}

// NewManager creates an empty task manager.
func NewManager() *Manager {
	return &Manager{
		tasks:     make(map[string]*handle),
		lastGauge: make(map[types.TaskStatus]int),
	}
}

// Submit schedules gen on a new goroutine and returns the new task record
// plus a channel that closes when the task reaches a terminal state. The
// returned *types.Task is a snapshot; use Get for subsequent live reads.
func (m *Manager) Submit(taskType types.TaskType, name string, serverID string, cancellable bool, gen Generator) (*types.Task, <-chan struct{}) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	h := &handle{
		task: types.Task{
			ID:          id,
			Type:        taskType,
			Name:        name,
			ServerID:    serverID,
			Status:      types.TaskPending,
			Cancellable: cancellable,
			CreatedAt:   time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[id] = h
	m.mu.Unlock()

	metrics.TasksSubmitted.WithLabelValues(string(taskType)).Inc()
	m.bumpGauge(types.TaskPending, +1)

	go m.run(ctx, h, gen)

	snap := h.snapshot()
	return &snap, h.done
}

func (m *Manager) run(ctx context.Context, h *handle, gen Generator) {
	logger := log.WithTaskID(h.task.ID)

	h.mu.Lock()
	h.task.Status = types.TaskRunning
	h.task.StartedAt = time.Now()
	h.mu.Unlock()
	m.bumpGauge(types.TaskPending, -1)
	m.bumpGauge(types.TaskRunning, +1)

	result, err := m.drive(ctx, h, gen)

	h.mu.Lock()
	h.task.EndedAt = time.Now()
	from := types.TaskRunning

	switch {
	case ctx.Err() == context.Canceled:
		h.task.Status = types.TaskCancelled
		h.task.Error = "cancelled"
		h.task.Result = map[string]any{"success": false}
	case err != nil:
		h.task.Status = types.TaskFailed
		h.task.Error = err.Error()
	default:
		h.task.Status = types.TaskCompleted
		h.task.Result = result
		if h.hadProgress {
			v := 100
			h.task.Progress = &v
		}
	}
	status := h.task.Status
	taskType := h.task.Type
	duration := h.task.EndedAt.Sub(h.task.StartedAt)
	h.mu.Unlock()

	m.bumpGauge(from, -1)
	m.bumpGauge(status, +1)
	metrics.TaskDuration.WithLabelValues(string(taskType), string(status)).Observe(duration.Seconds())

	logger.Info().Str("status", string(status)).Msg("task finished")
	close(h.done)
}

// drive invokes gen, recovering a panic as a FAILED-style error.
func (m *Manager) drive(ctx context.Context, h *handle, gen Generator) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	yield := func(p types.Progress) {
		h.mu.Lock()
		defer h.mu.Unlock()
		applyProgress(&h.task, &h.hadProgress, p)
	}

	return gen(ctx, yield)
}

// applyProgress implements the clamp policy: nil leaves progress untouched,
// negative values clamp to the last-known non-negative value, values over
// 100 clamp to 100.
func applyProgress(t *types.Task, hadProgress *bool, p types.Progress) {
	if p.Progress != nil {
		v := *p.Progress
		if v < 0 {
			if t.Progress != nil {
				v = *t.Progress
			} else {
				v = 0
			}
		} else if v > 100 {
			v = 100
		}
		t.Progress = &v
		*hadProgress = true
	}
	if p.Message != "" {
		t.Message = p.Message
	}
	if p.Result != nil {
		t.Result = p.Result
	}
}

func (h *handle) snapshot() types.Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.task
}

// Cancel delivers a cancellation signal to a pending or running cancellable
// task. Returns false if the task is unknown, not cancellable, or already
// terminal.
func (m *Manager) Cancel(taskID string) bool {
	m.mu.Lock()
	h, ok := m.tasks[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	cancellable := h.task.Cancellable
	terminal := isTerminal(h.task.Status)
	h.mu.Unlock()

	if !cancellable || terminal {
		return false
	}

	h.cancel()
	return true
}

// Get returns a snapshot of a task by ID.
func (m *Manager) Get(taskID string) (types.Task, bool) {
	m.mu.Lock()
	h, ok := m.tasks[taskID]
	m.mu.Unlock()
	if !ok {
		return types.Task{}, false
	}
	return h.snapshot(), true
}

// List returns a snapshot of every known task.
func (m *Manager) List() []types.Task {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.tasks))
	for _, h := range m.tasks {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	out := make([]types.Task, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.snapshot())
	}
	return out
}

// ListActive returns tasks whose status is PENDING or RUNNING.
func (m *Manager) ListActive() []types.Task {
	var out []types.Task
	for _, t := range m.List() {
		if t.Status == types.TaskPending || t.Status == types.TaskRunning {
			out = append(out, t)
		}
	}
	return out
}

// Remove deletes a terminal task's record. Returns false for unknown or
// non-terminal tasks.
func (m *Manager) Remove(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	h.mu.Lock()
	terminal := isTerminal(h.task.Status)
	h.mu.Unlock()
	if !terminal {
		return false
	}
	delete(m.tasks, taskID)
	return true
}

// ClearCompleted removes every terminal task and returns the count removed.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, h := range m.tasks {
		h.mu.Lock()
		terminal := isTerminal(h.task.Status)
		h.mu.Unlock()
		if terminal {
			delete(m.tasks, id)
			n++
		}
	}
	return n
}

func isTerminal(s types.TaskStatus) bool {
	switch s {
	case types.TaskCompleted, types.TaskFailed, types.TaskCancelled:
		return true
	default:
		return false
	}
}

// bumpGauge adjusts the mcfleet_tasks_total gauge for a status transition.
func (m *Manager) bumpGauge(status types.TaskStatus, delta int) {
	m.mu.Lock()
	m.lastGauge[status] += delta
	v := m.lastGauge[status]
	m.mu.Unlock()
	metrics.TasksTotal.WithLabelValues(string(status)).Set(float64(v))
}
