// Package cron implements the durable cron scheduler: a closed registry of
// job kinds, a gorm/sqlite-backed store for schedules and their execution
// history, and a robfig/cron/v3 in-memory scheduler kept in lock-step with
// the store by cronjob_id.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/log"
	"github.com/hearthstack/mcfleet/pkg/metrics"
	"github.com/hearthstack/mcfleet/pkg/types"
)

var (
	standardParser = robfigcron.NewParser(robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow)
	secondsParser  = robfigcron.NewParser(robfigcron.Second | robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow)
)

// Manager owns the schedule store, the registry of job kinds, and the
// in-memory robfig/cron scheduler. It is the single writer of both the
// store and the scheduler's entry set.
type Manager struct {
	store    *store
	registry *registry
	sched    *robfigcron.Cron

	mu      sync.Mutex
	entries map[string]robfigcron.EntryID
}

// NewManager opens (creating if absent) the sqlite database at dsn, applies
// pending migrations, and returns a manager with nothing scheduled yet —
// call RegisterKind for every kind the process supports, then Start.
func NewManager(dsn string) (*Manager, error) {
	st, err := openStore(dsn)
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:    st,
		registry: newRegistry(),
		sched:    robfigcron.New(robfigcron.WithLocation(time.UTC)),
		entries:  make(map[string]robfigcron.EntryID),
	}, nil
}

// RegisterKind adds a job kind to the closed registry. params is a zero
// value of the struct params_json decodes and validates into. Call this
// before Start; the registry is not safe to mutate once jobs are scheduled.
func (m *Manager) RegisterKind(identifier string, params any, handler Handler, description string) {
	m.registry.register(identifier, params, handler, description)
}

// Start loads every persisted job, validates it against the registry, and
// reinstates a schedule entry for each row in state ACTIVE. A row whose
// identifier isn't registered or whose params no longer validate is logged
// and skipped rather than aborting startup.
func (m *Manager) Start() error {
	jobs, err := m.store.listJobs()
	if err != nil {
		return err
	}

	logger := log.WithComponent("cron")
	for _, job := range jobs {
		kind, ok := m.registry.lookup(job.Identifier)
		if !ok {
			logger.Warn().Str("cronjob_id", job.CronJobID).Str("identifier", job.Identifier).
				Msg("skipping cron job at startup: unregistered identifier")
			continue
		}
		if _, err := decodeParams(kind, job.ParamsJSON); err != nil {
			logger.Warn().Str("cronjob_id", job.CronJobID).Err(err).
				Msg("skipping cron job at startup: params no longer validate")
			continue
		}
		if job.Status != types.CronActive {
			continue
		}
		if err := m.scheduleEntry(job); err != nil {
			logger.Warn().Str("cronjob_id", job.CronJobID).Err(err).
				Msg("skipping cron job at startup: invalid cron expression")
			continue
		}
	}

	m.sched.Start()
	metrics.CronJobsActive.Set(float64(len(m.entries)))
	return nil
}

// Stop halts the scheduler and waits up to grace for any in-flight firing
// to finish, then closes the store.
func (m *Manager) Stop(grace time.Duration) error {
	stopCtx := m.sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(grace):
	}
	return m.store.close()
}

func parseSchedule(job types.CronJob) (robfigcron.Schedule, error) {
	if job.SecondField != "" {
		return secondsParser.Parse(job.SecondField + " " + job.CronExpression)
	}
	return standardParser.Parse(job.CronExpression)
}

// scheduleEntry adds (or replaces) job's entry in the in-memory scheduler.
// Caller holds no lock; this takes it internally.
func (m *Manager) scheduleEntry(job types.CronJob) error {
	sched, err := parseSchedule(job)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", job.CronExpression, err)
	}

	cronJobID := job.CronJobID
	entryFunc := robfigcron.FuncJob(func() { m.fire(cronJobID) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[cronJobID]; ok {
		m.sched.Remove(old)
	}
	m.entries[cronJobID] = m.sched.Schedule(sched, entryFunc)
	return nil
}

func (m *Manager) unscheduleEntry(cronJobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.entries[cronJobID]; ok {
		m.sched.Remove(id)
		delete(m.entries, cronJobID)
	}
}

// Submit creates a new job or, when cronJobID names an existing row,
// recovers it in place: the row is overwritten with the new expression and
// parameters and its schedule entry is atomically replaced. An empty
// cronJobID generates a fresh one.
func (m *Manager) Submit(cronJobID, identifier, name, cronExpr, secondField string, params any) (*types.CronJob, error) {
	kind, ok := m.registry.lookup(identifier)
	if !ok {
		return nil, errs.InvalidInputf("unknown cron kind %q", identifier)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, errs.InvalidInputf("marshal cron params: %v", err)
	}
	if _, err := decodeParams(kind, string(paramsJSON)); err != nil {
		return nil, errs.InvalidInputf("%v", err)
	}

	if cronJobID == "" {
		cronJobID = uuid.NewString()
	}

	job := types.CronJob{
		CronJobID:      cronJobID,
		Identifier:     identifier,
		Name:           name,
		CronExpression: cronExpr,
		SecondField:    secondField,
		ParamsJSON:     string(paramsJSON),
		Status:         types.CronActive,
	}

	if _, err := parseSchedule(job); err != nil {
		return nil, errs.InvalidInputf("invalid cron expression %q: %v", cronExpr, err)
	}

	if err := m.store.upsertJob(&job); err != nil {
		return nil, err
	}
	if err := m.scheduleEntry(job); err != nil {
		return nil, fmt.Errorf("cron: schedule job %s: %w", job.CronJobID, err)
	}

	metrics.CronJobsActive.Set(float64(m.activeCount()))
	return &job, nil
}

// Pause removes a job's schedule entry but keeps the row.
func (m *Manager) Pause(cronJobID string) error {
	if _, err := m.store.getJob(cronJobID); err != nil {
		return err
	}
	m.unscheduleEntry(cronJobID)
	if err := m.store.setStatus(cronJobID, types.CronPaused); err != nil {
		return err
	}
	metrics.CronJobsActive.Set(float64(m.activeCount()))
	return nil
}

// Resume re-adds a paused job's schedule entry from its stored expression.
func (m *Manager) Resume(cronJobID string) error {
	job, err := m.store.getJob(cronJobID)
	if err != nil {
		return err
	}
	if err := m.scheduleEntry(*job); err != nil {
		return fmt.Errorf("cron: resume job %s: %w", cronJobID, err)
	}
	if err := m.store.setStatus(cronJobID, types.CronActive); err != nil {
		return err
	}
	metrics.CronJobsActive.Set(float64(m.activeCount()))
	return nil
}

// Cancel removes a job's schedule entry and marks the row CANCELLED.
func (m *Manager) Cancel(cronJobID string) error {
	if _, err := m.store.getJob(cronJobID); err != nil {
		return err
	}
	m.unscheduleEntry(cronJobID)
	if err := m.store.setStatus(cronJobID, types.CronCancelled); err != nil {
		return err
	}
	metrics.CronJobsActive.Set(float64(m.activeCount()))
	return nil
}

// Get returns a job's persisted row.
func (m *Manager) Get(cronJobID string) (*types.CronJob, error) {
	return m.store.getJob(cronJobID)
}

// List returns every persisted job.
func (m *Manager) List() ([]types.CronJob, error) {
	return m.store.listJobs()
}

// ListExecutions returns a job's execution history, most recent first.
func (m *Manager) ListExecutions(cronJobID string) ([]types.CronExecution, error) {
	return m.store.listExecutions(cronJobID)
}

func (m *Manager) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// fire runs one firing of cronJobID. It never lets a handler's error or
// panic escape the scheduler goroutine: both are captured into the
// execution row, and the scheduler keeps running regardless.
func (m *Manager) fire(cronJobID string) {
	logger := log.WithCronJobID(cronJobID)

	job, err := m.store.getJob(cronJobID)
	if err != nil {
		logger.Error().Err(err).Msg("cron: firing job that no longer exists")
		return
	}
	kind, ok := m.registry.lookup(job.Identifier)
	if !ok {
		logger.Error().Str("identifier", job.Identifier).Msg("cron: firing job with unregistered identifier")
		return
	}
	params, err := decodeParams(kind, job.ParamsJSON)
	if err != nil {
		logger.Error().Err(err).Msg("cron: firing job with invalid params")
		return
	}

	exec := &types.CronExecution{
		ExecutionID: uuid.NewString(),
		CronJobID:   cronJobID,
		StartedAt:   time.Now().UTC(),
		Status:      types.ExecRunning,
	}
	if err := m.store.insertExecution(exec); err != nil {
		logger.Error().Err(err).Msg("cron: failed to record execution start")
		return
	}

	ec := &ExecutionContext{CronJobID: cronJobID, Params: params}
	handlerErr := m.invoke(kind.Handler, ec)

	ended := time.Now().UTC()
	durationMS := ended.Sub(exec.StartedAt).Milliseconds()
	exec.EndedAt = &ended
	exec.DurationMS = &durationMS
	messagesJSON, _ := json.Marshal(ec.snapshotMessages())
	exec.MessagesJSON = string(messagesJSON)

	outcome := "completed"
	if handlerErr != nil {
		exec.Status = types.ExecFailed
		outcome = "failed"
		logger.Error().Err(handlerErr).Msg("cron job firing failed")
	} else {
		exec.Status = types.ExecCompleted
		if err := m.store.incrementExecutionCount(cronJobID); err != nil {
			logger.Error().Err(err).Msg("cron: failed to increment execution count")
		}
	}
	if err := m.store.updateExecution(exec); err != nil {
		logger.Error().Err(err).Msg("cron: failed to record execution result")
	}

	metrics.CronExecutionsTotal.WithLabelValues(job.Identifier, outcome).Inc()
}

// invoke calls handler, recovering a panic into an error so a single job's
// firing can never take the scheduler goroutine down with it.
func (m *Manager) invoke(handler Handler, ec *ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cron handler panicked: %v", r)
		}
	}()
	return handler(context.Background(), ec)
}
