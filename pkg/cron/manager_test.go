package cron

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthstack/mcfleet/pkg/types"
)

type noopParams struct{}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "cron.db")
	m, err := NewManager(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(time.Second) })
	return m
}

func TestSubmit_UnknownKindIsInvalidInput(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())

	_, err := m.Submit("", "does_not_exist", "job", "0 0 * * *", "", noopParams{})
	require.Error(t, err)
}

func TestSubmit_InvalidCronExpressionIsRejected(t *testing.T) {
	m := newTestManager(t)
	m.RegisterKind("noop", noopParams{}, func(ctx context.Context, ec *ExecutionContext) error { return nil }, "does nothing")
	require.NoError(t, m.Start())

	_, err := m.Submit("", "noop", "job", "not a cron expr", "", noopParams{})
	require.Error(t, err)
}

func TestSubmit_FiresAndRecordsExecution(t *testing.T) {
	m := newTestManager(t)
	fired := make(chan struct{}, 4)
	m.RegisterKind("noop", noopParams{}, func(ctx context.Context, ec *ExecutionContext) error {
		ec.Log("ran")
		fired <- struct{}{}
		return nil
	}, "does nothing")
	require.NoError(t, m.Start())

	job, err := m.Submit("", "noop", "every second", "* * * * *", "*", noopParams{})
	require.NoError(t, err)
	assert.Equal(t, types.CronActive, job.Status)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	require.Eventually(t, func() bool {
		execs, err := m.ListExecutions(job.CronJobID)
		return err == nil && len(execs) > 0 && execs[0].Status == types.ExecCompleted
	}, 2*time.Second, 20*time.Millisecond)

	got, err := m.Get(job.CronJobID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.ExecutionCount, 1)
}

func TestSubmit_HandlerErrorRecordsFailed(t *testing.T) {
	m := newTestManager(t)
	m.RegisterKind("failer", noopParams{}, func(ctx context.Context, ec *ExecutionContext) error {
		return assert.AnError
	}, "always fails")
	require.NoError(t, m.Start())

	job, err := m.Submit("", "failer", "every second", "* * * * *", "*", noopParams{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		execs, err := m.ListExecutions(job.CronJobID)
		return err == nil && len(execs) > 0 && execs[0].Status == types.ExecFailed
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPauseResumeCancel(t *testing.T) {
	m := newTestManager(t)
	m.RegisterKind("noop", noopParams{}, func(ctx context.Context, ec *ExecutionContext) error { return nil }, "")
	require.NoError(t, m.Start())

	job, err := m.Submit("", "noop", "daily", "0 0 * * *", "", noopParams{})
	require.NoError(t, err)

	require.NoError(t, m.Pause(job.CronJobID))
	got, err := m.Get(job.CronJobID)
	require.NoError(t, err)
	assert.Equal(t, types.CronPaused, got.Status)

	require.NoError(t, m.Resume(job.CronJobID))
	got, err = m.Get(job.CronJobID)
	require.NoError(t, err)
	assert.Equal(t, types.CronActive, got.Status)

	require.NoError(t, m.Cancel(job.CronJobID))
	got, err = m.Get(job.CronJobID)
	require.NoError(t, err)
	assert.Equal(t, types.CronCancelled, got.Status)
}

func TestSubmit_RecoversCancelledJobInPlace(t *testing.T) {
	m := newTestManager(t)
	m.RegisterKind("test_cronjob", noopParams{}, func(ctx context.Context, ec *ExecutionContext) error { return nil }, "")
	require.NoError(t, m.Start())

	job, err := m.Submit("job1", "test_cronjob", "job1", "0 0 * * *", "", noopParams{})
	require.NoError(t, err)
	require.NoError(t, m.Cancel(job.CronJobID))

	recovered, err := m.Submit("job1", "test_cronjob", "job1", "*/5 * * * *", "", noopParams{})
	require.NoError(t, err)
	assert.Equal(t, types.CronActive, recovered.Status)
	assert.Equal(t, "*/5 * * * *", recovered.CronExpression)

	got, err := m.Get("job1")
	require.NoError(t, err)
	assert.Equal(t, types.CronActive, got.Status)
	assert.Equal(t, "*/5 * * * *", got.CronExpression)
}

func TestScheduleRestart_AvoidsConflicts(t *testing.T) {
	m := newTestManager(t)
	m.RegisterKind(backupIdentifier, noopParams{}, func(ctx context.Context, ec *ExecutionContext) error { return nil }, "")
	m.RegisterKind(RestartServerIdentifier, RestartServerParams{}, func(ctx context.Context, ec *ExecutionContext) error { return nil }, "")
	require.NoError(t, m.Start())

	_, err := m.Submit("", backupIdentifier, "backup", "0,5 * * * *", "", noopParams{})
	require.NoError(t, err)
	_, err = m.Submit("", RestartServerIdentifier, "restart-a", "5 6 * * *", "", RestartServerParams{ServerID: "server-a"})
	require.NoError(t, err)

	job, err := m.ScheduleRestart("", "server-b", "restart-b", 6, 0, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "10 6 * * *", job.CronExpression)
}
