package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthstack/mcfleet/pkg/types"
)

func intPtr(v int) *int { return &v }

func TestSubmit_CompletesWithProgressClampedTo100(t *testing.T) {
	m := NewManager()
	_, done := m.Submit(types.TaskArchiveCreate, "test", "", true, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		yield(types.Progress{Progress: intPtr(10)})
		yield(types.Progress{Progress: intPtr(50)})
		return "ok", nil
	})

	<-done
	// Fetch via manager using list since ID isn't directly exposed by done chan.
	tasks := m.List()
	require.Len(t, tasks, 1)
	got := tasks[0]
	assert.Equal(t, types.TaskCompleted, got.Status)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 100, *got.Progress)
	assert.Equal(t, "ok", got.Result)
}

func TestSubmit_NoProgressLeavesNilOnCompletion(t *testing.T) {
	m := NewManager()
	_, done := m.Submit(types.TaskArchiveCreate, "test", "", true, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		return "done", nil
	})
	<-done

	tasks := m.List()
	require.Len(t, tasks, 1)
	assert.Nil(t, tasks[0].Progress)
}

func TestSubmit_NegativeProgressClampsToLastKnown(t *testing.T) {
	m := NewManager()
	_, done := m.Submit(types.TaskArchiveCreate, "test", "", true, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		yield(types.Progress{Progress: intPtr(40)})
		yield(types.Progress{Progress: intPtr(-5)})
		<-ctx.Done()
		return nil, ctx.Err()
	})

	tasks := m.List()
	require.Len(t, tasks, 1)
	id := tasks[0].ID
	require.Eventually(t, func() bool {
		got, _ := m.Get(id)
		return got.Progress != nil && *got.Progress == 40
	}, time.Second, 5*time.Millisecond)

	require.True(t, m.Cancel(id))
	<-done
	got, _ := m.Get(id)
	assert.Equal(t, types.TaskCancelled, got.Status)
	assert.Equal(t, "cancelled", got.Error)
}

func TestSubmit_FailurePreservesProgress(t *testing.T) {
	m := NewManager()
	_, done := m.Submit(types.TaskArchiveCreate, "test", "", false, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		yield(types.Progress{Progress: intPtr(30)})
		return nil, errors.New("boom")
	})
	<-done

	tasks := m.List()
	require.Len(t, tasks, 1)
	got := tasks[0]
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 30, *got.Progress)
}

func TestCancel_NonCancellableReturnsFalse(t *testing.T) {
	m := NewManager()
	_, done := m.Submit(types.TaskArchiveCreate, "test", "", false, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		return nil, nil
	})
	tasks := m.List()
	assert.False(t, m.Cancel(tasks[0].ID))
	<-done
}

func TestCancel_UnknownTaskReturnsFalse(t *testing.T) {
	m := NewManager()
	assert.False(t, m.Cancel("does-not-exist"))
}

func TestRemove_OnlyTerminal(t *testing.T) {
	m := NewManager()
	block := make(chan struct{})
	_, done := m.Submit(types.TaskArchiveCreate, "test", "", true, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		<-block
		return nil, nil
	})
	tasks := m.List()
	id := tasks[0].ID

	assert.False(t, m.Remove(id))
	close(block)
	<-done
	assert.True(t, m.Remove(id))
	_, ok := m.Get(id)
	assert.False(t, ok)
}

func TestClearCompleted_RemovesOnlyTerminalTasks(t *testing.T) {
	m := NewManager()
	block := make(chan struct{})
	_, doneRunning := m.Submit(types.TaskArchiveCreate, "running", "", true, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		<-block
		return nil, nil
	})
	_, doneFinished := m.Submit(types.TaskArchiveCreate, "finished", "", true, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		return nil, nil
	})
	<-doneFinished

	n := m.ClearCompleted()
	assert.Equal(t, 1, n)
	assert.Len(t, m.List(), 1)

	close(block)
	<-doneRunning
}

func TestDrive_PanicBecomesFailure(t *testing.T) {
	m := NewManager()
	_, done := m.Submit(types.TaskArchiveCreate, "test", "", false, func(ctx context.Context, yield func(types.Progress)) (any, error) {
		panic("kaboom")
	})
	<-done

	tasks := m.List()
	require.Len(t, tasks, 1)
	assert.Equal(t, types.TaskFailed, tasks[0].Status)
	assert.Contains(t, tasks[0].Error, "kaboom")
}
