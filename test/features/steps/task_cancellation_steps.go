package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/hearthstack/mcfleet/pkg/task"
	"github.com/hearthstack/mcfleet/pkg/types"
)

type taskCancellationContext struct {
	manager *task.Manager
	taskID  string
	done    <-chan struct{}
}

func (tc *taskCancellationContext) reset() {
	tc.manager = task.NewManager()
	tc.taskID = ""
	tc.done = nil
}

func (tc *taskCancellationContext) aCancellableTaskWhoseGeneratorReportsProgressThenSleepsForALongTime() error {
	gen := func(ctx context.Context, yield func(types.Progress)) (any, error) {
		for i := 0; i < 3; i++ {
			p := i * 50
			yield(types.Progress{Progress: &p, Message: fmt.Sprintf("step %d", i)})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Second):
			}
		}
		return "done", nil
	}

	t, done := tc.manager.Submit(types.TaskArchiveCreate, "acceptance-test-task", "", true, gen)
	tc.taskID = t.ID
	tc.done = done
	return nil
}

func (tc *taskCancellationContext) iCancelTheTaskAfterItsFirstProgressReport() error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := tc.manager.Get(tc.taskID); ok && snap.Progress != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !tc.manager.Cancel(tc.taskID) {
		return fmt.Errorf("expected Cancel to succeed for a pending cancellable task")
	}
	return nil
}

func (tc *taskCancellationContext) theTaskReachesStatusWithinSeconds(status string, seconds int) error {
	select {
	case <-tc.done:
	case <-time.After(time.Duration(seconds) * time.Second):
		return fmt.Errorf("task did not reach a terminal state within %ds", seconds)
	}
	snap, ok := tc.manager.Get(tc.taskID)
	if !ok {
		return fmt.Errorf("task %q vanished after reaching terminal state", tc.taskID)
	}
	if string(snap.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, snap.Status)
	}
	return nil
}

func (tc *taskCancellationContext) theTasksErrorReads(want string) error {
	snap, ok := tc.manager.Get(tc.taskID)
	if !ok {
		return fmt.Errorf("task %q not found", tc.taskID)
	}
	if snap.Error != want {
		return fmt.Errorf("expected error %q, got %q", want, snap.Error)
	}
	return nil
}

func (tc *taskCancellationContext) theTaskCanStillBeFetchedByID() error {
	if _, ok := tc.manager.Get(tc.taskID); !ok {
		return fmt.Errorf("expected task %q to still be fetchable", tc.taskID)
	}
	return nil
}

func (tc *taskCancellationContext) theTaskCanBeRemoved() error {
	if !tc.manager.Remove(tc.taskID) {
		return fmt.Errorf("expected Remove to succeed for a terminal task")
	}
	return nil
}

// InitializeTaskCancellationScenario registers the task-cancellation
// scenario.
func InitializeTaskCancellationScenario(sc *godog.ScenarioContext) {
	tc := &taskCancellationContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	sc.Step(`^a cancellable task whose generator reports progress then sleeps for a long time$`, tc.aCancellableTaskWhoseGeneratorReportsProgressThenSleepsForALongTime)
	sc.Step(`^I cancel the task after its first progress report$`, tc.iCancelTheTaskAfterItsFirstProgressReport)
	sc.Step(`^the task reaches status (\w+) within (\d+) seconds?$`, tc.theTaskReachesStatusWithinSeconds)
	sc.Step(`^the task's error reads "([^"]*)"$`, tc.theTasksErrorReads)
	sc.Step(`^the task can still be fetched by ID$`, tc.theTaskCanStillBeFetchedByID)
	sc.Step(`^the task can be removed$`, tc.theTaskCanBeRemoved)
}
