package steps

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cucumber/godog"

	"github.com/hearthstack/mcfleet/pkg/cron"
)

type backupParams struct{}

type restartSlotContext struct {
	manager     *cron.Manager
	startHour   int
	startMinute int
	resultJob   string
	err         error
}

func (rc *restartSlotContext) reset() {
	if rc.manager != nil {
		rc.manager.Stop(0)
	}
	rc.manager = nil
	rc.startHour = 0
	rc.startMinute = 0
	rc.resultJob = ""
	rc.err = nil
}

func noopHandler(ctx context.Context, ec *cron.ExecutionContext) error { return nil }

func (rc *restartSlotContext) newManager() error {
	if rc.manager != nil {
		return nil
	}
	m, err := cron.NewManager(filepath.Join(tempDirForScenario(), "cron.db"))
	if err != nil {
		return err
	}
	m.RegisterKind("backup", backupParams{}, noopHandler, "periodic backup")
	m.RegisterKind(cron.RestartServerIdentifier, cron.RestartServerParams{}, noopHandler, "restart a server")
	rc.manager = m
	return nil
}

func (rc *restartSlotContext) theRestartWindowStartsAt(hhmm string) error {
	if err := rc.newManager(); err != nil {
		return err
	}
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("invalid window start %q: %w", hhmm, err)
	}
	rc.startHour, rc.startMinute = h, m
	return nil
}

func (rc *restartSlotContext) aBackupJobRunsOnCron(cronExpr string) error {
	if err := rc.newManager(); err != nil {
		return err
	}
	_, err := rc.manager.Submit("", "backup", "nightly-backup", cronExpr, "", backupParams{})
	return err
}

func (rc *restartSlotContext) serverHasARestartJobOnCron(serverID, cronExpr string) error {
	if err := rc.newManager(); err != nil {
		return err
	}
	_, err := rc.manager.Submit("", cron.RestartServerIdentifier, "restart-"+serverID, cronExpr, "",
		cron.RestartServerParams{ServerID: serverID})
	return err
}

func (rc *restartSlotContext) iScheduleARestartForServerFromTheWindowStart(serverID string) error {
	job, err := rc.manager.ScheduleRestart("", serverID, "restart-"+serverID, rc.startHour, rc.startMinute, "*", "*", "*")
	if err != nil {
		rc.err = err
		return nil
	}
	rc.resultJob = job.CronExpression
	return nil
}

func (rc *restartSlotContext) theComputedRestartSlotIsHourMinute(hour, minute int) error {
	if rc.err != nil {
		return rc.err
	}
	want := fmt.Sprintf("%d %d * * *", minute, hour)
	if rc.resultJob != want {
		return fmt.Errorf("expected cron expression %q, got %q", want, rc.resultJob)
	}
	return nil
}

// InitializeRestartSlotScenario registers the restart-slot-avoidance
// scenario.
func InitializeRestartSlotScenario(sc *godog.ScenarioContext) {
	rc := &restartSlotContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		rc.reset()
		return ctx, nil
	})

	sc.Step(`^the restart window starts at (\d{2}:\d{2})$`, rc.theRestartWindowStartsAt)
	sc.Step(`^a backup job runs on cron "([^"]*)"$`, rc.aBackupJobRunsOnCron)
	sc.Step(`^server "([^"]*)" has a restart job on cron "([^"]*)"$`, rc.serverHasARestartJobOnCron)
	sc.Step(`^I schedule a restart for server "([^"]*)" from the window start$`, rc.iScheduleARestartForServerFromTheWindowStart)
	sc.Step(`^the computed restart slot is hour (\d+) minute (\d+)$`, rc.theComputedRestartSlotIsHourMinute)
}
