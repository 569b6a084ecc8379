package steps

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cucumber/godog"

	"github.com/hearthstack/mcfleet/pkg/cron"
	"github.com/hearthstack/mcfleet/pkg/types"
)

type testCronParams struct {
	Value string `json:"value"`
}

type cronRecoveryContext struct {
	manager *cron.Manager
	jobID   string
	job     *types.CronJob
	err     error
}

func (cc *cronRecoveryContext) reset() {
	if cc.manager != nil {
		cc.manager.Stop(0)
	}
	cc.manager = nil
	cc.jobID = ""
	cc.job = nil
	cc.err = nil
}

func (cc *cronRecoveryContext) aCronJobOfKindOnCronWithParam(jobID, identifier, cronExpr, value string) error {
	m, err := cron.NewManager(filepath.Join(tempDirForScenario(), "cron.db"))
	if err != nil {
		return err
	}
	m.RegisterKind(identifier, testCronParams{}, noopHandler, "acceptance test kind")

	cc.manager = m
	cc.jobID = jobID
	job, err := m.Submit(jobID, identifier, "job-under-test", cronExpr, "", testCronParams{Value: value})
	if err != nil {
		return err
	}
	cc.job = job
	return nil
}

func (cc *cronRecoveryContext) jobIsCancelled(jobID string) error {
	return cc.manager.Cancel(jobID)
}

func (cc *cronRecoveryContext) iSubmitJobAgainOnCronWithParam(jobID, cronExpr, value string) error {
	job, err := cc.manager.Submit(jobID, cc.job.Identifier, cc.job.Name, cronExpr, "", testCronParams{Value: value})
	if err != nil {
		cc.err = err
		return nil
	}
	cc.job = job
	return nil
}

func (cc *cronRecoveryContext) jobHasStatus(jobID string, status string) error {
	if cc.err != nil {
		return cc.err
	}
	stored, err := cc.manager.Get(jobID)
	if err != nil {
		return err
	}
	if string(stored.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, stored.Status)
	}
	return nil
}

func (cc *cronRecoveryContext) jobHasCronExpression(jobID, want string) error {
	stored, err := cc.manager.Get(jobID)
	if err != nil {
		return err
	}
	if stored.CronExpression != want {
		return fmt.Errorf("expected cron expression %q, got %q", want, stored.CronExpression)
	}
	return nil
}

func (cc *cronRecoveryContext) jobHasParam(jobID, want string) error {
	stored, err := cc.manager.Get(jobID)
	if err != nil {
		return err
	}
	if stored.ParamsJSON != fmt.Sprintf(`{"value":%q}`, want) {
		return fmt.Errorf("expected params_json to carry value %q, got %q", want, stored.ParamsJSON)
	}
	return nil
}

// InitializeCronRecoveryScenario registers the cron-job-recovery-on-resubmit
// scenario. Schedule-entry presence is verified indirectly: Submit returns
// an error if the cron expression can't be scheduled, so a nil error plus
// the persisted row reading ACTIVE is sufficient evidence the in-memory
// entry was replaced.
func InitializeCronRecoveryScenario(sc *godog.ScenarioContext) {
	cc := &cronRecoveryContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		cc.reset()
		return ctx, nil
	})

	sc.Step(`^a cron job "([^"]*)" of kind "([^"]*)" on cron "([^"]*)" with param "([^"]*)"$`, cc.aCronJobOfKindOnCronWithParam)
	sc.Step(`^job "([^"]*)" is cancelled$`, cc.jobIsCancelled)
	sc.Step(`^I submit job "([^"]*)" again on cron "([^"]*)" with param "([^"]*)"$`, cc.iSubmitJobAgainOnCronWithParam)
	sc.Step(`^job "([^"]*)" has status (\w+)$`, cc.jobHasStatus)
	sc.Step(`^job "([^"]*)" has cron expression "([^"]*)"$`, cc.jobHasCronExpression)
	sc.Step(`^job "([^"]*)" has param "([^"]*)"$`, cc.jobHasParam)
}
