package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/hearthstack/mcfleet/pkg/compose"
	"github.com/hearthstack/mcfleet/pkg/errs"
)

type portConflictContext struct {
	driver *compose.Driver
	err    error
}

func (pc *portConflictContext) reset() {
	pc.driver = nil
	pc.err = nil
}

func portConflictYAML(serverID string, gamePort int) []byte {
	return []byte(fmt.Sprintf(`
services:
  mc:
    image: itzg/minecraft-server:latest
    container_name: mc-%s
    environment:
      - EULA=TRUE
    ports:
      - "%d:25565"
      - "%d:25575"
`, serverID, gamePort, gamePort+10))
}

func (pc *portConflictContext) aFleetWithAServerPublishingGamePort(serverID string, gamePort int) error {
	driver, err := compose.NewDriver(tempDirForScenario())
	if err != nil {
		return err
	}
	pc.driver = driver
	_, err = pc.driver.Create(context.Background(), serverID, portConflictYAML(serverID, gamePort))
	return err
}

func (pc *portConflictContext) iRequestCreationOfAServerPublishingGamePort(serverID string, gamePort int) error {
	_, pc.err = pc.driver.Create(context.Background(), serverID, portConflictYAML(serverID, gamePort))
	return nil
}

func (pc *portConflictContext) theCreationFailsWithAConflictError() error {
	if pc.err == nil {
		return fmt.Errorf("expected a conflict error, got nil")
	}
	if !errs.Is(pc.err, errs.Conflict) {
		return fmt.Errorf("expected a Conflict-kind error, got %v", pc.err)
	}
	return nil
}

func (pc *portConflictContext) theCreationSucceeds() error {
	return pc.err
}

func (pc *portConflictContext) serverDoesNotExistInTheFleet(serverID string) error {
	if _, err := pc.driver.Get(serverID); err == nil {
		return fmt.Errorf("expected server %q to not exist, but Get succeeded", serverID)
	}
	return nil
}

// InitializePortConflictScenario registers the fleet-wide game-port
// uniqueness scenarios.
func InitializePortConflictScenario(sc *godog.ScenarioContext) {
	pc := &portConflictContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		pc.reset()
		return ctx, nil
	})

	sc.Step(`^a fleet with a server "([^"]*)" publishing game port (\d+)$`, pc.aFleetWithAServerPublishingGamePort)
	sc.Step(`^I request creation of a server "([^"]*)" publishing game port (\d+)$`, pc.iRequestCreationOfAServerPublishingGamePort)
	sc.Step(`^the creation fails with a conflict error$`, pc.theCreationFailsWithAConflictError)
	sc.Step(`^the creation succeeds$`, pc.theCreationSucceeds)
	sc.Step(`^server "([^"]*)" does not exist in the fleet$`, pc.serverDoesNotExistInTheFleet)
}
