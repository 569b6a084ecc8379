package compose

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthstack/mcfleet/pkg/errs"
)

func composeYAML(serverID string, gamePort, rconPort int) []byte {
	return []byte(fmt.Sprintf(`
services:
  mc:
    image: itzg/minecraft-server:latest
    container_name: mc-%s
    environment:
      - EULA=TRUE
      - VERSION=1.20.4
    ports:
      - "%d:25565"
      - "%d:25575"
`, serverID, gamePort, rconPort))
}

func TestDriver_CreateRejectsPortConflict(t *testing.T) {
	driver, err := NewDriver(t.TempDir())
	require.NoError(t, err)

	_, err = driver.Create(context.Background(), "vanilla", composeYAML("vanilla", 25565, 25575))
	require.NoError(t, err)

	_, err = driver.Create(context.Background(), "modded", composeYAML("modded", 25565, 25576))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Conflict))

	_, statErr := driver.Get("modded")
	assert.Error(t, statErr, "conflicting server's project directory must not have been created")
}

func TestDriver_CreateAllowsDistinctPorts(t *testing.T) {
	driver, err := NewDriver(t.TempDir())
	require.NoError(t, err)

	_, err = driver.Create(context.Background(), "vanilla", composeYAML("vanilla", 25565, 25575))
	require.NoError(t, err)

	_, err = driver.Create(context.Background(), "modded", composeYAML("modded", 25566, 25576))
	assert.NoError(t, err)
}
