package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCompose = `
services:
  mc:
    image: itzg/minecraft-server:latest
    container_name: mc-abc123
    environment:
      - EULA=TRUE
      - VERSION=1.20.4
    ports:
      - "25565:25565"
      - "25575:25575"
`

func TestParseComposeFile_Valid(t *testing.T) {
	_, gamePort, rconPort, err := parseComposeFile("abc123", []byte(validCompose))
	require.NoError(t, err)
	assert.Equal(t, 25565, gamePort)
	assert.Equal(t, 25575, rconPort)
}

func TestParseComposeFile_WrongImage(t *testing.T) {
	bad := `
services:
  mc:
    image: someone/other-server:latest
    container_name: mc-abc123
    environment: [VERSION=1.20.4]
    ports: ["25565:25565", "25575:25575"]
`
	_, _, _, err := parseComposeFile("abc123", []byte(bad))
	require.Error(t, err)
	var invalid *InvalidCompose
	require.ErrorAs(t, err, &invalid)
}

func TestParseComposeFile_WrongContainerName(t *testing.T) {
	bad := `
services:
  mc:
    image: itzg/minecraft-server:latest
    container_name: wrong-name
    environment: [VERSION=1.20.4]
    ports: ["25565:25565", "25575:25575"]
`
	_, _, _, err := parseComposeFile("abc123", []byte(bad))
	require.Error(t, err)
}

func TestParseComposeFile_MissingVersionEnv(t *testing.T) {
	bad := `
services:
  mc:
    image: itzg/minecraft-server:latest
    container_name: mc-abc123
    environment: [EULA=TRUE]
    ports: ["25565:25565", "25575:25575"]
`
	_, _, _, err := parseComposeFile("abc123", []byte(bad))
	require.Error(t, err)
}

func TestParseComposeFile_MissingPort(t *testing.T) {
	bad := `
services:
  mc:
    image: itzg/minecraft-server:latest
    container_name: mc-abc123
    environment: [VERSION=1.20.4]
    ports: ["25565:25565"]
`
	_, _, _, err := parseComposeFile("abc123", []byte(bad))
	require.Error(t, err)
}

func TestParseComposeFile_MultipleServices(t *testing.T) {
	bad := `
services:
  mc:
    image: itzg/minecraft-server:latest
    container_name: mc-abc123
    environment: [VERSION=1.20.4]
    ports: ["25565:25565", "25575:25575"]
  sidecar:
    image: busybox
`
	_, _, _, err := parseComposeFile("abc123", []byte(bad))
	require.Error(t, err)
}
