package compose

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"gopkg.in/yaml.v3"
)

// requiredImagePrefix and requiredContainerPrefix pin the compose file to the
// canonical image family and the mc-<server_id> naming invariant.
const (
	requiredImagePrefix     = "itzg/minecraft-server"
	requiredContainerPrefix = "mc-"
)

// composeFile is the narrow view of a docker-compose.yml this driver cares
// about: one service, its image, container_name, environment, and port
// mappings. Unknown keys are ignored by this parse; the file is written
// from the caller's original bytes, so they are kept on disk untouched.
type composeFile struct {
	Version  string                 `yaml:"version,omitempty"`
	Services map[string]composeSvc  `yaml:"services"`
}

type composeSvc struct {
	Image         string   `yaml:"image"`
	ContainerName string   `yaml:"container_name"`
	Environment   []string `yaml:"environment,omitempty"`
	Ports         []string `yaml:"ports,omitempty"`
	Restart       string   `yaml:"restart,omitempty"`
}

// InvalidCompose is returned when a compose document fails the fleet's
// structural invariants (image family, naming, port shape).
type InvalidCompose struct {
	Reason string
}

func (e *InvalidCompose) Error() string { return "invalid compose file: " + e.Reason }

// parseComposeFile parses and validates a compose document for serverID,
// returning the resolved game and RCON host ports.
func parseComposeFile(serverID string, raw []byte) (composeFile, int, int, error) {
	var cf composeFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return cf, 0, 0, errs.Wrap(errs.InvalidInput, "parse compose yaml", &InvalidCompose{Reason: err.Error()})
	}

	if len(cf.Services) != 1 {
		return cf, 0, 0, errs.Wrap(errs.InvalidInput, "invalid compose",
			&InvalidCompose{Reason: fmt.Sprintf("expected exactly one service, got %d", len(cf.Services))})
	}

	var svc composeSvc
	for _, s := range cf.Services {
		svc = s
	}

	if !strings.HasPrefix(svc.Image, requiredImagePrefix) {
		return cf, 0, 0, errs.Wrap(errs.InvalidInput, "invalid compose",
			&InvalidCompose{Reason: fmt.Sprintf("image must start with %q, got %q", requiredImagePrefix, svc.Image)})
	}

	wantName := requiredContainerPrefix + serverID
	if svc.ContainerName != wantName {
		return cf, 0, 0, errs.Wrap(errs.InvalidInput, "invalid compose",
			&InvalidCompose{Reason: fmt.Sprintf("container_name must be %q, got %q", wantName, svc.ContainerName)})
	}

	if !hasVersionEnv(svc.Environment) {
		return cf, 0, 0, errs.Wrap(errs.InvalidInput, "invalid compose",
			&InvalidCompose{Reason: "environment must set VERSION"})
	}

	gamePort, ok := hostPortFor(svc.Ports, gameContainerPort)
	if !ok {
		return cf, 0, 0, errs.Wrap(errs.InvalidInput, "invalid compose",
			&InvalidCompose{Reason: fmt.Sprintf("missing port mapping for container port %d", gameContainerPort)})
	}
	rconPort, ok := hostPortFor(svc.Ports, rconContainerPort)
	if !ok {
		return cf, 0, 0, errs.Wrap(errs.InvalidInput, "invalid compose",
			&InvalidCompose{Reason: fmt.Sprintf("missing port mapping for container port %d", rconContainerPort)})
	}

	return cf, gamePort, rconPort, nil
}

func hasVersionEnv(env []string) bool {
	for _, e := range env {
		if strings.HasPrefix(e, "VERSION=") {
			return true
		}
	}
	return false
}

// hostPortFor returns the host-side port of a "host:container[/proto]"
// mapping whose container side matches want.
func hostPortFor(ports []string, want int) (int, bool) {
	for _, p := range ports {
		p = strings.SplitN(p, "/", 2)[0]
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			continue
		}
		containerPort, err := strconv.Atoi(parts[1])
		if err != nil || containerPort != want {
			continue
		}
		hostPort, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		return hostPort, true
	}
	return 0, false
}
