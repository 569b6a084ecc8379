package compose

import (
	"context"
	"os"

	"github.com/docker/docker/client"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// Status returns the derived lifecycle status for a server, folding
// container presence/running state with RCON and game-port probe results.
func (d *Driver) Status(ctx context.Context, inst *types.ServerInstance) (types.LifecycleStatus, error) {
	cs, err := d.containerStatus(ctx, inst.ID)
	if err != nil {
		return "", err
	}

	if !cs.Exists {
		if _, statErr := os.Stat(d.projectDir(inst.ID)); os.IsNotExist(statErr) {
			return types.StatusRemoved, nil
		}
		return types.StatusExists, nil
	}
	if !cs.Running {
		return types.StatusCreated, nil
	}

	rconUp := probeTCP(ctx, inst.RCONPort)
	if !rconUp {
		return types.StatusRunning, nil
	}

	gameUp := probeGamePort(ctx, inst.GamePort)
	if !gameUp {
		return types.StatusStarting, nil
	}

	return types.StatusHealthy, nil
}

// containerStatus reads raw container existence/running state from the
// Docker Engine API, without going through a lifecycle derivation.
func (d *Driver) containerStatus(ctx context.Context, serverID string) (types.ContainerStatus, error) {
	inspect, err := d.docker.ContainerInspect(ctx, d.containerName(serverID))
	if err != nil {
		if client.IsErrNotFound(err) {
			return types.ContainerStatus{Exists: false}, nil
		}
		return types.ContainerStatus{}, err
	}
	return types.ContainerStatus{
		ContainerID: inspect.ID,
		Exists:      true,
		Running:     inspect.State != nil && inspect.State.Running,
	}, nil
}
