package compose

import (
	"context"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"

	"github.com/hearthstack/mcfleet/pkg/errs"
)

// ExecRCON runs cmd against a server's RCON console via the container's
// bundled rcon-cli, rather than speaking the RCON wire protocol directly:
// commands travel through docker exec, not through the RCON host port.
func (d *Driver) ExecRCON(ctx context.Context, serverID string, cmd string) (string, error) {
	cs, err := d.containerStatus(ctx, serverID)
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "inspect container", err)
	}
	if !cs.Running {
		return "", errs.Unavailablef("server %q is not running", serverID)
	}

	execResp, err := d.docker.ContainerExecCreate(ctx, cs.ContainerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"rcon-cli", cmd},
	})
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "create rcon exec", err)
	}

	attach, err := d.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "attach rcon exec", err)
	}
	defer attach.Close()

	out, err := io.ReadAll(attach.Reader)
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "read rcon exec output", err)
	}

	inspect, err := d.docker.ContainerExecInspect(ctx, execResp.ID)
	if err == nil && inspect.ExitCode != 0 {
		return "", errs.Unavailablef("rcon command exited %d: %s", inspect.ExitCode, strings.TrimSpace(demux(out)))
	}

	return strings.TrimSpace(demux(out)), nil
}

// demux strips Docker's 8-byte multiplexed stream header from attach output
// when present; rcon-cli emits a single short frame so one strip suffices.
func demux(b []byte) string {
	if len(b) > 8 {
		return string(b[8:])
	}
	return string(b)
}
