// Package compose drives one docker-compose project per fleet server. Each
// server owns a directory <root>/<server_id>/ containing a single
// docker-compose.yml and a data/ volume; lifecycle operations shell out to
// the docker compose CLI via pkg/execline, while status reads go through the
// Docker Engine API client to avoid re-parsing CLI table output.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/client"
	"github.com/natefinch/atomic"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/execline"
	"github.com/hearthstack/mcfleet/pkg/log"
	"github.com/hearthstack/mcfleet/pkg/types"
)

const (
	gameContainerPort = 25565
	rconContainerPort = 25575

	composeFileName = "docker-compose.yml"
	dataDirName     = "data"
	logFileRelPath  = "data/logs/latest.log"
)

// Driver implements per-server compose project operations keyed by
// <root>/<server_id>/.
type Driver struct {
	root   string
	docker *client.Client
}

// NewDriver creates a compose driver rooted at root, using a Docker Engine
// API client negotiated from the environment (DOCKER_HOST, TLS certs, etc).
func NewDriver(root string) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create servers root: %w", err)
	}
	return &Driver{root: root, docker: cli}, nil
}

// Close releases the underlying Docker client connection.
func (d *Driver) Close() error {
	return d.docker.Close()
}

func (d *Driver) projectDir(serverID string) string {
	return filepath.Join(d.root, serverID)
}

func (d *Driver) composePath(serverID string) string {
	return filepath.Join(d.projectDir(serverID), composeFileName)
}

func (d *Driver) containerName(serverID string) string {
	return requiredContainerPrefix + serverID
}

// Create validates yaml against the fleet's compose invariants, then writes
// the project directory, compose file, and data directory. It does not
// start the container.
func (d *Driver) Create(ctx context.Context, serverID string, yaml []byte) (*types.ServerInstance, error) {
	dir := d.projectDir(serverID)
	if _, err := os.Stat(dir); err == nil {
		return nil, errs.AlreadyExists(fmt.Sprintf("server %q already exists", serverID))
	}

	_, gamePort, rconPort, err := parseComposeFile(serverID, yaml)
	if err != nil {
		return nil, err
	}

	if err := d.checkPortAvailable(serverID, gamePort); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, dataDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create project directory: %w", err)
	}
	if err := atomic.WriteFile(d.composePath(serverID), bytes.NewReader(yaml)); err != nil {
		return nil, fmt.Errorf("write compose file: %w", err)
	}

	log.WithComponent("compose").Info().Str("server_id", serverID).Msg("server instance created")

	return &types.ServerInstance{
		ID:         serverID,
		ComposeDir: dir,
		GamePort:   gamePort,
		RCONPort:   rconPort,
	}, nil
}

// checkPortAvailable rejects a create whose game port collides with an
// already-registered server, since two compose projects both publishing
// the same host port can never both come up.
func (d *Driver) checkPortAvailable(serverID string, gamePort int) error {
	ids, err := d.List()
	if err != nil {
		return fmt.Errorf("list existing servers: %w", err)
	}
	for _, id := range ids {
		inst, err := d.Get(id)
		if err != nil {
			continue
		}
		if inst.GamePort == gamePort {
			return errs.AlreadyExists(fmt.Sprintf("game port %d already in use by server %q", gamePort, id))
		}
	}
	return nil
}

// Up starts a server's containers in detached mode. Idempotent: calling Up
// on an already-running project succeeds without side effects.
func (d *Driver) Up(ctx context.Context, serverID string) error {
	return d.runCompose(ctx, serverID, "up", "-d")
}

// Down stops and removes the server's container but keeps the project
// directory and data volume on disk.
func (d *Driver) Down(ctx context.Context, serverID string) error {
	if _, err := os.Stat(d.projectDir(serverID)); os.IsNotExist(err) {
		return nil
	}
	return d.runCompose(ctx, serverID, "down")
}

// Remove stops the server (if running) and deletes its project directory.
func (d *Driver) Remove(ctx context.Context, serverID string) error {
	if err := d.Down(ctx, serverID); err != nil {
		return errs.Wrap(errs.Unavailable, "stop server before removal", err)
	}
	if err := os.RemoveAll(d.projectDir(serverID)); err != nil {
		return errs.Wrap(errs.Unavailable, "remove project directory", err)
	}
	return nil
}

// Get re-reads and re-validates serverID's compose file, returning its
// resolved ports. Used by callers (the DNS reconciler's desired-state
// assembly) that need a server's game port without holding onto the
// *types.ServerInstance returned at Create time.
func (d *Driver) Get(serverID string) (*types.ServerInstance, error) {
	dir := d.projectDir(serverID)
	raw, err := os.ReadFile(d.composePath(serverID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFoundf("server %q not found", serverID)
		}
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	_, gamePort, rconPort, err := parseComposeFile(serverID, raw)
	if err != nil {
		return nil, err
	}
	return &types.ServerInstance{ID: serverID, ComposeDir: dir, GamePort: gamePort, RCONPort: rconPort}, nil
}

// List returns the server_ids present as project directories under root.
func (d *Driver) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list servers root: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// LogsTailPath returns the path to the server's active log file.
func (d *Driver) LogsTailPath(serverID string) (string, error) {
	dir := d.projectDir(serverID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", errs.NotFoundf("server %q not found", serverID)
	}
	return filepath.Join(dir, logFileRelPath), nil
}

// runCompose invokes the docker compose CLI against a server's project
// directory, returning an Unavailable-kind error on non-zero exit.
func (d *Driver) runCompose(ctx context.Context, serverID string, args ...string) error {
	dir := d.projectDir(serverID)
	fullArgs := append([]string{"compose", "-f", d.composePath(serverID), "-p", serverID}, args...)

	lines, errc := execline.Stream(ctx, "docker", fullArgs, execline.Options{Dir: dir})
	for l := range lines {
		log.WithComponent("compose").Debug().Str("server_id", serverID).Str("stream", string(l.Stream)).Msg(l.Text)
	}
	if err := <-errc; err != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("docker compose %v", args), err)
	}
	return nil
}
