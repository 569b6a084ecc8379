// Package snapshot wraps a restic-compatible content-addressed backup
// binary. Every operation spawns the binary via pkg/execline, all but
// unlock with --json, and parses its newline-delimited JSON output; Tool is the narrow
// interface callers depend on so tests can swap in FakeTool instead of
// shelling out.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/execline"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// Tool is the capability set the snapshot engine exposes, backed either by
// a real restic binary (ResticTool) or an in-memory fake for tests.
type Tool interface {
	Init(ctx context.Context) error
	Backup(ctx context.Context, absolutePath string) (types.Snapshot, error)
	List(ctx context.Context, pathFilter string) ([]types.Snapshot, error)
	RestorePreview(ctx context.Context, id, target, includePath string) ([]types.RestoreAction, error)
	Restore(ctx context.Context, id, target, includePath string) error
	Forget(ctx context.Context, keepLast int, prune bool) error
	ListLocks(ctx context.Context) ([]string, error)
	Unlock(ctx context.Context) error
}

// ResticTool drives a real `restic` binary against repo, authenticated via
// an on-disk password file (restic's own RESTIC_PASSWORD_FILE convention).
type ResticTool struct {
	Repo         string
	PasswordFile string
	Dir          string
}

// NewResticTool builds a Tool bound to repo, using passwordFile for
// authentication (restic's RESTIC_PASSWORD_FILE environment variable).
func NewResticTool(repo, passwordFile string) *ResticTool {
	return &ResticTool{Repo: repo, PasswordFile: passwordFile}
}

func (t *ResticTool) env() []string {
	return append([]string{}, "RESTIC_REPOSITORY="+t.Repo, "RESTIC_PASSWORD_FILE="+t.PasswordFile)
}

func (t *ResticTool) run(ctx context.Context, args ...string) ([]byte, error) {
	lines, errc := execline.Stream(ctx, "restic", args, execline.Options{Env: t.env(), Dir: t.Dir})
	var out strings.Builder
	for l := range lines {
		out.WriteString(l.Text)
		out.WriteByte('\n')
	}
	if err := <-errc; err != nil {
		return nil, errs.Wrap(errs.Unavailable, "restic repository unavailable", err)
	}
	return []byte(out.String()), nil
}

// Init idempotently creates the repository if it doesn't already exist,
// treating "already initialized" as success.
func (t *ResticTool) Init(ctx context.Context) error {
	_, err := t.run(ctx, "init", "--json")
	if err != nil && strings.Contains(err.Error(), "already initialized") {
		return nil
	}
	return err
}

type resticSummary struct {
	MessageType         string `json:"message_type"`
	SnapshotID          string `json:"snapshot_id"`
	FilesNew            int    `json:"files_new"`
	TotalFilesProcessed int    `json:"total_files_processed"`
	TotalBytesProcessed int64  `json:"total_bytes_processed"`
}

// Backup runs a backup of absolutePath and parses the final "summary"
// message line restic --json emits for backup.
func (t *ResticTool) Backup(ctx context.Context, absolutePath string) (types.Snapshot, error) {
	if !filepath.IsAbs(absolutePath) {
		return types.Snapshot{}, errs.InvalidInputf("backup path %q must be absolute", absolutePath)
	}
	out, err := t.run(ctx, "backup", "--json", absolutePath)
	if err != nil {
		return types.Snapshot{}, err
	}

	var summary *resticSummary
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		var s resticSummary
		if jsonErr := json.Unmarshal(scanner.Bytes(), &s); jsonErr == nil && s.MessageType == "summary" {
			summary = &s
		}
	}
	if summary == nil {
		return types.Snapshot{}, errs.Wrap(errs.Unavailable, "restic backup produced no summary", fmt.Errorf("no summary line in output"))
	}

	return types.Snapshot{
		ID:      summary.SnapshotID,
		ShortID: shortID(summary.SnapshotID),
		Paths:   []string{absolutePath},
		Summary: &types.SnapshotSummary{
			FilesNew:            summary.FilesNew,
			TotalFilesProcessed: summary.TotalFilesProcessed,
			TotalBytesProcessed: summary.TotalBytesProcessed,
		},
	}, nil
}

type resticSnapshot struct {
	ID       string   `json:"id"`
	ShortID  string   `json:"short_id"`
	Time     string   `json:"time"`
	Paths    []string `json:"paths"`
	Hostname string   `json:"hostname"`
	Username string   `json:"username"`
}

// List returns snapshots newest-first, optionally filtered to those whose
// paths cover pathFilter.
func (t *ResticTool) List(ctx context.Context, pathFilter string) ([]types.Snapshot, error) {
	args := []string{"snapshots", "--json"}
	if pathFilter != "" {
		args = append(args, "--path", pathFilter)
	}
	out, err := t.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var raw []resticSnapshot
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse restic snapshots output: %w", err)
	}

	snaps := make([]types.Snapshot, len(raw))
	for i, r := range raw {
		snaps[len(raw)-1-i] = types.Snapshot{
			ID: r.ID, ShortID: r.ShortID, Paths: r.Paths, Hostname: r.Hostname, Username: r.Username,
		}
	}
	return snaps, nil
}

type resticRestoreLine struct {
	MessageType string `json:"message_type"`
	Action      string `json:"action"`
	Item        string `json:"item"`
	Size        int64  `json:"size"`
}

// RestorePreview runs a dry-run restore and parses the per-file action
// lines restic --json --dry-run emits.
func (t *ResticTool) RestorePreview(ctx context.Context, id, target, includePath string) ([]types.RestoreAction, error) {
	args := []string{"restore", id, "--target", target, "--json", "--dry-run", "--verbose=2"}
	if includePath != "" {
		args = append(args, "--include", includePath)
	}
	out, err := t.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var actions []types.RestoreAction
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		var l resticRestoreLine
		if jsonErr := json.Unmarshal(scanner.Bytes(), &l); jsonErr == nil && l.MessageType == "verbose_status" {
			actions = append(actions, types.RestoreAction{Action: l.Action, Item: l.Item, Size: l.Size})
		}
	}
	return actions, nil
}

// Restore restores id into target. When target is the filesystem root,
// restic's own --delete flag is added so files absent from the snapshot
// within includePath are removed, matching an in-place restore.
func (t *ResticTool) Restore(ctx context.Context, id, target, includePath string) error {
	args := []string{"restore", id, "--target", target, "--json"}
	if includePath != "" {
		args = append(args, "--include", includePath)
	}
	if target == "/" {
		args = append(args, "--delete")
	}
	_, err := t.run(ctx, args...)
	return err
}

// Forget applies retention (keep the last keepLast snapshots) and prunes
// unreferenced data when prune is set.
func (t *ResticTool) Forget(ctx context.Context, keepLast int, prune bool) error {
	args := []string{"forget", "--json", "--keep-last", fmt.Sprint(keepLast)}
	if prune {
		args = append(args, "--prune")
	}
	_, err := t.run(ctx, args...)
	return err
}

type resticLock struct {
	ID string `json:"id"`
}

// ListLocks returns the IDs of currently held repository locks.
func (t *ResticTool) ListLocks(ctx context.Context) ([]string, error) {
	out, err := t.run(ctx, "list", "locks", "--json")
	if err != nil {
		return nil, err
	}
	var locks []resticLock
	if err := json.Unmarshal(out, &locks); err != nil {
		return nil, fmt.Errorf("parse restic locks output: %w", err)
	}
	ids := make([]string, len(locks))
	for i, l := range locks {
		ids[i] = l.ID
	}
	return ids, nil
}

// Unlock removes stale repository locks.
func (t *ResticTool) Unlock(ctx context.Context) error {
	_, err := t.run(ctx, "unlock")
	return err
}

func shortID(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[:8]
}
