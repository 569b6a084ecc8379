package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hearthstack/mcfleet/pkg/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Back up and restore server data via a restic-compatible repository",
}

func newSnapshotTool() snapshot.Tool {
	return snapshot.NewResticTool(cfg.Snapshot.Repository, cfg.Snapshot.PasswordFile)
}

var snapshotInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the snapshot repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newSnapshotTool().Init(context.Background())
	},
}

var snapshotBackupCmd = &cobra.Command{
	Use:   "backup <server-id>",
	Short: "Back up a server's data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := filepath.Join(cfg.Servers.RootPath, args[0], "data")
		snap, err := newSnapshotTool().Backup(context.Background(), dataDir)
		if err != nil {
			return err
		}
		fmt.Printf("snapshot %s (%s)\n", snap.ShortID, snap.ID)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list [path-filter]",
	Short: "List snapshots, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := ""
		if len(args) == 1 {
			filter = args[0]
		}
		snaps, err := newSnapshotTool().List(context.Background(), filter)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Printf("%s\t%s\t%v\n", s.ShortID, s.Time.Format("2006-01-02 15:04:05"), s.Paths)
		}
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id> <target-dir>",
	Short: "Restore a snapshot into target-dir",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newSnapshotTool().Restore(context.Background(), args[0], args[1], "")
	},
}

var snapshotForgetCmd = &cobra.Command{
	Use:   "forget <keep-last>",
	Short: "Apply retention, keeping only the most recent N snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var keepLast int
		if _, err := fmt.Sscanf(args[0], "%d", &keepLast); err != nil {
			return fmt.Errorf("invalid keep-last %q", args[0])
		}
		return newSnapshotTool().Forget(context.Background(), keepLast, true)
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotInitCmd, snapshotBackupCmd, snapshotListCmd, snapshotRestoreCmd, snapshotForgetCmd)
}
