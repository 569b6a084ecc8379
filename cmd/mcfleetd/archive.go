package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthstack/mcfleet/pkg/archive"
	"github.com/hearthstack/mcfleet/pkg/task"
	"github.com/hearthstack/mcfleet/pkg/types"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Create and extract compressed archives of server data",
}

var archiveOutputDir string

var archiveCreateCmd = &cobra.Command{
	Use:   "create <server-id> <path>",
	Short: "Compress path (relative to the server's data directory) into a .7z archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverID, relPath := args[0], args[1]
		dataDir := filepath.Join(cfg.Servers.RootPath, serverID, "data")
		outputDir := archiveOutputDir
		if outputDir == "" {
			outputDir = filepath.Join(cfg.Servers.RootPath, serverID, "archives")
		}

		tasks := task.NewManager()
		t, done := tasks.Submit(types.TaskArchiveCreate, fmt.Sprintf("archive %s:%s", serverID, relPath), serverID, true,
			archive.CreateStream(dataDir, outputDir, serverID, relPath))

		return streamTaskProgress(tasks, t.ID, done)
	},
}

var archiveExtractCmd = &cobra.Command{
	Use:   "extract <archive-path> <dest-dir>",
	Short: "Extract a .7z archive into dest-dir",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks := task.NewManager()
		t, done := tasks.Submit(types.TaskArchiveExtract, fmt.Sprintf("extract %s", args[0]), "", false,
			archive.ExtractStream(args[0], args[1]))

		return streamTaskProgress(tasks, t.ID, done)
	},
}

// streamTaskProgress polls a submitted task until it reaches a terminal
// state, printing progress as it changes.
func streamTaskProgress(tasks *task.Manager, taskID string, done <-chan struct{}) error {
	lastPct := -1
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			t, _ := tasks.Get(taskID)
			if t.Status == types.TaskFailed {
				return fmt.Errorf("task failed: %s", t.Error)
			}
			fmt.Println("done")
			return nil
		case <-ticker.C:
			t, ok := tasks.Get(taskID)
			if !ok {
				continue
			}
			if t.Progress != nil && *t.Progress != lastPct {
				lastPct = *t.Progress
				fmt.Printf("\r%3d%% %s", *t.Progress, t.Message)
			}
		}
	}
}

func init() {
	archiveCreateCmd.Flags().StringVar(&archiveOutputDir, "output-dir", "", "Directory to write the archive into (default: <server>/archives)")
	archiveCmd.AddCommand(archiveCreateCmd, archiveExtractCmd)
}
