// Command mcfleetd is the fleet control plane's daemon and operator CLI: one
// binary that either runs the long-lived reconciliation/scheduling loops
// (serve) or issues one-shot operations (server, archive, snapshot, cron)
// against the same on-disk state those loops own.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthstack/mcfleet/pkg/config"
	"github.com/hearthstack/mcfleet/pkg/log"
)

var (
	// Version information, set via ldflags during build.
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfgFile string
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mcfleetd",
	Short: "mcfleetd - a fleet control plane for Minecraft servers",
	Long: `mcfleetd manages a fleet of independently-lifecycled Minecraft
server containers: bringing each one up/down over docker compose, keeping
DNS and L7 routing in sync with which servers are live, running scheduled
jobs such as nightly restarts, and streaming progress for long operations
like compression archives and snapshot backups.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mcfleetd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to mcfleetd config file")
	cobra.OnInitialize(initConfigAndLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(cronCmd)
}

func initConfigAndLogging() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded

	log.Init(log.Config{
		Level:      log.Level(cfg.Logging.Level),
		JSONOutput: cfg.Logging.JSONOutput,
	})
}
