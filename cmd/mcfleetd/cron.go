package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthstack/mcfleet/pkg/compose"
	"github.com/hearthstack/mcfleet/pkg/cron"
	"github.com/hearthstack/mcfleet/pkg/task"
)

// registerCronKinds wires the closed set of job kinds this daemon supports:
// restart_server (stop then start a server's compose project). No backup
// kind is registered here.
func registerCronKinds(m *cron.Manager, driver *compose.Driver, tasks *task.Manager) {
	m.RegisterKind(cron.RestartServerIdentifier, cron.RestartServerParams{}, func(ctx context.Context, ec *cron.ExecutionContext) error {
		params, ok := ec.Params.(cron.RestartServerParams)
		if !ok {
			return fmt.Errorf("unexpected params type %T for restart_server", ec.Params)
		}
		ec.Log(fmt.Sprintf("restarting server %s", params.ServerID))
		if err := driver.Down(ctx, params.ServerID); err != nil {
			return fmt.Errorf("stop server for restart: %w", err)
		}
		if err := driver.Up(ctx, params.ServerID); err != nil {
			return fmt.Errorf("start server after restart: %w", err)
		}
		ec.Log("restart complete")
		return nil
	}, "Restart a server's compose project (down then up)")
}

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Inspect and control the durable cron schedule",
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := cron.NewManager(cfg.Cron.DatabasePath)
		if err != nil {
			return err
		}
		jobs, err := m.List()
		if err != nil {
			return err
		}
		for _, j := range jobs {
			fmt.Printf("%s\t%s\t%s\t%s\n", j.CronJobID, j.Identifier, j.CronExpression, j.Status)
		}
		return nil
	},
}

var cronPauseCmd = &cobra.Command{
	Use:   "pause <cron-job-id>",
	Short: "Pause a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := cron.NewManager(cfg.Cron.DatabasePath)
		if err != nil {
			return err
		}
		return m.Pause(args[0])
	},
}

var cronResumeCmd = &cobra.Command{
	Use:   "resume <cron-job-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := cron.NewManager(cfg.Cron.DatabasePath)
		if err != nil {
			return err
		}
		return m.Resume(args[0])
	},
}

var cronCancelCmd = &cobra.Command{
	Use:   "cancel <cron-job-id>",
	Short: "Cancel a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := cron.NewManager(cfg.Cron.DatabasePath)
		if err != nil {
			return err
		}
		return m.Cancel(args[0])
	},
}

var cronScheduleRestartCmd = &cobra.Command{
	Use:   "schedule-restart <server-id> <hour> <minute>",
	Short: "Schedule (or recompute) a server's nightly restart slot",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := cron.NewManager(cfg.Cron.DatabasePath)
		if err != nil {
			return err
		}
		var hour, minute int
		if _, err := fmt.Sscanf(args[1], "%d", &hour); err != nil {
			return fmt.Errorf("invalid hour %q", args[1])
		}
		if _, err := fmt.Sscanf(args[2], "%d", &minute); err != nil {
			return fmt.Errorf("invalid minute %q", args[2])
		}
		job, err := m.ScheduleRestart("", args[0], fmt.Sprintf("restart-%s", args[0]), hour, minute, "*", "*", "*")
		if err != nil {
			return err
		}
		fmt.Printf("scheduled %s: %s\n", job.CronJobID, job.CronExpression)
		return nil
	},
}

func init() {
	cronCmd.AddCommand(cronListCmd, cronPauseCmd, cronResumeCmd, cronCancelCmd, cronScheduleRestartCmd)
}
