package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthstack/mcfleet/pkg/compose"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage per-server docker-compose projects",
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, err := compose.NewDriver(cfg.Servers.RootPath)
		if err != nil {
			return err
		}
		defer driver.Close()

		ids, err := driver.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var serverCreateCmd = &cobra.Command{
	Use:   "create <server-id> <compose-file>",
	Short: "Create a server from a docker-compose.yml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		yaml, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read compose file: %w", err)
		}
		driver, err := compose.NewDriver(cfg.Servers.RootPath)
		if err != nil {
			return err
		}
		defer driver.Close()

		inst, err := driver.Create(context.Background(), args[0], yaml)
		if err != nil {
			return err
		}
		fmt.Printf("created %s (game_port=%d rcon_port=%d)\n", inst.ID, inst.GamePort, inst.RCONPort)
		return nil
	},
}

var serverUpCmd = &cobra.Command{
	Use:   "up <server-id>",
	Short: "Start a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, err := compose.NewDriver(cfg.Servers.RootPath)
		if err != nil {
			return err
		}
		defer driver.Close()
		return driver.Up(context.Background(), args[0])
	},
}

var serverDownCmd = &cobra.Command{
	Use:   "down <server-id>",
	Short: "Stop a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, err := compose.NewDriver(cfg.Servers.RootPath)
		if err != nil {
			return err
		}
		defer driver.Close()
		return driver.Down(context.Background(), args[0])
	},
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove <server-id>",
	Short: "Remove a server's compose project and data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, err := compose.NewDriver(cfg.Servers.RootPath)
		if err != nil {
			return err
		}
		defer driver.Close()
		return driver.Remove(context.Background(), args[0])
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status <server-id>",
	Short: "Show a server's derived lifecycle status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, err := compose.NewDriver(cfg.Servers.RootPath)
		if err != nil {
			return err
		}
		defer driver.Close()

		inst, err := driver.Get(args[0])
		if err != nil {
			return err
		}
		status, err := driver.Status(context.Background(), inst)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}

var serverRCONCmd = &cobra.Command{
	Use:   "rcon <server-id> <command...>",
	Short: "Execute an RCON command against a running server",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, err := compose.NewDriver(cfg.Servers.RootPath)
		if err != nil {
			return err
		}
		defer driver.Close()

		out, err := driver.ExecRCON(context.Background(), args[0], joinArgs(args[1:]))
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

func init() {
	serverCmd.AddCommand(serverListCmd, serverCreateCmd, serverUpCmd, serverDownCmd, serverRemoveCmd, serverStatusCmd, serverRCONCmd)
}
