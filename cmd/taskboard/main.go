package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/taskboard/internal/config"
	"github.com/alekspetrov/taskboard/internal/logging"
)

var version = "0.1.0"

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskboard",
		Short: "Kanban board with a Slack bot and due-date reminders",
		Long: `Taskboard keeps client tasks on a kanban board, turns Slack messages into
tasks, and posts reminders to Slack before tasks are due.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.taskboard/config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newBotCmd(),
		newRemindCmd(),
		newBoardCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads and validates the config file named by --config.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// setup loads the config and initializes logging for long-running commands.
func setup() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show taskboard version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskboard v%s\n", version)
		},
	}
}
