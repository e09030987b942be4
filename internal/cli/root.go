package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/filevars/webui/internal/config"
	"github.com/filevars/webui/internal/logger"
)

const serviceName = "filevars"

// Execute runs the root command against cfg.
func Execute(cfg *config.Config) error {
	return NewRootCmd(cfg).Execute()
}

// NewRootCmd builds the command tree. A --config flag reloads cfg from the
// named file before any subcommand runs.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "filevars",
		Short: "GitLab file variables backend",
		Long: `filevars serves a browsable GitLab group tree and a rename-safe editor
for CI/CD file variables.

Quick Start:
  • Serve the API and UI:   filevars serve
  • Rebuild the tree now:   filevars refresh
  • Print the cached tree:  filevars tree
  • Show effective config:  filevars config show`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return nil
			}
			if err := os.Setenv("FILEVARS_CONFIG", configPath); err != nil {
				return err
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a filevars.yaml file")

	rootCmd.AddCommand(
		newServeCommand(cfg),
		newRefreshCommand(cfg),
		newTreeCommand(cfg),
		newConfigCommand(cfg),
		newVersionCommand(),
	)
	return rootCmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(serviceName, cfg.LogLevel, cfg.LogFormat)
}
