// Package cli wires the alphawulf command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alphawulf/alphawulf-hub/config"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "alphawulf",
		Short: "AlphaWulf Hub - Telegram progression backend",
		Long: `AlphaWulf Hub tracks experience, levels, streaks and achievements
for Telegram users. It serves the Mini App API and the companion bot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewGrantCommand(opts))
	cmd.AddCommand(NewInitDataCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig reads configuration. Validation is left to the caller because
// commands need different subsets.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.App.Version == "dev" {
		cfg.App.Version = Version
	}
	return cfg, nil
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) *slog.Logger {
	log := logger.New(logger.Options{
		Level:     cfg.Observability.LogLevel,
		Format:    cfg.Observability.LogFormat,
		Output:    os.Stderr,
		AddSource: cfg.App.Debug,
	})
	return log.With(
		slog.String("app", cfg.App.Name),
		slog.String("env", string(cfg.App.Environment)),
	)
}
