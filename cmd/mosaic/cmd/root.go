// Package cmd implements the CLI commands for mosaic.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mosaictv/mosaic/internal/config"
	"github.com/mosaictv/mosaic/internal/observability"
	"github.com/mosaictv/mosaic/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// cfg is the loaded configuration, available to subcommands after
// PersistentPreRunE has run.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "mosaic",
	Short:   "IPTV multiview compositor",
	Version: version.Short(),
	Long: `mosaic composes up to five live IPTV streams into a single MPEG-TS
broadcast served over HTTP.

Channels come from an M3U playlist; layouts (picture-in-picture, splits,
grids, and free-form slots) are applied at runtime through a JSON API,
and every connected viewer receives the same composed stream.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initRuntime()
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/mosaic, $HOME/.mosaic)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initRuntime loads configuration and installs the default logger.
// CLI flags override config and environment only when explicitly set,
// preserving the flag > env > config > default priority.
func initRuntime() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		loaded.Logging.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		loaded.Logging.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	loaded.Logging.Level = strings.ToLower(loaded.Logging.Level)
	if loaded.Logging.Level == "warning" {
		loaded.Logging.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(loaded.Logging, os.Stderr)
	slog.SetDefault(logger)

	cfg = loaded
	return nil
}
