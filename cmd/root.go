// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sourcery/internal/config"
	"sourcery/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig  string
	flagDebug   bool
	flagLogJSON bool
)

var (
	// cfg holds the loaded configuration (merged: defaults < config file < flags).
	cfg *config.Config
	// logger is built from cfg.Log once flags are applied.
	logger    *logrus.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "sourcery",
	Short: "Resolve playable media streams from many providers",
	Long: `Sourcery asks every configured provider for a movie or episode and
prints the playable streams they yield, best providers first.`,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLog,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/sourcery/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Log as JSON")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagDebug {
		cfg.Log.Level = "debug"
		cfg.Log.File = ""
	}
	if flagLogJSON {
		cfg.Log.JSON = true
	}
	if cmd.Flags().Changed("language") {
		cfg.SubsLanguage = flagLanguage
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	path, err := cfg.LogPath()
	if err != nil {
		return fmt.Errorf("resolving log path: %w", err)
	}
	logger, logCloser, err = logging.New(logging.FromConfig(cfg.Log, path))
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	logger.WithField("version", Version).Debug("configuration loaded")
	return nil
}

func closeLog(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	// Needs no config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sourcery %s\n", Version)
	},
}
