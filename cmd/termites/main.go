// Package main provides the CLI entrypoint for termites.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/LdDl/termites-go/internal/config"
	"github.com/LdDl/termites-go/mot"
)

var (
	verbose bool
	trace   bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "termites",
		Short:         "Termite tracking and encounter analysis",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log operator commands, storage and analyzer details")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "log per-frame telemetry")

	rootCmd.AddCommand(newTrackCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

func setupLogging() {
	writers := mot.LogWriters{Ops: os.Stderr}
	if verbose || trace {
		writers.Diag = os.Stderr
	}
	if trace {
		writers.Trace = os.Stderr
	}
	mot.SetLogWriters(writers)
}

// loadSettings resolves settings: defaults, then the config file, then flags set on cmd
func loadSettings(cmd *cobra.Command, settings *config.Settings, configPath string) error {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fileCfg.Merge(settings, cmd.Flags().Changed)
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create config file with defaults (if missing) and print its path",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(cmd *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.DefaultTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
