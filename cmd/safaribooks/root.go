// Command safaribooks drives the discovery and download pipeline from the
// terminal: load configuration and the session cookie jar, then run
// discovery, download, or both against a topic catalogue.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfathy/safaribooks/internal/cliout"
	"github.com/mfathy/safaribooks/internal/config"
	"github.com/mfathy/safaribooks/internal/home"
)

var (
	flagConfigFile string
	flagHomeDir    string
	flagOutput     string
	flagBaseURL    string

	homeDir *home.Dir
	cfgMgr  *config.Manager
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "safaribooks",
	Short: "Resumable crawler and e-book packager for a subscription-gated digital library",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cliout.SetOutputFormat(flagOutput)

		h, err := home.New(flagHomeDir)
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		if err := h.EnsureExists(); err != nil {
			return fmt.Errorf("prepare home directory: %w", err)
		}
		homeDir = h

		cfgFile := flagConfigFile
		if cfgFile == "" && h.ConfigExists() {
			cfgFile = h.ConfigPath()
		}
		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfgMgr = mgr

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfgMgr.Get().LogLevel)}))
		slog.SetDefault(logger)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "path to config.yaml (default: <home>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagHomeDir, "home", "", "home directory (default: ~/.safaribooks)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "yaml", "output format for status-like commands: yaml or json")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "https://learning.oreilly.com", "provider base URL")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// parseLogLevel maps a config log_level string (debug/info/warn/error) to a
// slog.Level, defaulting to info on an empty or unrecognized value.
func parseLogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if desiredExitCode == 0 {
			desiredExitCode = 2
		}
		os.Exit(desiredExitCode)
	}
	os.Exit(desiredExitCode)
}
