package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mfathy/safaribooks/internal/cliout"
	"github.com/mfathy/safaribooks/internal/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current progress file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgMgr.Get()

		progressPath := cfg.ProgressFile
		if !filepath.IsAbs(progressPath) {
			progressPath = filepath.Join(homeDir.Path(), progressPath)
		}

		tracker, err := progress.Load(progressPath)
		if err != nil {
			exitWith(2)
			return fmt.Errorf("load progress: %w", err)
		}

		return cliout.Output(tracker.Snapshot())
	},
}
