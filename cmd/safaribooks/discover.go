package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfathy/safaribooks/internal/job"
	"github.com/mfathy/safaribooks/internal/progress"
	"github.com/mfathy/safaribooks/internal/session"
)

var flagTopicsFile string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search the provider and write a manifest of matching books per topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscoverOrDownload(cmd, true, false)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch, package, and save every book in the topic manifests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscoverOrDownload(cmd, false, true)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover then download: the full pipeline in one command",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscoverOrDownload(cmd, true, true)
	},
}

func init() {
	for _, c := range []*cobra.Command{discoverCmd, downloadCmd, runCmd} {
		c.Flags().StringVar(&flagTopicsFile, "topics", "topics.yaml", "path to the topic catalogue")
	}
}

func runDiscoverOrDownload(cmd *cobra.Command, doDiscover, doDownload bool) error {
	topics, err := loadTopics(flagTopicsFile)
	if err != nil {
		exitWith(2)
		return err
	}

	cfg := cfgMgr.Get()

	cookiePath := homeDir.CookiePath()
	if cfg.CookieFile != "" {
		cookiePath = cfg.CookieFile
	}
	sess, err := session.New(
		session.WithCookieFile(cookiePath),
		session.WithSaveInterval(cfg.TokenSaveInterval),
		session.WithProxy(cfg.ProxyAddr),
	)
	if err != nil {
		exitWith(2)
		return fmt.Errorf("create session: %w", err)
	}
	defer sess.Close()

	progressPath := cfg.ProgressFile
	if !filepath.IsAbs(progressPath) {
		progressPath = filepath.Join(homeDir.Path(), progressPath)
	}
	tracker, err := progress.Load(progressPath)
	if err != nil {
		exitWith(2)
		return fmt.Errorf("load progress: %w", err)
	}

	ctrl := job.New(sess, tracker, cfg, homeDir, flagBaseURL, logger)
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("close controller failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
	defer stop()

	var exitCode job.ExitCode

	if doDiscover {
		exitCode, err = ctrl.RunDiscovery(ctx, topics)
		if err != nil {
			if ctx.Err() != nil {
				tracker.Pause()
				if werr := ctrl.WriteSummary("interrupted"); werr != nil {
					logger.Warn("write summary failed", "err", werr)
				}
				exitWith(130)
				return nil
			}
			exitWith(int(exitCode))
			return err
		}
	}

	if doDownload {
		exitCode, err = ctrl.RunDownload(ctx, topics)
		if err != nil {
			if ctx.Err() != nil {
				tracker.Pause()
				if werr := ctrl.WriteSummary("interrupted"); werr != nil {
					logger.Warn("write summary failed", "err", werr)
				}
				exitWith(130)
				return nil
			}
			exitWith(int(exitCode))
			return err
		}
	}

	exitWith(int(exitCode))
	return nil
}
