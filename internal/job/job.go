// Package job orchestrates the full crawl: discovery, per-topic iteration
// in ascending expected-count order, and the per-book fetch → download →
// package pipeline, honoring the existence-based skip and the shared
// session's delay and cookie-persistence boundaries.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mfathy/safaribooks/internal/assets"
	"github.com/mfathy/safaribooks/internal/bookfetch"
	"github.com/mfathy/safaribooks/internal/config"
	"github.com/mfathy/safaribooks/internal/discovery"
	"github.com/mfathy/safaribooks/internal/epub"
	"github.com/mfathy/safaribooks/internal/home"
	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/naming"
	"github.com/mfathy/safaribooks/internal/progress"
	"github.com/mfathy/safaribooks/internal/ratelimit"
	"github.com/mfathy/safaribooks/internal/safarierr"
	"github.com/mfathy/safaribooks/internal/session"
)

// ExitCode mirrors the process exit codes this tool reports on completion.
type ExitCode int

const (
	ExitSuccess        ExitCode = 0
	ExitAuthFailed     ExitCode = 1
	ExitConfigError    ExitCode = 2
	ExitPartialFailure ExitCode = 3
	ExitInterrupted    ExitCode = 130
)

// Controller wires together every component the pipeline needs and drives
// the discover/download lifecycle.
type Controller struct {
	Session  *session.Session
	Tracker  *progress.Tracker
	Config   *config.Config
	Home     *home.Dir
	Policy   *ratelimit.Policy
	Discover *discovery.Engine
	Fetch    *bookfetch.Fetcher
	Assets   *assets.Downloader
	Log      *slog.Logger
	Ledger   *progress.FailureLedger

	BaseURL string
}

// New builds a Controller from its already-loaded dependencies. When
// cfg.FailureLedger is set, it also opens the optional SQLite failure
// ledger; a failure to open it is logged and does not prevent the
// controller from running (the progress file's failed-items map remains
// authoritative regardless).
func New(sess *session.Session, tracker *progress.Tracker, cfg *config.Config, homeDir *home.Dir, baseURL string, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	policy := ratelimit.New(
		cfg.DiscoveryDelayDuration(),
		cfg.DownloadDelayDuration(),
		cfg.SessionReuseDelayDuration(),
		1,
		log,
	)
	version := discovery.V2
	if cfg.DiscoveryAPIVersion == "v1" {
		version = discovery.V1
	}
	engine := discovery.New(sess, policy, discovery.Config{
		BaseURL:  baseURL,
		Version:  version,
		MaxBooks: cfg.MaxBooksPerSkill,
		MaxPages: cfg.MaxPagesPerSkill,
		Log:      log,
	})

	var ledger *progress.FailureLedger
	if cfg.FailureLedger {
		l, err := progress.OpenFailureLedger(filepath.Join(homeDir.OutputDir(), "failures.db"))
		if err != nil {
			log.Warn("failure ledger disabled: could not open", "err", err)
		} else {
			ledger = l
		}
	}

	return &Controller{
		Session:  sess,
		Tracker:  tracker,
		Config:   cfg,
		Home:     homeDir,
		Policy:   policy,
		Discover: engine,
		Fetch:    bookfetch.New(sess, policy, baseURL, log),
		Assets:   assets.New(sess, policy, log),
		Log:      log,
		Ledger:   ledger,
		BaseURL:  baseURL,
	}
}

// Close releases the controller's resources, currently just the optional
// failure ledger's database handle.
func (c *Controller) Close() error {
	if c.Ledger != nil {
		return c.Ledger.Close()
	}
	return nil
}

// orderedTopics sorts topics ascending by expected_count, so fast wins
// happen early and the ETA estimate stabilizes quickly. Topics with no
// known expected_count (0) sort last.
func orderedTopics(topics []models.Topic) []models.Topic {
	out := make([]models.Topic, len(topics))
	copy(out, topics)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ExpectedCount, out[j].ExpectedCount
		if a == 0 {
			return false
		}
		if b == 0 {
			return true
		}
		return a < b
	})
	return out
}

// RunDiscovery enumerates topics and writes a manifest file per topic.
func (c *Controller) RunDiscovery(ctx context.Context, topics []models.Topic) (ExitCode, error) {
	ordered := orderedTopics(topics)
	pending := make([]string, 0, len(ordered))
	for _, t := range ordered {
		pending = append(pending, t.Name)
	}
	c.Tracker.StartSession(len(ordered), 0, pending)

	for _, topic := range ordered {
		c.Tracker.BeginSkill(topic.Name)

		manifest, err := c.Discover.Discover(ctx, topic)
		if err != nil {
			if errors.Is(err, safarierr.ErrAuthFailed) {
				c.Tracker.Fail()
				if werr := c.WriteSummary("auth_failed"); werr != nil {
					c.Log.Warn("write summary failed", "err", werr)
				}
				return ExitAuthFailed, fmt.Errorf("discovery aborted: %w", err)
			}
			c.Log.Warn("discovery failed for topic, continuing", "topic", topic.Name, "err", err)
			continue
		}

		if err := writeManifest(c.Home.TopicManifestPath(topic.Name), manifest); err != nil {
			c.Tracker.Fail()
			return ExitConfigError, fmt.Errorf("write topic manifest: %w", err)
		}

		if err := c.Tracker.CompleteSkill(topic.Name); err != nil {
			return ExitConfigError, fmt.Errorf("checkpoint progress: %w", err)
		}
	}

	c.Tracker.Complete()
	if err := c.WriteSummary("completed"); err != nil {
		c.Log.Warn("write summary failed", "err", err)
	}
	return ExitSuccess, nil
}

// RunDownload iterates topic manifests (smallest first, matching the
// discovery ordering), downloading every not-yet-present book.
func (c *Controller) RunDownload(ctx context.Context, topics []models.Topic) (ExitCode, error) {
	ordered := orderedTopics(topics)
	anyFailed := false

	for _, topic := range ordered {
		manifest, err := readManifest(c.Home.TopicManifestPath(topic.Name))
		if err != nil {
			c.Log.Warn("no manifest for topic, skipping download", "topic", topic.Name, "err", err)
			continue
		}

		c.Tracker.BeginSkill(topic.Name)

		for _, ref := range manifest.Books {
			exitCode, failed, err := c.downloadOne(ctx, topic.Name, ref)
			if err != nil {
				status := "failed"
				switch exitCode {
				case ExitAuthFailed:
					status = "auth_failed"
				case ExitInterrupted:
					status = "interrupted"
				}
				if werr := c.WriteSummary(status); werr != nil {
					c.Log.Warn("write summary failed", "err", werr)
				}
				return exitCode, err
			}
			if failed {
				anyFailed = true
			}
		}

		if err := c.Tracker.CompleteSkill(topic.Name); err != nil {
			return ExitConfigError, fmt.Errorf("checkpoint progress: %w", err)
		}
	}

	c.Tracker.Complete()
	status := "completed"
	if anyFailed {
		status = "partial_failure"
	}
	if err := c.WriteSummary(status); err != nil {
		c.Log.Warn("write summary failed", "err", err)
	}
	if anyFailed {
		return ExitPartialFailure, nil
	}
	return ExitSuccess, nil
}

// downloadOne runs the existence check and, if needed, the
// fetch→download→package pipeline for a single book. The returned bool
// reports whether this book counts as a (non-fatal) failure.
func (c *Controller) downloadOne(ctx context.Context, topicName string, ref models.BookRef) (ExitCode, bool, error) {
	author := "Unknown"
	// title is fixed from the discovery reference up front, before the
	// metadata fetch, so the pre-fetch existence check and the eventual
	// output path always agree on the same folder name: if they used
	// different title sources, a completed book could be written under
	// one folder and looked for under another on a resumed run.
	title := ref.Title
	bookDir := c.Home.BookDir(topicName, title, ref.BookID)

	if !c.Config.ForceRedownload && naming.AnyEpubExists(bookDir, c.Config.EpubFormat) {
		c.Tracker.SkipItem()
		return ExitSuccess, false, nil
	}

	if err := c.Policy.Wait(ctx, ratelimit.ClassDownload); err != nil {
		return ExitInterrupted, false, err
	}

	book, coverBytes, err := c.Fetch.FetchBook(ctx, ref.BookID)
	if err != nil {
		return c.handleBookFailure(topicName, ref, err)
	}

	if len(book.Metadata.Authors) > 0 {
		author = book.Metadata.Authors[0]
	}
	title = firstNonEmpty(title, book.Metadata.Title)

	bookDir, err = c.Home.EnsureBookDir(topicName, title, ref.BookID)
	if err != nil {
		return ExitConfigError, false, fmt.Errorf("create book directory: %w", err)
	}

	result, err := c.Assets.DownloadAll(ctx, &book, bookDir, coverBytes)
	if err != nil {
		return c.handleBookFailure(topicName, ref, err)
	}
	book.Images = result.WrittenImages
	book.Stylesheets = result.WrittenStylesheets

	if err := c.packageBook(&book, bookDir, title, author); err != nil {
		return c.handleBookFailure(topicName, ref, err)
	}

	if err := c.Tracker.CompleteItem(ref.BookID); err != nil {
		return ExitConfigError, false, fmt.Errorf("record completed item: %w", err)
	}
	if err := c.Session.RecordBookDownloaded(); err != nil {
		c.Log.Warn("cookie persistence failed", "err", err)
	}
	return ExitSuccess, false, nil
}

func (c *Controller) handleBookFailure(topicName string, ref models.BookRef, err error) (ExitCode, bool, error) {
	if errors.Is(err, safarierr.ErrAuthFailed) {
		c.Tracker.Fail()
		return ExitAuthFailed, true, fmt.Errorf("job aborted: %w", err)
	}

	kind := "unknown"
	var se *safarierr.Error
	if errors.As(err, &se) {
		kind = string(se.Kind)
	}
	if ferr := c.Tracker.FailItem(ref.BookID, topicName, kind, err.Error()); ferr != nil {
		c.Log.Warn("failed to record failed item", "err", ferr)
	}
	if c.Ledger != nil {
		if lerr := c.Ledger.Record(ref.BookID, topicName, kind, err.Error()); lerr != nil {
			c.Log.Warn("failure ledger record failed", "err", lerr)
		}
	}
	c.Log.Warn("book failed, continuing", "book", ref.Title, "topic", topicName, "err", err)
	return ExitSuccess, true, nil
}

func (c *Controller) packageBook(book *models.Book, bookDir, title, author string) error {
	builder := epub.NewBuilder(book, bookDir)

	switch c.Config.EpubFormat {
	case "kindle":
		return builder.BuildProfile(filepath.Join(bookDir, naming.EpubFilename(title, author, naming.ProfileKindle)), naming.ProfileKindle)
	case "dual":
		return builder.BuildDual(
			filepath.Join(bookDir, naming.EpubFilename(title, author, naming.ProfileStandard)),
			filepath.Join(bookDir, naming.EpubFilename(title, author, naming.ProfileKindle)),
		)
	default: // "legacy", "enhanced"
		return builder.Build(filepath.Join(bookDir, naming.EpubFilename(title, author, naming.ProfileStandard)))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeManifest(path string, manifest models.TopicManifest) error {
	return writeJSONAtomic(path, manifest)
}

func readManifest(path string) (models.TopicManifest, error) {
	var manifest models.TopicManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest, err
	}
	err = json.Unmarshal(data, &manifest)
	return manifest, err
}
