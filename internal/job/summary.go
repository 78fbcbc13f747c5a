package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mfathy/safaribooks/internal/models"
)

// Summary is the final report of a run: totals, failed items (book id,
// kind, and first error message), and elapsed time. It is written to
// <output>/summary.json and <output>/summary.txt on completion, partial
// failure, authentication failure, interruption, or another fatal error.
type Summary struct {
	Status          string                       `json:"status"`
	StartedAt       string                       `json:"started_at"`
	FinishedAt      string                       `json:"finished_at"`
	ElapsedSeconds  float64                      `json:"elapsed_seconds"`
	TotalSkills     int                          `json:"total_skills"`
	CompletedSkills int                          `json:"completed_skills"`
	DownloadedBooks int                          `json:"downloaded_books"`
	SkippedBooks    int                          `json:"skipped_books"`
	FailedBooks     int                          `json:"failed_books"`
	FailedItems     map[string]models.FailedItem `json:"failed_items,omitempty"`
}

// BuildSummary reduces the current progress snapshot to a Summary under the
// given terminal status ("completed", "partial_failure", "auth_failed",
// "interrupted", or "failed").
func (c *Controller) BuildSummary(status string) Summary {
	snap := c.Tracker.Snapshot()
	return Summary{
		Status:          status,
		StartedAt:       snap.Session.StartTime,
		FinishedAt:      snap.Session.LastUpdate,
		ElapsedSeconds:  snap.Performance.TotalElapsedSeconds,
		TotalSkills:     snap.OverallStats.TotalSkills,
		CompletedSkills: snap.OverallStats.CompletedSkills,
		DownloadedBooks: snap.BooksStats.DownloadedBooks,
		SkippedBooks:    snap.BooksStats.SkippedBooks,
		FailedBooks:     snap.BooksStats.FailedBooks,
		FailedItems:     snap.FailedItems,
	}
}

// WriteSummary builds and persists the run summary as both summary.json and
// summary.txt in the home directory's output folder, so a run's outcome is
// readable without parsing the progress file.
func (c *Controller) WriteSummary(status string) error {
	summary := c.BuildSummary(status)
	dir := c.Home.OutputDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(dir, "summary.json"), summary); err != nil {
		return fmt.Errorf("write summary.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.txt"), []byte(renderSummaryText(summary)), 0o644); err != nil {
		return fmt.Errorf("write summary.txt: %w", err)
	}
	return nil
}

func renderSummaryText(s Summary) string {
	var sb strings.Builder
	sb.WriteString("safaribooks run summary\n")
	fmt.Fprintf(&sb, "status:           %s\n", s.Status)
	fmt.Fprintf(&sb, "started:          %s\n", s.StartedAt)
	fmt.Fprintf(&sb, "finished:         %s\n", s.FinishedAt)
	fmt.Fprintf(&sb, "elapsed:          %s\n", time.Duration(s.ElapsedSeconds*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(&sb, "skills:           %d/%d completed\n", s.CompletedSkills, s.TotalSkills)
	fmt.Fprintf(&sb, "books downloaded: %d\n", s.DownloadedBooks)
	fmt.Fprintf(&sb, "books skipped:    %d\n", s.SkippedBooks)
	fmt.Fprintf(&sb, "books failed:     %d\n", s.FailedBooks)

	if len(s.FailedItems) > 0 {
		sb.WriteString("\nfailed items:\n")
		ids := make([]string, 0, len(s.FailedItems))
		for id := range s.FailedItems {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			item := s.FailedItems[id]
			fmt.Fprintf(&sb, "  %s  [%s]  %s\n", id, item.Kind, item.Message)
		}
	}

	return sb.String()
}

// writeJSONAtomic marshals v as indented JSON and writes it to path via the
// same write-to-temp-then-rename sequence used for the topic manifest and
// progress files, so a reader never observes a half-written file.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".summary-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
