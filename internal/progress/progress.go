// Package progress maintains and persists the crawler's run state: topic
// and book totals, the failed-items map, ETA figures, and rolling
// checkpoints.
package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfathy/safaribooks/internal/models"
)

// CheckpointInterval is the number of completed topics between rolling
// checkpoint entries.
const CheckpointInterval = 10

// Tracker owns the in-memory Progress state and serializes it to disk.
// Every mutating method takes the single mutex; disk writes always go
// through write-to-temp-then-rename.
type Tracker struct {
	mu   sync.Mutex
	path string
	data *models.Progress

	// extra holds any top-level keys present in a loaded progress file that
	// models.Progress does not know about, so a file written by a newer (or
	// foreign) version round-trips through this Tracker without losing them.
	extra map[string]json.RawMessage

	startedAt time.Time
}

// New creates a fresh Tracker, not yet backed by any file. Call Load to
// read an existing progress file first when resuming.
func New(path string) *Tracker {
	now := time.Now()
	return &Tracker{
		path:      path,
		startedAt: now,
		data:      newProgress(now),
	}
}

func newProgress(now time.Time) *models.Progress {
	return &models.Progress{
		Session: models.SessionInfo{
			StartTime:  now.UTC().Format(time.RFC3339),
			LastUpdate: now.UTC().Format(time.RFC3339),
			Status:     models.StatusInitialized,
			SessionID:  uuid.New().String(),
			Type:       "download",
		},
		CompletedItems: []string{},
		FailedItems:    map[string]models.FailedItem{},
		SkillsCompleted: []string{},
		SkillsPending:   []string{},
		Checkpoints:     []models.Checkpoint{},
	}
}

// Load reads an existing progress file if present, upgrading a prior
// version's simpler shape by filling in any missing fields with
// defaults. A missing file is not an error: the Tracker keeps its
// freshly-initialized state.
func Load(path string) (*Tracker, error) {
	t := New(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress file: %w", err)
	}

	var existing models.Progress
	if err := json.Unmarshal(data, &existing); err != nil {
		return nil, fmt.Errorf("parse progress file: %w", err)
	}
	upgrade(&existing)

	startedAt, err := time.Parse(time.RFC3339, existing.Session.StartTime)
	if err != nil {
		startedAt = time.Now()
	}

	t.data = &existing
	t.startedAt = startedAt
	t.extra = unknownTopLevelFields(data)
	return t, nil
}

// knownProgressKeys returns the set of json tag names models.Progress
// declares, derived via reflection so it never drifts from the struct.
func knownProgressKeys() map[string]bool {
	known := make(map[string]bool)
	typ := reflect.TypeOf(models.Progress{})
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("json")
		name := strings.Split(tag, ",")[0]
		if name != "" {
			known[name] = true
		}
	}
	return known
}

// unknownTopLevelFields picks out the raw top-level keys in data that
// models.Progress has no field for, so they can be merged back in on the
// next save instead of being silently dropped.
func unknownTopLevelFields(data []byte) map[string]json.RawMessage {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	known := knownProgressKeys()
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}
	return extra
}

// upgrade fills in fields a prior, simpler progress file shape may not
// have carried, without discarding anything unknown it does carry.
func upgrade(p *models.Progress) {
	if p.Session.SessionID == "" {
		p.Session.SessionID = uuid.New().String()
	}
	if p.Session.Status == "" {
		p.Session.Status = models.StatusInitialized
	}
	if p.Session.Type == "" {
		p.Session.Type = "download"
	}
	if p.CompletedItems == nil {
		p.CompletedItems = []string{}
	}
	if p.FailedItems == nil {
		p.FailedItems = map[string]models.FailedItem{}
	}
	if p.SkillsCompleted == nil {
		p.SkillsCompleted = []string{}
	}
	if p.SkillsPending == nil {
		p.SkillsPending = []string{}
	}
	if p.Checkpoints == nil {
		p.Checkpoints = []models.Checkpoint{}
	}
}

// Snapshot returns a copy of the current progress state.
func (t *Tracker) Snapshot() models.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.data
}

// StartSession records the totals known at the start of a run and
// transitions the status to in_progress once work begins.
func (t *Tracker) StartSession(totalSkills, totalBooksDiscovered int, pending []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.OverallStats.TotalSkills = totalSkills
	t.data.BooksStats.TotalBooksDiscovered = totalBooksDiscovered
	t.data.SkillsPending = pending
	t.data.Session.Status = models.StatusInProgress
	t.touch()
}

// BeginSkill records the topic currently being processed.
func (t *Tracker) BeginSkill(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.OverallStats.InProgressSkill = name
	t.data.CurrentActivity.CurrentSkill = name
	t.touch()
}

// CompleteItem records a successfully downloaded book.
func (t *Tracker) CompleteItem(bookID string) error {
	t.mu.Lock()
	t.data.CompletedItems = append(t.data.CompletedItems, bookID)
	t.data.BooksStats.DownloadedBooks++
	t.recomputePerformanceLocked()
	t.touch()
	t.mu.Unlock()
	return t.save()
}

// FailItem records a failed book, keyed by book ID.
func (t *Tracker) FailItem(bookID, topic string, kind, message string) error {
	t.mu.Lock()
	t.data.FailedItems[bookID] = models.FailedItem{
		Kind:       kind,
		Message:    message,
		Topic:      topic,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	t.data.BooksStats.FailedBooks++
	t.touch()
	t.mu.Unlock()
	return t.save()
}

// SkipItem records a book skipped by the existence check.
func (t *Tracker) SkipItem() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.BooksStats.SkippedBooks++
	t.touch()
}

// CompleteSkill marks a topic as finished and checkpoints every
// CheckpointInterval topics.
func (t *Tracker) CompleteSkill(name string) error {
	t.mu.Lock()
	t.data.SkillsCompleted = append(t.data.SkillsCompleted, name)
	t.data.OverallStats.CompletedSkills++
	t.data.OverallStats.InProgressSkill = ""
	t.removePending(name)

	checkpoint := len(t.data.SkillsCompleted)%CheckpointInterval == 0
	if checkpoint {
		t.recordCheckpointLocked()
	}
	t.touch()
	t.mu.Unlock()
	return t.save()
}

func (t *Tracker) removePending(name string) {
	out := t.data.SkillsPending[:0]
	for _, p := range t.data.SkillsPending {
		if p != name {
			out = append(out, p)
		}
	}
	t.data.SkillsPending = out
}

func (t *Tracker) recordCheckpointLocked() {
	t.data.Checkpoints = append(t.data.Checkpoints, models.Checkpoint{
		At:             time.Now().UTC().Format(time.RFC3339),
		CompletedItems: len(t.data.CompletedItems),
	})
}

// Pause transitions the tracker to paused (on SIGINT) and flushes.
func (t *Tracker) Pause() error {
	t.mu.Lock()
	t.data.Session.Status = models.StatusPaused
	t.touch()
	t.mu.Unlock()
	return t.save()
}

// Complete transitions the tracker to completed and flushes.
func (t *Tracker) Complete() error {
	t.mu.Lock()
	t.data.Session.Status = models.StatusCompleted
	t.touch()
	t.mu.Unlock()
	return t.save()
}

// Fail transitions the tracker to failed and flushes.
func (t *Tracker) Fail() error {
	t.mu.Lock()
	t.data.Session.Status = models.StatusFailed
	t.touch()
	t.mu.Unlock()
	return t.save()
}

func (t *Tracker) touch() {
	t.data.Session.LastUpdate = time.Now().UTC().Format(time.RFC3339)
}

// recomputePerformanceLocked computes the ETA: speed is completed items
// per elapsed minute; when speed is negligible or elapsed is under a
// second, the estimate is reported as unknown (zero).
func (t *Tracker) recomputePerformanceLocked() {
	elapsed := time.Since(t.startedAt)
	t.data.Performance.TotalElapsedSeconds = elapsed.Seconds()
	t.data.Performance.LastSpeedCheck = time.Now().UTC().Format(time.RFC3339)

	completed := float64(len(t.data.CompletedItems))
	const epsilon = 1e-9

	if elapsed.Seconds() < 1 {
		t.data.Performance.AverageItemsPerMinute = 0
		t.data.Performance.EstimatedTimeRemainingMinutes = 0
		return
	}

	speedPerSecond := completed / elapsed.Seconds()
	t.data.Performance.AverageItemsPerMinute = speedPerSecond * 60

	if speedPerSecond < epsilon {
		t.data.Performance.EstimatedTimeRemainingMinutes = 0
		return
	}

	total := float64(t.data.BooksStats.TotalBooksDiscovered)
	remainingItems := math.Max(0, total-completed)
	remainingSeconds := remainingItems / speedPerSecond
	t.data.Performance.EstimatedTimeRemainingMinutes = remainingSeconds / 60
}

// Save flushes the current state to disk unconditionally, used on
// graceful shutdown and SIGINT.
func (t *Tracker) Save() error {
	return t.save()
}

// marshalLocked serializes t.data, merging back in any unknown top-level
// keys captured at Load time so a file written by a newer version of
// models.Progress round-trips through this Tracker unchanged. Callers must
// hold t.mu.
func (t *Tracker) marshalLocked() ([]byte, error) {
	direct, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return nil, err
	}
	if len(t.extra) == 0 {
		return direct, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(direct, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.MarshalIndent(merged, "", "  ")
}

func (t *Tracker) save() error {
	t.mu.Lock()
	data, err := t.marshalLocked()
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	dir := filepath.Dir(t.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create progress directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".progress-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp progress file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp progress file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp progress file: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename progress file: %w", err)
	}
	return nil
}
