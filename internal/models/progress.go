package models

// Progress is the on-disk shape of the progress file. Field names and
// nesting mirror the original tool's progress file exactly, so a file
// written by either implementation loads cleanly in the other.
type Progress struct {
	Session        SessionInfo         `json:"session"`
	OverallStats   OverallStats        `json:"overall_stats"`
	BooksStats     BooksStats          `json:"books_stats"`
	Performance    Performance         `json:"performance"`
	CurrentActivity CurrentActivity    `json:"current_activity"`
	CompletedItems []string            `json:"completed_items"`
	FailedItems    map[string]FailedItem `json:"failed_items"`
	SkillsCompleted []string           `json:"skills_completed"`
	SkillsPending   []string           `json:"skills_pending"`
	Checkpoints     []Checkpoint       `json:"checkpoints"`
}

// SessionInfo identifies one run of the crawler.
type SessionInfo struct {
	StartTime  string `json:"start_time"`
	LastUpdate string `json:"last_update"`
	Status     string `json:"status"`
	SessionID  string `json:"session_id"`
	Type       string `json:"type"`
}

// Status values for SessionInfo.Status.
const (
	StatusInitialized = "initialized"
	StatusInProgress  = "in_progress"
	StatusPaused      = "paused"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// OverallStats tracks topic-level progress.
type OverallStats struct {
	TotalSkills      int    `json:"total_skills"`
	CompletedSkills  int    `json:"completed_skills"`
	InProgressSkill  string `json:"in_progress_skill"`
	FailedSkills     int    `json:"failed_skills"`
	SkippedSkills    int    `json:"skipped_skills"`
}

// BooksStats tracks book-level progress.
type BooksStats struct {
	TotalBooksDiscovered int `json:"total_books_discovered"`
	DownloadedBooks      int `json:"downloaded_books"`
	FailedBooks          int `json:"failed_books"`
	SkippedBooks         int `json:"skipped_books"`
}

// Performance carries throughput and ETA figures.
type Performance struct {
	AverageItemsPerMinute        float64 `json:"average_items_per_minute"`
	EstimatedTimeRemainingMinutes float64 `json:"estimated_time_remaining_minutes"`
	TotalElapsedSeconds          float64 `json:"total_elapsed_seconds"`
	LastSpeedCheck               string  `json:"last_speed_check"`
}

// CurrentActivity is a snapshot of what the controller is doing right now.
type CurrentActivity struct {
	CurrentSkill         string `json:"current_skill"`
	CurrentSkillProgress string `json:"current_skill_progress"`
	CurrentItem          string `json:"current_item"`
	CurrentItemID        string `json:"current_item_id"`
}

// FailedItem records why one book failed.
type FailedItem struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	OccurredAt string `json:"occurred_at"`
	Topic      string `json:"topic,omitempty"`
}

// Checkpoint is one entry in the rolling checkpoint list, recorded every
// checkpoint interval.
type Checkpoint struct {
	At             string `json:"at"`
	CompletedItems int    `json:"completed_items"`
}
