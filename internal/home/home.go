package home

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mfathy/safaribooks/internal/naming"
)

const (
	// DefaultDirName is the default name for the home directory.
	DefaultDirName = ".safaribooks"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DefaultBaseDirName is the default output root for downloaded books
	// (the base_directory setting).
	DefaultBaseDirName = "books_by_skills"

	// DefaultBookIDsDirName is the default output root for topic manifests
	// (the book_ids_directory setting).
	DefaultBookIDsDirName = "book_ids"

	// DefaultOutputDirName holds the progress file and run summaries.
	DefaultOutputDirName = "output"

	// CookieFileName is the default cookie jar file name.
	CookieFileName = "cookies.json"
)

// Dir resolves every path the job controller reads or writes: the
// configured output roots, the progress and cookie files, and the
// per-topic / per-book subtrees beneath them.
type Dir struct {
	path          string
	baseDirName   string
	bookIDsDirName string
}

// New creates a new Dir with the given path. If path is empty, uses the
// default (~/.safaribooks).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}
	return &Dir{
		path:           path,
		baseDirName:    DefaultBaseDirName,
		bookIDsDirName: DefaultBookIDsDirName,
	}, nil
}

// WithBaseDir overrides the configured output root for books
// (base_directory), which may be an absolute path or relative to Path().
func (d *Dir) WithBaseDir(name string) *Dir {
	if name != "" {
		d.baseDirName = name
	}
	return d
}

// WithBookIDsDir overrides the configured output root for topic manifests
// (book_ids_directory).
func (d *Dir) WithBookIDsDir(name string) *Dir {
	if name != "" {
		d.bookIDsDirName = name
	}
	return d
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// EnsureExists creates the home directory and its standard subdirectories.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.BaseDir(), d.BookIDsDir(), d.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (d *Dir) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.path, name)
}

// BaseDir returns the output root for downloaded books.
func (d *Dir) BaseDir() string {
	return d.resolve(d.baseDirName)
}

// BookIDsDir returns the output root for topic manifests.
func (d *Dir) BookIDsDir() string {
	return d.resolve(d.bookIDsDirName)
}

// OutputDir returns the directory holding the progress file and run
// summaries.
func (d *Dir) OutputDir() string {
	return d.resolve(DefaultOutputDirName)
}

// CookiePath returns the path to the persisted cookie file.
func (d *Dir) CookiePath() string {
	return filepath.Join(d.path, CookieFileName)
}

// TopicManifestPath returns the path of the manifest file for a topic,
// derived from the topic name via naming's folder sanitizer.
func (d *Dir) TopicManifestPath(topicName string) string {
	return filepath.Join(d.BookIDsDir(), naming.SanitizeComponent(naming.TopicFolder(topicName))+".json")
}

// TopicBookDir returns the output subfolder for a topic's books.
func (d *Dir) TopicBookDir(topicName string) string {
	return filepath.Join(d.BaseDir(), naming.TopicFolder(topicName))
}

// BookDir returns the output folder for one book within a topic.
func (d *Dir) BookDir(topicName, title, bookID string) string {
	return filepath.Join(d.TopicBookDir(topicName), naming.BookFolder(title, bookID))
}

// EnsureBookDir creates a book's output folder.
func (d *Dir) EnsureBookDir(topicName, title, bookID string) (string, error) {
	dir := d.BookDir(topicName, title, bookID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create book directory: %w", err)
	}
	return dir, nil
}
