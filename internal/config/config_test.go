package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

// resetViper clears global viper state between tests; the package uses
// the global viper instance directly rather than a scoped instance.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaseDirectory != "books_by_skills" {
		t.Errorf("unexpected base_directory: %s", cfg.BaseDirectory)
	}
	if cfg.DiscoveryAPIVersion != "v2" {
		t.Errorf("unexpected discovery_api_version: %s", cfg.DiscoveryAPIVersion)
	}
	if cfg.MaxPagesPerSkill != 100 {
		t.Errorf("unexpected max_pages_per_skill: %d", cfg.MaxPagesPerSkill)
	}
	if !cfg.Resume {
		t.Error("resume should default to true")
	}
	if cfg.EpubFormat != "dual" {
		t.Errorf("unexpected epub_format: %s", cfg.EpubFormat)
	}
}

func TestNewManager_ExplicitMissingFileIsError(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	mgr, err := NewManager(filepath.Join(dir, "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}
	_ = mgr
}

func TestNewManager_FromFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "safaribooks.yaml")
	content := "base_directory: custom_books\ndiscovery_delay: 3\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := NewManager(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := mgr.Get()
	if cfg.BaseDirectory != "custom_books" {
		t.Errorf("expected custom_books, got %s", cfg.BaseDirectory)
	}
	if cfg.DiscoveryDelay != 3 {
		t.Errorf("expected discovery_delay 3, got %v", cfg.DiscoveryDelay)
	}
	// Keys absent from the file still fall back to defaults.
	if cfg.EpubFormat != "dual" {
		t.Errorf("expected default epub_format, got %s", cfg.EpubFormat)
	}
}

func TestNewManager_EnvOverride(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "safaribooks.yaml")
	if err := os.WriteFile(cfgPath, []byte("base_directory: from_file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SAFARIBOOKS_BASE_DIRECTORY", "from_env")

	mgr, err := NewManager(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := mgr.Get().BaseDirectory; got != "from_env" {
		t.Errorf("expected env override to win, got %s", got)
	}
}

func TestOnChange(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "safaribooks.yaml")
	if err := os.WriteFile(cfgPath, []byte("base_directory: one\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := NewManager(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	called := false
	mgr.OnChange(func(cfg *Config) { called = true })

	// Directly exercise the callback plumbing without relying on a real
	// filesystem watch, which is flaky under test runners.
	mgr.mu.RLock()
	callbacks := append([]func(*Config){}, mgr.callbacks...)
	mgr.mu.RUnlock()
	for _, fn := range callbacks {
		fn(mgr.Get())
	}
	if !called {
		t.Error("expected registered callback to run")
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "safaribooks.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty default config file")
	}
}
