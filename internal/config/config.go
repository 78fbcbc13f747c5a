// Package config loads and hot-reloads the crawler's configuration from a
// YAML file, environment variables (SAFARIBOOKS_ prefix), and an optional
// .env file for local credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the exact set of YAML/env-overridable keys plus the two
// ambient keys LogLevel and FailureLedger.
type Config struct {
	BaseDirectory        string  `mapstructure:"base_directory" yaml:"base_directory"`
	BookIDsDirectory      string  `mapstructure:"book_ids_directory" yaml:"book_ids_directory"`
	DiscoveryAPIVersion  string  `mapstructure:"discovery_api_version" yaml:"discovery_api_version"`
	MaxBooksPerSkill     int     `mapstructure:"max_books_per_skill" yaml:"max_books_per_skill"`
	MaxPagesPerSkill     int     `mapstructure:"max_pages_per_skill" yaml:"max_pages_per_skill"`
	DiscoveryDelay       float64 `mapstructure:"discovery_delay" yaml:"discovery_delay"`
	DownloadDelay        float64 `mapstructure:"download_delay" yaml:"download_delay"`
	SessionReuseDelay    float64 `mapstructure:"session_reuse_delay" yaml:"session_reuse_delay"`
	EpubFormat           string  `mapstructure:"epub_format" yaml:"epub_format"`
	Resume               bool    `mapstructure:"resume" yaml:"resume"`
	ForceRedownload      bool    `mapstructure:"force_redownload" yaml:"force_redownload"`
	TokenSaveInterval    int     `mapstructure:"token_save_interval" yaml:"token_save_interval"`
	ProgressFile         string  `mapstructure:"progress_file" yaml:"progress_file"`

	// LogLevel and FailureLedger are ambient keys carried by this Go
	// implementation, not part of the original provider-facing contract.
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	FailureLedger bool   `mapstructure:"failure_ledger" yaml:"failure_ledger"`

	// CookieFile and ProxyAddr configure the session core; they have no
	// default beyond "unset" and are typically supplied via env rather
	// than committed to the YAML file. An unset CookieFile means the
	// cookie jar in the home directory.
	CookieFile string `mapstructure:"cookie_file" yaml:"cookie_file,omitempty"`
	ProxyAddr  string `mapstructure:"proxy_addr" yaml:"proxy_addr,omitempty"`
}

// DiscoveryDelayDuration returns DiscoveryDelay as a time.Duration.
func (c *Config) DiscoveryDelayDuration() time.Duration {
	return time.Duration(c.DiscoveryDelay * float64(time.Second))
}

// DownloadDelayDuration returns DownloadDelay as a time.Duration.
func (c *Config) DownloadDelayDuration() time.Duration {
	return time.Duration(c.DownloadDelay * float64(time.Second))
}

// SessionReuseDelayDuration returns SessionReuseDelay as a time.Duration.
func (c *Config) SessionReuseDelayDuration() time.Duration {
	return time.Duration(c.SessionReuseDelay * float64(time.Second))
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseDirectory:     "books_by_skills",
		BookIDsDirectory:  "book_ids",
		DiscoveryAPIVersion: "v2",
		MaxBooksPerSkill:  0, // 0 means unlimited
		MaxPagesPerSkill:  100,
		DiscoveryDelay:    1.5,
		DownloadDelay:     10,
		SessionReuseDelay: 2,
		EpubFormat:        "dual",
		Resume:            true,
		ForceRedownload:   false,
		TokenSaveInterval: 5,
		ProgressFile:      "output/safaribooks_progress.json",
		LogLevel:          "info",
		FailureLedger:     false,
	}
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager, loads any .env file in the
// working directory, and loads the initial configuration.
func NewManager(cfgFile string) (*Manager, error) {
	// .env is best-effort: local dev convenience only, never required.
	_ = godotenv.Load()

	cm := &Manager{}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("base_directory", defaults.BaseDirectory)
	viper.SetDefault("book_ids_directory", defaults.BookIDsDirectory)
	viper.SetDefault("discovery_api_version", defaults.DiscoveryAPIVersion)
	viper.SetDefault("max_books_per_skill", defaults.MaxBooksPerSkill)
	viper.SetDefault("max_pages_per_skill", defaults.MaxPagesPerSkill)
	viper.SetDefault("discovery_delay", defaults.DiscoveryDelay)
	viper.SetDefault("download_delay", defaults.DownloadDelay)
	viper.SetDefault("session_reuse_delay", defaults.SessionReuseDelay)
	viper.SetDefault("epub_format", defaults.EpubFormat)
	viper.SetDefault("resume", defaults.Resume)
	viper.SetDefault("force_redownload", defaults.ForceRedownload)
	viper.SetDefault("token_save_interval", defaults.TokenSaveInterval)
	viper.SetDefault("progress_file", defaults.ProgressFile)
	viper.SetDefault("log_level", defaults.LogLevel)
	viper.SetDefault("failure_ledger", defaults.FailureLedger)
	viper.SetDefault("cookie_file", defaults.CookieFile)
	viper.SetDefault("proxy_addr", defaults.ProxyAddr)

	viper.SetEnvPrefix("SAFARIBOOKS")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("safaribooks")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.safaribooks")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback invoked with the new config after every
// hot-reload triggered by WatchConfig.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of the config file: the delay knobs
// and other config keys can be tuned without restarting a long-running
// discovery job. The topic catalogue is not watched.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# safaribooks configuration
# Session cookies and proxy address are normally supplied via
# SAFARIBOOKS_COOKIE_FILE / SAFARIBOOKS_PROXY_ADDR rather than committed here.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
