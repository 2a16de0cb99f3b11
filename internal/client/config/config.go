package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/openmined/calsync/internal/utils"
	"github.com/spf13/viper"
)

var (
	home, _            = os.UserHomeDir()
	DefaultStateDir    = filepath.Join(home, ".calsync")
	DefaultConfigPath  = filepath.Join(DefaultStateDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultStateDir, "logs", "calsync.log")
)

const (
	DefaultHTTPAddr         = "localhost:7939"
	DefaultMultiFilePattern = "*.ics"

	defaultLocalPollMs  = 10_000
	minLocalPollMs      = 1_000
	defaultFastPollMs   = 1_000
	defaultFastTicks    = 60
	defaultRemotePollMs = 600_000
	minRemotePollMs     = 180_000
	defaultReloaderMs   = 15_000
	defaultCacheTTLMs   = 60_000

	// enumeration of numbered entries stops after this many missing indices
	maxIndexGap = 100
)

var (
	ErrNoEntries  = errors.New("config: no valid sync entries")
	ErrIncomplete = errors.New("config: entry needs both a local path and a remote url")
)

// EntryConfig is one numbered local/remote pairing.
type EntryConfig struct {
	Index     int    `yaml:"index"`
	LocalPath string `yaml:"local_path"`
	RemoteURL string `yaml:"remote_url"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
}

type Config struct {
	Path    string        `yaml:"-"`
	Entries []EntryConfig `yaml:"entries"`

	LocalPollInterval  time.Duration `yaml:"local_poll_interval"`
	FastPollInterval   time.Duration `yaml:"fast_poll_interval"`
	FastPollTicks      int           `yaml:"fast_poll_ticks"`
	RemotePollInterval time.Duration `yaml:"remote_poll_interval"`

	Reloader      string        `yaml:"reloader,omitempty"`
	ReloaderWait  time.Duration `yaml:"reloader_wait"`
	AppCacheFiles []string      `yaml:"app_cache_files,omitempty"`

	MultiFilePattern string        `yaml:"multi_file_pattern"`
	StopNotice       bool          `yaml:"stop_notice"`
	WatchLocal       bool          `yaml:"watch_local"`
	RemoteCacheTTL   time.Duration `yaml:"remote_cache_ttl"`

	StateDir  string `yaml:"state_dir"`
	HTTPAddr  string `yaml:"http_addr"`
	HTTPToken string `yaml:"http_token,omitempty"`
}

// SetDefaults registers the default value of every non-entry key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("local_poll_interval_ms", defaultLocalPollMs)
	v.SetDefault("fast_poll_interval_ms", defaultFastPollMs)
	v.SetDefault("fast_poll_ticks", defaultFastTicks)
	v.SetDefault("remote_poll_interval_ms", defaultRemotePollMs)
	v.SetDefault("reloader", "")
	v.SetDefault("reloader_wait_ms", defaultReloaderMs)
	v.SetDefault("app_cache_files", []string{})
	v.SetDefault("multi_file_pattern", DefaultMultiFilePattern)
	v.SetDefault("stop_notice", true)
	v.SetDefault("watch_local", false)
	v.SetDefault("remote_cache_ttl_ms", defaultCacheTTLMs)
	v.SetDefault("state_dir", DefaultStateDir)
	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("http_token", "")
}

// FromViper builds the config from v. Broken entries are logged and left
// out; the remaining ones are still returned. Call Validate afterwards.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Path:               v.ConfigFileUsed(),
		LocalPollInterval:  millis(v.GetInt("local_poll_interval_ms")),
		FastPollInterval:   millis(v.GetInt("fast_poll_interval_ms")),
		FastPollTicks:      v.GetInt("fast_poll_ticks"),
		RemotePollInterval: millis(v.GetInt("remote_poll_interval_ms")),
		Reloader:           v.GetString("reloader"),
		ReloaderWait:       millis(v.GetInt("reloader_wait_ms")),
		AppCacheFiles:      v.GetStringSlice("app_cache_files"),
		MultiFilePattern:   v.GetString("multi_file_pattern"),
		StopNotice:         v.GetBool("stop_notice"),
		WatchLocal:         v.GetBool("watch_local"),
		RemoteCacheTTL:     millis(v.GetInt("remote_cache_ttl_ms")),
		StateDir:           v.GetString("state_dir"),
		HTTPAddr:           v.GetString("http_addr"),
		HTTPToken:          v.GetString("http_token"),
	}

	missing := 0
	for i := 1; missing < maxIndexGap; i++ {
		suffix := "_" + strconv.Itoa(i)
		entry := EntryConfig{
			Index:     i,
			LocalPath: v.GetString("local_path" + suffix),
			RemoteURL: v.GetString("remote_url" + suffix),
			Username:  v.GetString("username" + suffix),
			Password:  v.GetString("password" + suffix),
		}

		if entry.LocalPath == "" && entry.RemoteURL == "" {
			missing++
			continue
		}
		missing = 0

		if err := entry.Validate(); err != nil {
			slog.Error("config entry skipped", "entry", i, "error", err)
			continue
		}
		cfg.Entries = append(cfg.Entries, entry)
	}

	return cfg
}

func (e *EntryConfig) Validate() error {
	if e.LocalPath == "" || e.RemoteURL == "" {
		return ErrIncomplete
	}
	u, err := url.Parse(e.RemoteURL)
	if err != nil {
		return fmt.Errorf("remote url: %w", err)
	}
	if u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
		return fmt.Errorf("remote url %q: missing scheme or host", e.RemoteURL)
	}
	return nil
}

// Validate applies floors and defaults and resolves paths.
func (c *Config) Validate() error {
	if len(c.Entries) == 0 {
		return ErrNoEntries
	}

	if c.LocalPollInterval <= 0 {
		c.LocalPollInterval = millis(defaultLocalPollMs)
	}
	c.LocalPollInterval = max(c.LocalPollInterval, millis(minLocalPollMs))
	if c.FastPollInterval <= 0 {
		c.FastPollInterval = millis(defaultFastPollMs)
	}
	if c.FastPollTicks < 0 {
		c.FastPollTicks = 0
	}
	if c.RemotePollInterval <= 0 {
		c.RemotePollInterval = millis(defaultRemotePollMs)
	}
	c.RemotePollInterval = max(c.RemotePollInterval, millis(minRemotePollMs))
	if c.ReloaderWait <= 0 {
		c.ReloaderWait = millis(defaultReloaderMs)
	}
	if c.RemoteCacheTTL <= 0 {
		c.RemoteCacheTTL = millis(defaultCacheTTLMs)
	}
	if c.MultiFilePattern == "" {
		c.MultiFilePattern = DefaultMultiFilePattern
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}

	stateDir, err := utils.ResolvePath(c.StateDir)
	if err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	c.StateDir = stateDir

	for i, p := range c.AppCacheFiles {
		resolved, err := utils.ResolvePath(p)
		if err != nil {
			return fmt.Errorf("app cache file %q: %w", p, err)
		}
		c.AppCacheFiles[i] = resolved
	}

	if c.Path != "" {
		if p, err := utils.ResolvePath(c.Path); err == nil {
			c.Path = p
		}
	}

	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Entries = make([]EntryConfig, len(c.Entries))
	for i, e := range c.Entries {
		e.Password = utils.MaskSecret(e.Password)
		out.Entries[i] = e
	}
	out.HTTPToken = utils.MaskSecret(c.HTTPToken)
	return &out
}

func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, "calsync.lock")
}

func (c *Config) JournalPath() string {
	return filepath.Join(c.StateDir, "journal.db")
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
