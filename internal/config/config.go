package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket, and database locations.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
	SoundsDir  string `toml:"sounds_dir"`
	SocketPath string `toml:"socket_path"`
}

// Policy holds the default admission policy. The values seed the runtime
// settings table; edits made from the dashboard take precedence afterwards.
type Policy struct {
	MaxVideos   int     `toml:"max_videos"`
	PeriodHours float64 `toml:"period_hours"`
}

// Cache contains configuration for the downloaded video cache.
type Cache struct {
	MaxGiB                 int `toml:"max_gib"`
	MinFreeMiB             int `toml:"min_free_mib"`
	DownloadTimeoutSeconds int `toml:"download_timeout_seconds"`
	EventRetentionDays     int `toml:"event_retention_days"`
}

// Downloader contains configuration for the yt-dlp invocation.
type Downloader struct {
	Binary string `toml:"binary"`
	Format string `toml:"format"`
}

// Player contains configuration for the mpv display backend.
type Player struct {
	Binary                string   `toml:"binary"`
	IPCSocket             string   `toml:"ipc_socket"`
	DisplayConnectors     []string `toml:"display_connectors"`
	MaxPlayMinutes        int      `toml:"max_play_minutes"`
	StartupTimeoutSeconds int      `toml:"startup_timeout_seconds"`
	IdleImage             bool     `toml:"idle_image"`
}

// Scanner contains configuration for the evdev barcode scanner listener.
type Scanner struct {
	Enabled    bool   `toml:"enabled"`
	DevicePath string `toml:"device_path"`
	Grab       bool   `toml:"grab"`
	Hotplug    bool   `toml:"hotplug"`
}

// Web contains configuration for the parent dashboard.
type Web struct {
	Enabled        bool   `toml:"enabled"`
	Bind           string `toml:"bind"`
	RequestsPerMin int    `toml:"requests_per_minute"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Playback       bool   `toml:"playback"`
	RateLimited    bool   `toml:"rate_limited"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for vidkiosk.
//
// Configuration sections by subsystem:
//   - Paths: data, cache, log, and socket locations
//   - Policy: default admission limits
//   - Cache: disk budget and download timeout
//   - Downloader: yt-dlp binary and format selector
//   - Player: mpv binary, IPC socket, and HDMI connectors
//   - Scanner: evdev input device
//   - Web: parent dashboard bind address
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Policy        Policy        `toml:"policy"`
	Cache         Cache         `toml:"cache"`
	Downloader    Downloader    `toml:"downloader"`
	Player        Player        `toml:"player"`
	Scanner       Scanner       `toml:"scanner"`
	Web           Web           `toml:"web"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidkiosk/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strings.TrimSpace(strict.String()))
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidkiosk.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.CacheDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.SocketPath),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "vidkiosk.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidkiosk.lock")
}

// IdleImagePath returns where the generated idle screen image is stored.
func (c *Config) IdleImagePath() string {
	return filepath.Join(c.Paths.DataDir, "idle.png")
}

// PlayerSocket returns the IPC socket path for the display connector at index.
// A single-display setup uses the configured socket unchanged.
func (c *Config) PlayerSocket(index int) string {
	if index <= 0 {
		return c.Player.IPCSocket
	}
	return fmt.Sprintf("%s-%d", c.Player.IPCSocket, index)
}

// MaxPlayDuration bounds a single playback.
func (c *Config) MaxPlayDuration() time.Duration {
	return time.Duration(c.Player.MaxPlayMinutes) * time.Minute
}

// DownloadTimeout bounds a single yt-dlp download.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Cache.DownloadTimeoutSeconds) * time.Second
}

// PlayerStartupTimeout bounds how long the daemon waits for the mpv socket.
func (c *Config) PlayerStartupTimeout() time.Duration {
	return time.Duration(c.Player.StartupTimeoutSeconds) * time.Second
}

// CacheMaxBytes returns the cache budget in bytes; zero disables pruning.
func (c *Config) CacheMaxBytes() int64 {
	return int64(c.Cache.MaxGiB) * 1024 * 1024 * 1024
}

// CacheMinFreeBytes returns the free-space floor enforced before downloads.
func (c *Config) CacheMinFreeBytes() int64 {
	return int64(c.Cache.MinFreeMiB) * 1024 * 1024
}

// PolicyPeriod converts the configured period to a duration.
func (c *Config) PolicyPeriod() time.Duration {
	return time.Duration(c.Policy.PeriodHours * float64(time.Hour))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "vidkiosk", "videos")
	}
	return "~/.cache/vidkiosk/videos"
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
// The file is replaced atomically so a concurrent reader never sees a torn write.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := renameio.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
