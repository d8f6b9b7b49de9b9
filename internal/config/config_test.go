package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vidkiosk/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("VIDKIOSK_NTFY_TOPIC", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "vidkiosk")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	wantCache := filepath.Join(tempHome, ".cache", "vidkiosk", "videos")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.Policy.MaxVideos != 3 {
		t.Fatalf("expected max_videos default 3, got %d", cfg.Policy.MaxVideos)
	}
	if cfg.PolicyPeriod() != 24*time.Hour {
		t.Fatalf("expected 24h period, got %s", cfg.PolicyPeriod())
	}
	if cfg.Downloader.Format != "best[height<=720]/best" {
		t.Fatalf("unexpected downloader format %q", cfg.Downloader.Format)
	}
	if cfg.Web.Bind != "0.0.0.0:8080" {
		t.Fatalf("unexpected web bind: %q", cfg.Web.Bind)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "vidkiosk.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.CacheDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vidkiosk.toml")

	type payload struct {
		Paths struct {
			DataDir  string `toml:"data_dir"`
			CacheDir string `toml:"cache_dir"`
		} `toml:"paths"`
		Policy struct {
			MaxVideos   int     `toml:"max_videos"`
			PeriodHours float64 `toml:"period_hours"`
		} `toml:"policy"`
		Player struct {
			DisplayConnectors []string `toml:"display_connectors"`
		} `toml:"player"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Paths.CacheDir = filepath.Join(tempDir, "cache")
	custom.Policy.MaxVideos = 5
	custom.Policy.PeriodHours = 12
	custom.Player.DisplayConnectors = []string{" HDMI-A-1 ", "HDMI-A-2", "HDMI-A-1", ""}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Policy.MaxVideos != 5 {
		t.Fatalf("expected max_videos 5, got %d", cfg.Policy.MaxVideos)
	}
	if cfg.PolicyPeriod() != 12*time.Hour {
		t.Fatalf("expected 12h period, got %s", cfg.PolicyPeriod())
	}
	want := []string{"HDMI-A-1", "HDMI-A-2"}
	if strings.Join(cfg.Player.DisplayConnectors, ",") != strings.Join(want, ",") {
		t.Fatalf("expected deduplicated connectors %v, got %v", want, cfg.Player.DisplayConnectors)
	}
	if got := cfg.PlayerSocket(1); got != cfg.Player.IPCSocket+"-1" {
		t.Fatalf("unexpected second player socket %q", got)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vidkiosk.toml")
	if err := os.WriteFile(configPath, []byte("[policy]\nmax_vidoes = 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestNtfyTopicFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VIDKIOSK_NTFY_TOPIC", "kiosk-alerts")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "kiosk-alerts" {
		t.Fatalf("expected topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "max_videos = 3") {
		t.Fatalf("sample config missing policy defaults: %s", contents)
	}

	t.Setenv("HOME", t.TempDir())
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if !strings.Contains(cfg.Paths.DataDir, "vidkiosk") {
		t.Fatalf("expected data dir to contain vidkiosk, got %q", cfg.Paths.DataDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero max videos", func(c *config.Config) { c.Policy.MaxVideos = 0 }},
		{"negative period", func(c *config.Config) { c.Policy.PeriodHours = -1 }},
		{"retention shorter than period", func(c *config.Config) {
			c.Policy.PeriodHours = 24 * 40
			c.Cache.EventRetentionDays = 30
		}},
		{"zero play minutes", func(c *config.Config) { c.Player.MaxPlayMinutes = 0 }},
		{"bad bind", func(c *config.Config) { c.Web.Bind = "8080" }},
		{"cache equals data", func(c *config.Config) { c.Paths.CacheDir = c.Paths.DataDir }},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
