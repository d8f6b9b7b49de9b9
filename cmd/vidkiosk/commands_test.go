package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/store"
	"vidkiosk/internal/testsupport"
)

func TestStatusShowsAdmissionWindow(t *testing.T) {
	env := setupCLITestEnv(t)
	now := time.Now()
	testsupport.AppendPlay(t, env.store, "aaaaaaaaaaa", now.Add(-3*time.Hour))
	testsupport.AppendPlay(t, env.store, "bbbbbbbbbbb", now.Add(-time.Hour))

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Idle (black screen)")
	requireContains(t, out, "2 of 3 in the last 24h")
	requireContains(t, out, "available now")
	requireContains(t, out, "Not detected")
	requireContains(t, out, "0 videos")
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"running": true`)
	requireContains(t, out, `"max_videos": 3`)
}

func TestStatusWhenDaemonIsDown(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "absent.sock")
	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status without daemon should not fail: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, missing)
}

func TestPlayWaitReportsOutcome(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"play", "--wait", "https://youtu.be/dQw4w9WgXcQ"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("play --wait: %v", err)
	}
	requireContains(t, out, "Played dQw4w9WgXcQ")
	requireContains(t, out, "received -> validated")
	requireContains(t, out, "req-played")

	out, _, err = runCLI(t, []string{"play", "--wait", "hello there"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected refused link to fail the command")
	}
	requireContains(t, err.Error(), "invalid_url")
	requireContains(t, out, "Not a supported video link")
}

func TestPlayWithoutWaitQueues(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"play", "https://youtu.be/dQw4w9WgXcQ"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	requireContains(t, out, "Video queued for playback")
}

func TestStopWhenIdle(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"stop"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Nothing is playing")
}

func TestHistoryRespectsLimit(t *testing.T) {
	env := setupCLITestEnv(t)
	now := time.Now()
	testsupport.AppendPlay(t, env.store, "aaaaaaaaaaa", now.Add(-2*time.Hour))
	testsupport.AppendPlay(t, env.store, "bbbbbbbbbbb", now.Add(-time.Hour))

	out, _, err := runCLI(t, []string{"history", "--limit", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "bbbbbbbbbbb")
	if strings.Contains(out, "aaaaaaaaaaa") {
		t.Fatalf("expected only the newest play, got %s", out)
	}

	if _, _, err := runCLI(t, []string{"history", "--limit", "0"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected --limit 0 to be rejected")
	}
}

func TestHistoryEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No plays recorded")
}

func TestCacheListAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.cfg.Paths.CacheDir, "aaaaaaaaaaa.mp4")
	testsupport.WriteVideo(t, path, 2048)
	if err := env.store.PutCacheEntry(context.Background(), store.CacheEntry{
		VideoID:   "aaaaaaaaaaa",
		FilePath:  path,
		FetchedAt: time.Now().Add(-time.Hour),
		SizeBytes: 2048,
	}); err != nil {
		t.Fatalf("PutCacheEntry: %v", err)
	}

	out, _, err := runCLI(t, []string{"cache", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, "aaaaaaaaaaa")
	requireContains(t, out, "1 videos")

	out, _, err = runCLI(t, []string{"cache", "remove", "aaaaaaaaaaa"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cache remove: %v", err)
	}
	requireContains(t, out, "Removed aaaaaaaaaaa")
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected cached file to be deleted, stat err=%v", err)
	}

	out, _, err = runCLI(t, []string{"cache", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, "Cache is empty")

	if _, _, err := runCLI(t, []string{"cache", "remove", "aaaaaaaaaaa"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected removing an unknown video to fail")
	}
}

func TestCachePruneWithinBudget(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"cache", "prune"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	requireContains(t, out, "nothing removed")
}

func TestLogsPrintsRecentEvents(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, msg := range []string{"first event", "second event", "third event"} {
		env.hub.Publish(logging.LogEvent{Level: "INFO", Component: "daemon", Message: msg})
	}

	out, _, err := runCLI(t, []string{"logs", "--lines", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "[daemon] second event")
	requireContains(t, out, "third event")
	if strings.Contains(out, "first event") {
		t.Fatalf("expected only the last two events, got %s", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Ntfy topic not configured")
}

func TestCommandsReportMissingDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "absent.sock")
	_, _, err := runCLI(t, []string{"history"}, missing, env.configPath)
	if err == nil {
		t.Fatal("expected history without a daemon to fail")
	}
	requireContains(t, err.Error(), "vidkiosk run")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Policy: 3 videos per 24h")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, ""); err == nil {
		t.Fatal("expected init to refuse to overwrite")
	}
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[policy]\nmax_videos = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", t.TempDir())
	if _, _, err := runCLI(t, []string{"config", "validate"}, "", path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCheckFailsOnMissingBinary(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VIDKIOSK_NTFY_TOPIC", "")
	cfg := testsupport.NewConfig(t)
	cfg.Downloader.Binary = "definitely-missing-yt-dlp"
	cfg.Web.Enabled = false
	path := filepath.Join(testsupport.BaseDir(cfg), "vidkiosk.toml")
	writeTestConfig(t, path, cfg)

	out, _, err := runCLI(t, []string{"check"}, "", path)
	if err == nil || !strings.Contains(err.Error(), "preflight checks failed") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	requireContains(t, out, `binary "definitely-missing-yt-dlp" not found`)
	requireContains(t, out, "Data directory:")
}
