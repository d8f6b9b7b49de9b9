package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidkiosk/internal/config"
)

// ConfigOption adjusts a config built by NewConfig.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig returns defaults rooted in a fresh temp directory, with the
// scanner off, the dashboard on a random local port and no free-space floor.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SoundsDir = filepath.Join(base, "sounds")
	cfgVal.Paths.SocketPath = filepath.Join(base, "vidkiosk.sock")
	cfgVal.Player.IPCSocket = filepath.Join(base, "mpv.sock")
	cfgVal.Web.Bind = "127.0.0.1:0"
	cfgVal.Scanner.Enabled = false
	cfgVal.Cache.MinFreeMiB = 0

	b := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(b)
	}
	return b.cfg
}

// WithPolicy overrides the default admission policy on the test config.
func WithPolicy(maxVideos int, periodHours float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Policy.MaxVideos = maxVideos
		b.cfg.Policy.PeriodHours = periodHours
	}
}

// WithStubbedBinaries puts do-nothing executables named names (yt-dlp and
// mpv by default) first on PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "mpv"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// WriteScript writes an executable shell script with body at path.
func WriteScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
