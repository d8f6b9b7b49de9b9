package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vidkiosk/internal/config"
	"vidkiosk/internal/daemon"
	"vidkiosk/internal/ipc"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/orchestrator"
	"vidkiosk/internal/playback"
	"vidkiosk/internal/ratelimit"
	"vidkiosk/internal/services/ytdlp"
	"vidkiosk/internal/store"
	"vidkiosk/internal/testsupport"
	"vidkiosk/internal/videocache"
	"vidkiosk/internal/videourl"
)

// scriptedHandler plays every https link and refuses anything else.
type scriptedHandler struct {
	mu   sync.Mutex
	seen []string
}

func (h *scriptedHandler) Handle(_ context.Context, raw string) orchestrator.Outcome {
	h.mu.Lock()
	h.seen = append(h.seen, raw)
	h.mu.Unlock()
	if !strings.HasPrefix(raw, "https://") {
		return orchestrator.Outcome{
			RequestID: "req-refused",
			SourceURL: raw,
			State:     orchestrator.StateRejected,
			Kind:      orchestrator.KindInvalidURL,
			Err:       orchestrator.ErrInvalidURL,
			Trace:     []orchestrator.State{orchestrator.StateReceived, orchestrator.StateRejected},
		}
	}
	return orchestrator.Outcome{
		RequestID: "req-played",
		SourceURL: raw,
		Video:     videourl.Video{Platform: "youtube", ID: "dQw4w9WgXcQ"},
		State:     orchestrator.StateIdle,
		Trace: []orchestrator.State{
			orchestrator.StateReceived,
			orchestrator.StateValidated,
			orchestrator.StateAdmissionChecked,
			orchestrator.StateResolved,
			orchestrator.StatePlaying,
			orchestrator.StateIdle,
		},
	}
}

type idlePlayer struct{}

func (idlePlayer) Status() playback.Status    { return playback.Status{State: playback.StateIdle} }
func (idlePlayer) Stop() bool                 { return false }
func (idlePlayer) Idle(context.Context) error { return nil }

type noDownloads struct{}

func (noDownloads) Download(context.Context, string, string, string, func(ytdlp.Progress)) (string, error) {
	return "", os.ErrNotExist
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	hub        *logging.StreamHub
	handler    *scriptedHandler
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("VIDKIOSK_NTFY_TOPIC", "")
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "vidkiosk.toml")
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	resolver, err := videocache.New(cfg, st, noDownloads{})
	if err != nil {
		t.Fatalf("videocache.New: %v", err)
	}

	hub := logging.NewStreamHub(64)
	logger := logging.NewNop()
	handler := &scriptedHandler{}
	d, err := daemon.New(cfg, daemon.Deps{
		Handler: handler,
		Player:  idlePlayer{},
		Events:  st,
		Policy:  ratelimit.StaticPolicy{MaxVideos: 3, Period: 24 * time.Hour},
		Cache:   resolver,
	}, daemon.WithLogger(logger), daemon.WithLogHub(hub))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		hub:        hub,
		handler:    handler,
		daemon:     d,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
