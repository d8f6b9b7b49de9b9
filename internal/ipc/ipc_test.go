package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vidkiosk/internal/daemon"
	"vidkiosk/internal/ipc"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/orchestrator"
	"vidkiosk/internal/playback"
	"vidkiosk/internal/ratelimit"
	"vidkiosk/internal/services"
	"vidkiosk/internal/testsupport"
	"vidkiosk/internal/videourl"
)

type recordingHandler struct {
	mu      sync.Mutex
	sources []string
}

func (h *recordingHandler) Handle(ctx context.Context, raw string) orchestrator.Outcome {
	source, _ := services.SourceFromContext(ctx)
	h.mu.Lock()
	h.sources = append(h.sources, source)
	h.mu.Unlock()
	if !strings.HasPrefix(raw, "https://") {
		return orchestrator.Outcome{
			RequestID: "req-bad",
			SourceURL: raw,
			State:     orchestrator.StateRejected,
			Kind:      orchestrator.KindInvalidURL,
			Err:       orchestrator.ErrInvalidURL,
			Trace:     []orchestrator.State{orchestrator.StateReceived, orchestrator.StateRejected},
		}
	}
	return orchestrator.Outcome{
		RequestID: "req-ok",
		SourceURL: raw,
		Video:     videourl.Video{Platform: "youtube", ID: "dQw4w9WgXcQ"},
		State:     orchestrator.StateIdle,
		Trace:     []orchestrator.State{orchestrator.StateReceived, orchestrator.StatePlaying, orchestrator.StateIdle},
	}
}

type idlePlayer struct{}

func (idlePlayer) Status() playback.Status    { return playback.Status{State: playback.StateIdle} }
func (idlePlayer) Stop() bool                 { return false }
func (idlePlayer) Idle(context.Context) error { return nil }

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	now := time.Now()
	testsupport.AppendPlay(t, store, "aaaaaaaaaaa", now.Add(-2*time.Hour))
	testsupport.AppendPlay(t, store, "bbbbbbbbbbb", now.Add(-time.Hour))

	hub := logging.NewStreamHub(64)
	logger := logging.NewNop()
	handler := &recordingHandler{}
	d, err := daemon.New(cfg, daemon.Deps{
		Handler: handler,
		Player:  idlePlayer{},
		Events:  store,
		Policy:  ratelimit.StaticPolicy{MaxVideos: 3, Period: 24 * time.Hour},
	}, daemon.WithLogger(logger), daemon.WithLogHub(hub))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socket := filepath.Join(t.TempDir(), "vidkiosk.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PlaysInWindow != 2 || status.MaxVideos != 3 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.Player.State != playback.StateIdle {
		t.Fatalf("expected idle player, got %q", status.Player.State)
	}

	playResp, err := client.Play("https://youtu.be/dQw4w9WgXcQ", true)
	if err != nil {
		t.Fatalf("Play RPC failed: %v", err)
	}
	if !playResp.Queued || playResp.Outcome == nil {
		t.Fatalf("expected waited outcome, got %#v", playResp)
	}
	if playResp.Outcome.State != string(orchestrator.StateIdle) || playResp.Outcome.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected outcome %#v", playResp.Outcome)
	}
	if got := strings.Join(playResp.Outcome.Trace, ","); got != "received,playing,idle" {
		t.Fatalf("unexpected trace %q", got)
	}

	badResp, err := client.Play("not a url", true)
	if err != nil {
		t.Fatalf("Play RPC failed: %v", err)
	}
	if badResp.Outcome == nil || badResp.Outcome.Kind != string(orchestrator.KindInvalidURL) || badResp.Outcome.Error == "" {
		t.Fatalf("expected invalid url outcome, got %#v", badResp.Outcome)
	}
	if _, err := client.Play("   ", false); err == nil {
		t.Fatal("expected empty url to be refused")
	}

	handler.mu.Lock()
	sources := append([]string(nil), handler.sources...)
	handler.mu.Unlock()
	if len(sources) != 2 || sources[0] != ipc.SourceCLI {
		t.Fatalf("expected two cli requests, got %v", sources)
	}

	history, err := client.History(1)
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if len(history.Events) != 1 || history.Events[0].VideoID != "bbbbbbbbbbb" {
		t.Fatalf("unexpected history %#v", history.Events)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if stopResp.Stopped {
		t.Fatal("expected nothing to stop while idle")
	}

	hub.Publish(logging.LogEvent{Level: "INFO", Message: "first"})
	hub.Publish(logging.LogEvent{Level: "INFO", Message: "second"})
	logResp, err := client.LogTail(ipc.LogTailRequest{Limit: 10})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if len(logResp.Events) != 2 || logResp.Events[1].Message != "second" {
		t.Fatalf("unexpected log events: %#v", logResp.Events)
	}

	followDone := make(chan struct{})
	go func(since uint64) {
		defer close(followDone)
		resp, err := client.LogTail(ipc.LogTailRequest{Since: since, Follow: true, WaitMillis: 2000})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Events) != 1 || resp.Events[0].Message != "third" {
			t.Errorf("unexpected follow events: %#v", resp.Events)
		}
	}(logResp.Next)
	time.Sleep(100 * time.Millisecond)
	hub.Publish(logging.LogEvent{Level: "INFO", Message: "third"})
	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	if _, err := client.CacheList(); err == nil {
		t.Fatal("expected cache listing to fail without a cache")
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !strings.HasSuffix(dbHealth.DBPath, "vidkiosk.db") || !dbHealth.Readable {
		t.Fatalf("unexpected db health: %#v", dbHealth)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notification response %#v", notifyResp)
	}
}
