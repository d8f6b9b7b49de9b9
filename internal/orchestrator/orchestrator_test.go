package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"vidkiosk/internal/orchestrator"
	"vidkiosk/internal/playback"
	"vidkiosk/internal/ratelimit"
	"vidkiosk/internal/services"
	"vidkiosk/internal/services/ytdlp"
	"vidkiosk/internal/testsupport"
	"vidkiosk/internal/videocache"
	"vidkiosk/internal/videourl"
)

type downloader struct {
	calls atomic.Int32
	err   error
}

func (d *downloader) Download(_ context.Context, _, id, destDir string, _ func(ytdlp.Progress)) (string, error) {
	d.calls.Add(1)
	if d.err != nil {
		return "", d.err
	}
	path := filepath.Join(destDir, id+".mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type player struct {
	mu      sync.Mutex
	played  []string
	active  atomic.Int32
	overlap atomic.Bool
	err     error
}

func (p *player) Play(_ context.Context, path string) error {
	if p.active.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.active.Add(-1)
	if _, err := os.Stat(path); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	p.mu.Lock()
	p.played = append(p.played, filepath.Base(path))
	p.mu.Unlock()
	return p.err
}

func (p *player) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

type feedback struct {
	success atomic.Int32
	errors  atomic.Int32
}

func (f *feedback) Success(context.Context) { f.success.Add(1) }
func (f *feedback) Error(context.Context)   { f.errors.Add(1) }

type harness struct {
	orch     *orchestrator.Orchestrator
	events   *ratelimit.MemoryLog
	dl       *downloader
	player   *player
	feedback *feedback
	clock    *testsupport.Clock
	cacheDir string
	resolver *videocache.Resolver
}

func newHarness(t *testing.T, maxVideos int, period time.Duration, opts ...orchestrator.Option) *harness {
	t.Helper()
	return newHarnessWithPlayer(t, maxVideos, period, nil, opts...)
}

func newHarnessWithPlayer(t *testing.T, maxVideos int, period time.Duration, p orchestrator.Player, opts ...orchestrator.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	h := &harness{
		events:   ratelimit.NewMemoryLog(),
		dl:       &downloader{},
		player:   &player{},
		feedback: &feedback{},
		clock:    testsupport.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		cacheDir: cfg.Paths.CacheDir,
	}
	resolver, err := videocache.New(cfg, st, h.dl, videocache.WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("videocache.New: %v", err)
	}
	h.resolver = resolver
	limiter := ratelimit.New(h.events, ratelimit.StaticPolicy{MaxVideos: maxVideos, Period: period})
	if p == nil {
		p = h.player
	}
	opts = append([]orchestrator.Option{
		orchestrator.WithClock(h.clock.Now),
		orchestrator.WithFeedback(h.feedback),
	}, opts...)
	h.orch, err = orchestrator.New(videourl.DefaultRegistry(), limiter, resolver, p, opts...)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	return h
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func TestHandleRejectsNonURL(t *testing.T) {
	h := newHarness(t, 3, 24*time.Hour)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	out := h.orch.Handle(context.Background(), "not a url")
	if out.State != orchestrator.StateRejected || out.Kind != orchestrator.KindInvalidURL {
		t.Fatalf("expected invalid url rejection, got %s/%s", out.State, out.Kind)
	}
	if !errors.Is(out.Err, orchestrator.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", out.Err)
	}
	if h.events.Len() != 0 {
		t.Fatalf("limiter state changed: %d events", h.events.Len())
	}
	if h.dl.calls.Load() != 0 {
		t.Fatalf("cache touched: %d downloads", h.dl.calls.Load())
	}
	if h.feedback.errors.Load() != 1 || h.feedback.success.Load() != 0 {
		t.Fatalf("unexpected feedback success=%d error=%d", h.feedback.success.Load(), h.feedback.errors.Load())
	}
	if out.RequestID == "" {
		t.Fatal("expected request id")
	}
}

func TestHandleEnforcesDailyLimit(t *testing.T) {
	h := newHarness(t, 3, 24*time.Hour)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ids := []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"}
	for _, id := range ids {
		out := h.orch.Handle(context.Background(), watchURL(id))
		if !out.OK() {
			t.Fatalf("play %s failed: %s/%s: %v", id, out.State, out.Kind, out.Err)
		}
		h.clock.Advance(15 * time.Second)
	}

	out := h.orch.Handle(context.Background(), watchURL("ddddddddddd"))
	if out.State != orchestrator.StateRejected || out.Kind != orchestrator.KindRateLimited {
		t.Fatalf("expected rate limit, got %s/%s", out.State, out.Kind)
	}
	if want := 24*time.Hour - 45*time.Second; out.RetryAfter != want {
		t.Fatalf("retry after %s, want %s", out.RetryAfter, want)
	}
	if !errors.Is(out.Err, orchestrator.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", out.Err)
	}
	if h.dl.calls.Load() != 3 {
		t.Fatalf("rejected request downloaded: %d downloads", h.dl.calls.Load())
	}
	if h.player.count() != 3 || h.events.Len() != 3 {
		t.Fatalf("expected 3 plays and 3 events, got %d and %d", h.player.count(), h.events.Len())
	}
	if h.feedback.success.Load() != 3 || h.feedback.errors.Load() != 1 {
		t.Fatalf("unexpected feedback success=%d error=%d", h.feedback.success.Load(), h.feedback.errors.Load())
	}
}

func TestHandleConcurrentSameVideo(t *testing.T) {
	h := newHarness(t, 3, 24*time.Hour)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var wg sync.WaitGroup
	outcomes := make([]orchestrator.Outcome, 2)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = h.orch.Handle(context.Background(), watchURL("dQw4w9WgXcQ"))
		}()
	}
	wg.Wait()

	for i, out := range outcomes {
		if !out.OK() {
			t.Fatalf("request %d failed: %s/%s: %v", i, out.State, out.Kind, out.Err)
		}
	}
	if h.dl.calls.Load() != 1 {
		t.Fatalf("expected one download, got %d", h.dl.calls.Load())
	}
	if h.player.count() != 2 {
		t.Fatalf("expected two plays, got %d", h.player.count())
	}
	if h.player.overlap.Load() {
		t.Fatal("plays overlapped")
	}
	if h.events.Len() != 2 {
		t.Fatalf("expected two play events, got %d", h.events.Len())
	}
}

func TestHandleConcurrentRequestsNeverOverspend(t *testing.T) {
	h := newHarness(t, 1, time.Hour)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ids := []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc", "ddddddddddd"}
	outcomes := make([]orchestrator.Outcome, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = h.orch.Handle(context.Background(), watchURL(id))
		}()
	}
	wg.Wait()

	played := 0
	for _, out := range outcomes {
		switch {
		case out.OK():
			played++
		case out.Kind != orchestrator.KindRateLimited:
			t.Fatalf("unexpected outcome %s/%s: %v", out.State, out.Kind, out.Err)
		}
	}
	if played != 1 || h.events.Len() != 1 {
		t.Fatalf("expected exactly one play, got %d plays and %d events", played, h.events.Len())
	}
}

func TestHandleDownloadFailureChargesNothing(t *testing.T) {
	h := newHarness(t, 3, 24*time.Hour)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h.dl.err = services.Wrap(services.ErrTransient, "download", "yt-dlp", "connection reset", nil)

	out := h.orch.Handle(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if out.State != orchestrator.StateFailed || out.Kind != orchestrator.KindNetworkFailure {
		t.Fatalf("expected network failure, got %s/%s: %v", out.State, out.Kind, out.Err)
	}
	if h.events.Len() != 0 || h.player.count() != 0 {
		t.Fatalf("failed download charged quota or played: events=%d plays=%d", h.events.Len(), h.player.count())
	}
	if h.feedback.success.Load() != 1 || h.feedback.errors.Load() != 1 {
		t.Fatalf("unexpected feedback success=%d error=%d", h.feedback.success.Load(), h.feedback.errors.Load())
	}
}

func TestHandlePlaybackOutcomes(t *testing.T) {
	cases := []struct {
		name      string
		playErr   error
		wantState orchestrator.State
		wantKind  orchestrator.Kind
		stopped   bool
	}{
		{name: "stopped", playErr: playback.ErrStopped, wantState: orchestrator.StateIdle, stopped: true},
		{name: "crash", playErr: &playback.Error{Kind: playback.KindPlayerCrashed, Err: errors.New("exit 1")},
			wantState: orchestrator.StateFailed, wantKind: orchestrator.KindPlayerCrashed},
		{name: "timeout", playErr: &playback.Error{Kind: playback.KindTimeout},
			wantState: orchestrator.StateFailed, wantKind: orchestrator.KindTimeout},
		{name: "unclassified", playErr: errors.New("boom"),
			wantState: orchestrator.StateFailed, wantKind: orchestrator.KindPlayerCrashed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 3, 24*time.Hour)
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
			h.player.err = tc.playErr

			out := h.orch.Handle(context.Background(), watchURL("dQw4w9WgXcQ"))
			if out.State != tc.wantState || out.Kind != tc.wantKind || out.Stopped != tc.stopped {
				t.Fatalf("got %s/%s stopped=%v", out.State, out.Kind, out.Stopped)
			}
			if !slices.Contains(out.Trace, orchestrator.StateIdle) {
				t.Fatalf("display did not return to idle: %v", out.Trace)
			}
			if h.events.Len() != 1 {
				t.Fatalf("play event should be recorded before playback, got %d", h.events.Len())
			}
			wantErrors := int32(1)
			if tc.wantState == orchestrator.StateIdle {
				wantErrors = 0
			}
			if h.feedback.errors.Load() != wantErrors {
				t.Fatalf("error feedback %d, want %d", h.feedback.errors.Load(), wantErrors)
			}
		})
	}
}

func TestHandleTraceOnSuccess(t *testing.T) {
	var observed []orchestrator.Outcome
	var mu sync.Mutex
	h := newHarness(t, 3, 24*time.Hour, orchestrator.WithObserver(func(_ context.Context, out orchestrator.Outcome) {
		mu.Lock()
		observed = append(observed, out)
		mu.Unlock()
	}))
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	out := h.orch.Handle(context.Background(), "  https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=42  ")
	if !out.OK() {
		t.Fatalf("expected success, got %s/%s: %v", out.State, out.Kind, out.Err)
	}
	want := []orchestrator.State{
		orchestrator.StateReceived,
		orchestrator.StateValidated,
		orchestrator.StateAdmissionChecked,
		orchestrator.StateResolved,
		orchestrator.StateAdmissionChecked,
		orchestrator.StatePlaying,
		orchestrator.StateIdle,
	}
	if len(out.Trace) != len(want) {
		t.Fatalf("trace %v, want %v", out.Trace, want)
	}
	for i := range want {
		if out.Trace[i] != want[i] {
			t.Fatalf("trace %v, want %v", out.Trace, want)
		}
	}
	if out.Video.ID != "dQw4w9WgXcQ" || out.Video.Platform != "youtube" {
		t.Fatalf("unexpected video %+v", out.Video)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0].RequestID != out.RequestID {
		t.Fatalf("observer saw %d outcomes", len(observed))
	}
}

type clockPlayer struct {
	clock *testsupport.Clock
	spend time.Duration
}

func (c *clockPlayer) Play(context.Context, string) error {
	c.clock.Advance(c.spend)
	return nil
}

func TestHandleReportsElapsed(t *testing.T) {
	cp := &clockPlayer{spend: 90 * time.Second}
	var observed orchestrator.Outcome
	h := newHarnessWithPlayer(t, 3, 24*time.Hour, cp, orchestrator.WithObserver(func(_ context.Context, out orchestrator.Outcome) {
		observed = out
	}))
	cp.clock = h.clock
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	out := h.orch.Handle(context.Background(), watchURL("dQw4w9WgXcQ"))
	if !out.OK() {
		t.Fatalf("expected success, got %s/%s: %v", out.State, out.Kind, out.Err)
	}
	if out.Elapsed != 90*time.Second {
		t.Fatalf("elapsed %s, want 1m30s", out.Elapsed)
	}
	if observed.Elapsed != out.Elapsed {
		t.Fatalf("observer elapsed %s, returned %s", observed.Elapsed, out.Elapsed)
	}

	h.clock.Advance(time.Minute)
	rejected := h.orch.Handle(context.Background(), "not a url")
	if rejected.State != orchestrator.StateRejected || rejected.Elapsed != 0 {
		t.Fatalf("rejected outcome %s elapsed %s", rejected.State, rejected.Elapsed)
	}
	if rejected.Started.IsZero() {
		t.Fatal("rejected outcome lost its start time")
	}
}

type funcPlayer func(ctx context.Context, path string) error

func (f funcPlayer) Play(ctx context.Context, path string) error { return f(ctx, path) }

func TestHandleHoldsVideoWhilePlaying(t *testing.T) {
	var h *harness
	var removeErr error
	h = newHarnessWithPlayer(t, 3, 24*time.Hour, funcPlayer(func(ctx context.Context, _ string) error {
		removeErr = h.resolver.Remove(ctx, "dQw4w9WgXcQ")
		return nil
	}))
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	out := h.orch.Handle(context.Background(), watchURL("dQw4w9WgXcQ"))
	if !out.OK() {
		t.Fatalf("expected success, got %s/%s: %v", out.State, out.Kind, out.Err)
	}
	if !errors.Is(removeErr, services.ErrValidation) {
		t.Fatalf("expected playing video to be protected, got %v", removeErr)
	}
	if err := h.resolver.Remove(context.Background(), "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("remove after playback: %v", err)
	}
}

func TestHandleCancelledWhileWaitingForSlot(t *testing.T) {
	blocking := &blockingPlayer{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarnessWithPlayer(t, 3, 24*time.Hour, blocking)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	orch := h.orch

	done := make(chan orchestrator.Outcome, 1)
	go func() { done <- orch.Handle(context.Background(), watchURL("aaaaaaaaaaa")) }()
	<-blocking.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out := orch.Handle(ctx, watchURL("bbbbbbbbbbb"))
	if out.State != orchestrator.StateFailed || out.Kind != orchestrator.KindCancelled {
		t.Fatalf("expected cancelled, got %s/%s: %v", out.State, out.Kind, out.Err)
	}
	close(blocking.release)
	if first := <-done; !first.OK() {
		t.Fatalf("first request failed: %s/%s", first.State, first.Kind)
	}
	if h.events.Len() != 1 {
		t.Fatalf("cancelled request charged quota: %d events", h.events.Len())
	}
}

type blockingPlayer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingPlayer) Play(ctx context.Context, _ string) error {
	close(b.started)
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := orchestrator.New(nil, nil, nil, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
