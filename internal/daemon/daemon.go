package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"vidkiosk/internal/config"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/notifications"
	"vidkiosk/internal/orchestrator"
	"vidkiosk/internal/playback"
	"vidkiosk/internal/ratelimit"
	"vidkiosk/internal/scanner"
	"vidkiosk/internal/services"
	"vidkiosk/internal/store"
	"vidkiosk/internal/videocache"
)

// QueueCapacity bounds how many requests may wait for the worker.
const QueueCapacity = 8

var (
	// ErrNotRunning is returned when a request arrives before Start or after Stop.
	ErrNotRunning = errors.New("daemon not running")
	// ErrQueueFull is returned when QueueCapacity requests are already waiting.
	ErrQueueFull = errors.New("request queue full")

	errCacheUnavailable = errors.New("video cache unavailable")
)

// Handler turns one raw input into a terminal outcome.
type Handler interface {
	Handle(ctx context.Context, raw string) orchestrator.Outcome
}

// Player is the playback controller surface the daemon needs.
type Player interface {
	Status() playback.Status
	Stop() bool
	Idle(ctx context.Context) error
}

// Events is the play history the daemon reports on and prunes.
type Events interface {
	EventsSince(ctx context.Context, since time.Time) ([]store.PlayEvent, error)
	RecentEvents(ctx context.Context, limit int) ([]store.PlayEvent, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cache is the video cache surface exposed for maintenance.
type Cache interface {
	Stats(ctx context.Context) (videocache.Stats, error)
	List(ctx context.Context) ([]store.CacheEntry, error)
	Remove(ctx context.Context, videoID string) error
	Prune(ctx context.Context, keepID string) (videocache.PruneResult, error)
	CleanPartials() error
}

// Scanner reports which input device is being read.
type Scanner interface {
	Current() (scanner.Device, bool)
}

// Deps lists the collaborators a Daemon drives.
type Deps struct {
	Handler  Handler
	Player   Player
	Events   Events
	Policy   ratelimit.PolicySource
	Cache    Cache
	Notifier notifications.Service
}

type service struct {
	name string
	run  func(ctx context.Context) error
}

type request struct {
	source string
	raw    string
	reply  chan orchestrator.Outcome
}

// Daemon runs the request worker and background services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	deps     Deps
	logger   *slog.Logger
	now      func() time.Time
	hub      *logging.StreamHub
	osd      OSD
	scanner  Scanner
	services []service
	prepare  []service
	// activeLogs are never removed by log retention.
	activeLogs []string

	retentionInterval time.Duration
	osdInterval       time.Duration

	lockPath string
	lock     *flock.Flock

	queue   chan request
	debug   atomic.Bool
	running atomic.Bool
	last    atomic.Pointer[OutcomeSummary]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// OutcomeSummary is the serializable record of the last handled request.
type OutcomeSummary struct {
	RequestID string        `json:"request_id"`
	Source    string        `json:"source,omitempty"`
	VideoID   string        `json:"video_id,omitempty"`
	State     string        `json:"state"`
	Kind      string        `json:"kind,omitempty"`
	Message   string        `json:"message"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	At        time.Time     `json:"at"`
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool              `json:"running"`
	PID           int               `json:"pid"`
	Player        playback.Status   `json:"player"`
	VideoID       string            `json:"video_id,omitempty"`
	MaxVideos     int               `json:"max_videos"`
	Period        time.Duration     `json:"period_ns"`
	PlaysInWindow int               `json:"plays_in_window"`
	RetryAfter    time.Duration     `json:"retry_after_ns"`
	QueueDepth    int               `json:"queue_depth"`
	ScannerDevice string            `json:"scanner_device,omitempty"`
	DebugMode     bool              `json:"debug_mode"`
	Cache         *videocache.Stats `json:"cache,omitempty"`
	LastOutcome   *OutcomeSummary   `json:"last_outcome,omitempty"`
	DatabasePath  string            `json:"database_path"`
	LockPath      string            `json:"lock_path"`
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the daemon logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		if now != nil {
			d.now = now
		}
	}
}

// WithScanner reports the scanner device in Status.
func WithScanner(s Scanner) Option {
	return func(d *Daemon) {
		d.scanner = s
	}
}

// WithService runs fn under the daemon lifecycle. A non-nil error from fn
// other than a context error stops the daemon.
func WithService(name string, fn func(ctx context.Context) error) Option {
	return func(d *Daemon) {
		if fn != nil {
			d.services = append(d.services, service{name: name, run: fn})
		}
	}
}

// WithPrepare registers a step that runs once the lock is held and before the
// worker starts. A failing step aborts Start.
func WithPrepare(name string, fn func(ctx context.Context) error) Option {
	return func(d *Daemon) {
		if fn != nil {
			d.prepare = append(d.prepare, service{name: name, run: fn})
		}
	}
}

// WithLogHub exposes recent log events to Logs and the debug overlay.
func WithLogHub(hub *logging.StreamHub) Option {
	return func(d *Daemon) {
		d.hub = hub
	}
}

// WithDebugOverlay renders the log hub tail on osd while debug mode is on.
func WithDebugOverlay(osd OSD) Option {
	return func(d *Daemon) {
		d.osd = osd
	}
}

// WithDebugMode sets the initial debug mode.
func WithDebugMode(enabled bool) Option {
	return func(d *Daemon) {
		d.debug.Store(enabled)
	}
}

// WithActiveLog protects the current run's log file from retention.
func WithActiveLog(path string) Option {
	return func(d *Daemon) {
		if path != "" {
			d.activeLogs = append(d.activeLogs, path)
		}
	}
}

// WithRetentionInterval sets how often old play events and logs are pruned.
func WithRetentionInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		if interval > 0 {
			d.retentionInterval = interval
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Daemon, error) {
	if cfg == nil || deps.Handler == nil || deps.Player == nil || deps.Events == nil || deps.Policy == nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "new",
			"daemon requires config, handler, player, events, and policy", nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	d := &Daemon{
		cfg:               cfg,
		deps:              deps,
		logger:            logging.NewNop(),
		now:               time.Now,
		retentionInterval: 6 * time.Hour,
		osdInterval:       time.Second,
		lockPath:          cfg.LockPath(),
		queue:             make(chan request, QueueCapacity),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "daemon")
	d.lock = flock.New(d.lockPath)
	return d, nil
}

// Start acquires the daemon lock, returns the screen to idle, and launches the
// worker and background services.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if dir := filepath.Dir(d.lockPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create lock directory: %w", err)
		}
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidkiosk daemon instance is already running")
	}

	for _, step := range d.prepare {
		if err := step.run(ctx); err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if d.deps.Cache != nil {
		if err := d.deps.Cache.CleanPartials(); err != nil {
			d.logger.Warn("partial download cleanup failed", logging.Error(err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(runCtx)
	for _, svc := range d.services {
		group.Go(func() error {
			err := svc.run(gctx)
			if err != nil && gctx.Err() == nil {
				logging.ErrorWithContext(d.logger, "background service stopped", "service_failed",
					logging.String("service", svc.name),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "inspect the log lines above for the root cause"),
					logging.String(logging.FieldImpact, "daemon is shutting down"),
				)
				return fmt.Errorf("%s: %w", svc.name, err)
			}
			return nil
		})
	}
	group.Go(func() error {
		d.work(gctx)
		return nil
	})
	group.Go(func() error {
		d.retain(gctx)
		return nil
	})
	if d.hub != nil && d.osd != nil {
		group.Go(func() error {
			d.overlay(gctx)
			return nil
		})
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	d.err = nil
	done := d.done
	go func() {
		err := group.Wait()
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		close(done)
	}()

	if err := d.deps.Player.Idle(ctx); err != nil {
		d.logger.Warn("initial idle screen failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "idle_failed"),
			logging.String(logging.FieldErrorHint, "check that mpv is running on the configured display"),
		)
	}

	d.running.Store(true)
	d.logger.Info("vidkiosk daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("services", len(d.services)),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Done is closed once the worker and every background service have
// returned, either after Stop or because a service failed.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d.done
}

// Err reports why the daemon stopped on its own, if it did.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Stop interrupts any playback, stops background processing, and releases
// the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	d.running.Store(false)
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("vidkiosk daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Submit queues raw input from source. When wait is true the returned
// channel receives the outcome once the request has been handled.
func (d *Daemon) Submit(source, raw string, wait bool) (<-chan orchestrator.Outcome, error) {
	if !d.running.Load() {
		return nil, ErrNotRunning
	}
	req := request{source: strings.TrimSpace(source), raw: raw}
	if req.source == "" {
		req.source = "unknown"
	}
	if wait {
		req.reply = make(chan orchestrator.Outcome, 1)
	}
	select {
	case d.queue <- req:
		return req.reply, nil
	default:
		logging.WarnWithContext(d.logger, "request dropped; queue full", "queue_full",
			logging.String(logging.FieldSource, req.source),
			logging.Int("capacity", QueueCapacity),
			logging.String(logging.FieldErrorHint, "wait for the current video to finish"),
			logging.String(logging.FieldImpact, "scan ignored"),
		)
		return nil, ErrQueueFull
	}
}

// Enqueue queues raw input and reports whether it was accepted.
func (d *Daemon) Enqueue(source, raw string) bool {
	_, err := d.Submit(source, raw, false)
	return err == nil
}

// StopPlayback interrupts the current video, if any.
func (d *Daemon) StopPlayback() bool {
	stopped := d.deps.Player.Stop()
	if stopped {
		d.logger.Info("playback stop requested", logging.String(logging.FieldEventType, "playback_stop_requested"))
	}
	return stopped
}

// SetDebugMode toggles the on-screen log overlay.
func (d *Daemon) SetDebugMode(enabled bool) {
	if d.debug.Swap(enabled) != enabled {
		d.logger.Info("debug overlay toggled", logging.Bool("enabled", enabled))
	}
}

// History returns the most recent play events, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]store.PlayEvent, error) {
	return d.deps.Events.RecentEvents(ctx, limit)
}

// Logs returns log events after since. With wait set it blocks until one
// arrives or ctx ends.
func (d *Daemon) Logs(ctx context.Context, since uint64, limit int, wait bool) ([]logging.LogEvent, uint64, error) {
	if d.hub == nil {
		return nil, since, nil
	}
	return d.hub.Fetch(ctx, since, limit, wait)
}

// CachedVideos lists the cache catalog with current usage.
func (d *Daemon) CachedVideos(ctx context.Context) ([]store.CacheEntry, videocache.Stats, error) {
	if d.deps.Cache == nil {
		return nil, videocache.Stats{}, errCacheUnavailable
	}
	entries, err := d.deps.Cache.List(ctx)
	if err != nil {
		return nil, videocache.Stats{}, err
	}
	stats, err := d.deps.Cache.Stats(ctx)
	if err != nil {
		return nil, videocache.Stats{}, err
	}
	return entries, stats, nil
}

// RemoveCached deletes a cached video unless it is on screen.
func (d *Daemon) RemoveCached(ctx context.Context, videoID string) error {
	if d.deps.Cache == nil {
		return errCacheUnavailable
	}
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return services.Wrap(services.ErrValidation, "cache", "remove", "video id is required", nil)
	}
	if playing := videoIDFromPath(d.deps.Player.Status().File); playing == videoID {
		return services.Wrap(services.ErrValidation, "cache", "remove",
			fmt.Sprintf("video %s is playing", videoID), nil)
	}
	return d.deps.Cache.Remove(ctx, videoID)
}

// PruneCache trims the cache to its budget, keeping the video on screen.
func (d *Daemon) PruneCache(ctx context.Context) (videocache.PruneResult, error) {
	if d.deps.Cache == nil {
		return videocache.PruneResult{}, errCacheUnavailable
	}
	return d.deps.Cache.Prune(ctx, videoIDFromPath(d.deps.Player.Status().File))
}

// DatabaseHealth reports database diagnostics when the event log supports it.
func (d *Daemon) DatabaseHealth(ctx context.Context) (store.DatabaseHealth, error) {
	checker, ok := d.deps.Events.(interface {
		CheckHealth(ctx context.Context) (store.DatabaseHealth, error)
	})
	if !ok {
		return store.DatabaseHealth{}, errors.New("database health unavailable")
	}
	return checker.CheckHealth(ctx)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.deps.Notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// PlayerRestarted is called by the mpv supervisor after screen index came back.
func (d *Daemon) PlayerRestarted(ctx context.Context, index int) {
	if err := d.deps.Notifier.Publish(ctx, notifications.EventPlayerRestarted, notifications.Payload{
		"screen": index + 1,
	}); err != nil {
		d.logger.Debug("restart notification failed", logging.Error(err))
	}
	if d.deps.Player.Status().State != playback.StateIdle {
		return
	}
	if err := d.deps.Player.Idle(ctx); err != nil {
		d.logger.Warn("idle screen after restart failed", logging.Int("screen", index+1), logging.Error(err))
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	player := d.deps.Player.Status()
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Player:       player,
		VideoID:      videoIDFromPath(player.File),
		QueueDepth:   len(d.queue),
		DebugMode:    d.debug.Load(),
		LastOutcome:  d.last.Load(),
		DatabasePath: d.cfg.DatabasePath(),
		LockPath:     d.lockPath,
	}
	if d.scanner != nil {
		if dev, ok := d.scanner.Current(); ok {
			status.ScannerDevice = dev.Path
			if dev.Name != "" {
				status.ScannerDevice = fmt.Sprintf("%s (%s)", dev.Path, dev.Name)
			}
		}
	}

	if policy, err := d.deps.Policy.Policy(ctx); err != nil {
		d.logger.Warn("status policy unavailable", logging.Error(err))
	} else if policy.Validate() == nil {
		now := d.now()
		status.MaxVideos = policy.MaxVideos
		status.Period = policy.Period
		events, err := d.deps.Events.EventsSince(ctx, now.Add(-policy.Period))
		if err != nil {
			d.logger.Warn("status play history unavailable", logging.Error(err))
		} else {
			decision := ratelimit.Evaluate(policy, events, now)
			status.PlaysInWindow = decision.Count
			status.RetryAfter = decision.RetryAfter
		}
	}

	if d.deps.Cache != nil {
		if stats, err := d.deps.Cache.Stats(ctx); err == nil {
			status.Cache = &stats
		}
	}
	return status
}

func (d *Daemon) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case req := <-d.queue:
			reqCtx := services.WithSource(ctx, req.source)
			out := d.deps.Handler.Handle(reqCtx, req.raw)
			d.last.Store(summarize(req.source, out, d.now()))
			if req.reply != nil {
				req.reply <- out
			}
		}
	}
}

// drain answers waiters still queued at shutdown.
func (d *Daemon) drain() {
	for {
		select {
		case req := <-d.queue:
			if req.reply != nil {
				req.reply <- orchestrator.Outcome{
					SourceURL: req.raw,
					State:     orchestrator.StateFailed,
					Kind:      orchestrator.KindCancelled,
					Err:       ErrNotRunning,
				}
			}
		default:
			return
		}
	}
}

func summarize(source string, out orchestrator.Outcome, at time.Time) *OutcomeSummary {
	return &OutcomeSummary{
		RequestID: out.RequestID,
		Source:    source,
		VideoID:   out.Video.ID,
		State:     string(out.State),
		Kind:      string(out.Kind),
		Message:   out.Summary(),
		Elapsed:   out.Elapsed,
		At:        at,
	}
}

func videoIDFromPath(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
