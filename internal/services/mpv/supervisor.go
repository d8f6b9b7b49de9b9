package mpv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vidkiosk/internal/logging"
)

// ErrGaveUp is returned by Supervisor.Run when an mpv keeps dying.
var ErrGaveUp = errors.New("mpv restart limit reached")

// Launcher starts one display process.
type Launcher func(ctx context.Context, cfg ProcessConfig) (Handle, error)

// DefaultLauncher starts a real mpv.
func DefaultLauncher(logger *slog.Logger) Launcher {
	return func(ctx context.Context, cfg ProcessConfig) (Handle, error) {
		return StartProcess(ctx, cfg, logger)
	}
}

// Supervisor keeps one mpv per configured screen alive.
type Supervisor struct {
	configs     []ProcessConfig
	launch      Launcher
	logger      *slog.Logger
	onRestart   func(index int)
	baseBackoff time.Duration
	maxBackoff  time.Duration
	maxFailures int
	stableAfter time.Duration
	stopGrace   time.Duration

	mu      sync.Mutex
	handles []Handle
	started []time.Time
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithLauncher replaces the process launcher (primarily for tests).
func WithLauncher(launch Launcher) SupervisorOption {
	return func(s *Supervisor) {
		if launch != nil {
			s.launch = launch
		}
	}
}

// WithSupervisorLogger sets the supervisor logger.
func WithSupervisorLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRestartHook runs fn after screen index has been restarted.
func WithRestartHook(fn func(index int)) SupervisorOption {
	return func(s *Supervisor) {
		s.onRestart = fn
	}
}

// WithBackoff sets the restart delay range.
func WithBackoff(base, max time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if base > 0 {
			s.baseBackoff = base
		}
		if max >= base && max > 0 {
			s.maxBackoff = max
		}
	}
}

// WithMaxFailures sets how many consecutive failed restarts are tolerated.
func WithMaxFailures(n int) SupervisorOption {
	return func(s *Supervisor) {
		if n > 0 {
			s.maxFailures = n
		}
	}
}

// WithStableAfter sets how long a process must run before its failure count resets.
func WithStableAfter(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.stableAfter = d
		}
	}
}

// NewSupervisor returns a supervisor for configs.
func NewSupervisor(configs []ProcessConfig, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		configs:     append([]ProcessConfig(nil), configs...),
		logger:      logging.NewNop(),
		baseBackoff: time.Second,
		maxBackoff:  30 * time.Second,
		maxFailures: 5,
		stableAfter: time.Minute,
		stopGrace:   3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "mpv")
	if s.launch == nil {
		s.launch = DefaultLauncher(s.logger)
	}
	s.handles = make([]Handle, len(s.configs))
	s.started = make([]time.Time, len(s.configs))
	return s
}

// Sockets returns the IPC socket of every screen in order.
func (s *Supervisor) Sockets() []string {
	out := make([]string, len(s.configs))
	for i, cfg := range s.configs {
		out[i] = cfg.Socket
	}
	return out
}

// Start launches every process. On failure the ones already started are stopped.
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.configs) == 0 {
		return errors.New("no mpv instances configured")
	}
	for i, cfg := range s.configs {
		handle, err := s.launch(ctx, cfg)
		if err != nil {
			s.Stop()
			return fmt.Errorf("start mpv for %s: %w", describe(cfg), err)
		}
		s.set(i, handle)
	}
	return nil
}

// Run watches the processes until ctx ends, restarting any that exit.
// It returns ErrGaveUp when a screen fails maxFailures times in a row.
func (s *Supervisor) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	for i := range s.configs {
		group.Go(func() error {
			return s.watch(gctx, i)
		})
	}
	err := group.Wait()
	s.Stop()
	return err
}

// Stop terminates every running process.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	handles := append([]Handle(nil), s.handles...)
	for i := range s.handles {
		s.handles[i] = nil
	}
	s.mu.Unlock()
	for _, h := range handles {
		if h != nil {
			if err := h.Stop(s.stopGrace); err != nil {
				s.logger.Warn("mpv stop failed", logging.Error(err))
			}
		}
	}
}

func (s *Supervisor) watch(ctx context.Context, index int) error {
	cfg := s.configs[index]
	failures := 0
	for {
		handle, startedAt := s.get(index)
		if handle == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-handle.Done():
		}
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(startedAt) >= s.stableAfter {
			failures = 0
		}
		logging.WarnWithContext(s.logger, "mpv exited unexpectedly", "display_process_exit",
			logging.String("screen", describe(cfg)),
			logging.Error(handle.Err()),
			logging.String(logging.FieldErrorHint, "check the display connection and mpv logs"),
			logging.String(logging.FieldImpact, "screen is blank until mpv restarts"),
		)

		for {
			failures++
			if failures > s.maxFailures {
				return fmt.Errorf("%w: %s failed %d times", ErrGaveUp, describe(cfg), s.maxFailures)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.backoff(failures)):
			}
			next, err := s.launch(ctx, cfg)
			if err != nil {
				s.logger.Warn("mpv restart failed",
					logging.String("screen", describe(cfg)),
					logging.Int("attempt", failures),
					logging.Error(err),
				)
				continue
			}
			s.set(index, next)
			s.logger.Info("mpv restarted", logging.String("screen", describe(cfg)), logging.Int("attempt", failures))
			if s.onRestart != nil {
				s.onRestart(index)
			}
			break
		}
	}
}

func (s *Supervisor) backoff(attempt int) time.Duration {
	delay := s.baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	return delay
}

func (s *Supervisor) set(index int, h Handle) {
	s.mu.Lock()
	s.handles[index] = h
	s.started[index] = time.Now()
	s.mu.Unlock()
}

func (s *Supervisor) get(index int) (Handle, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[index], s.started[index]
}

func describe(cfg ProcessConfig) string {
	if cfg.Connector != "" {
		return cfg.Connector
	}
	return cfg.Socket
}
