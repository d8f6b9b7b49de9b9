package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/services/mpv"
)

// State is the controller's externally visible state.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

// Display is the screen the controller drives.
type Display interface {
	// Load starts path on the screen.
	Load(ctx context.Context, path string) error
	// Playing reports whether path is still on screen.
	Playing(ctx context.Context, path string) (bool, error)
	// Idle returns the screen to its idle picture.
	Idle(ctx context.Context) error
}

// Status is a snapshot of the controller.
type Status struct {
	State State     `json:"state"`
	File  string    `json:"file,omitempty"`
	Since time.Time `json:"since,omitempty"`
}

var errPlayTimeout = errors.New("maximum play duration exceeded")

// Controller plays one file at a time on a Display.
type Controller struct {
	display      Display
	maxDuration  time.Duration
	pollInterval time.Duration
	startTimeout time.Duration
	idleTimeout  time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	state  State
	file   string
	since  time.Time
	cancel context.CancelCauseFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxDuration bounds each playback; zero disables the bound.
func WithMaxDuration(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.maxDuration = d
		}
	}
}

// WithPollInterval sets how often completion is checked.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithStartTimeout sets how long a loaded file may take to appear on screen.
func WithStartTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.startTimeout = d
		}
	}
}

// New returns an idle controller for display.
func New(display Display, opts ...Option) *Controller {
	c := &Controller{
		display:      display,
		maxDuration:  3 * time.Hour,
		pollInterval: 500 * time.Millisecond,
		startTimeout: 15 * time.Second,
		idleTimeout:  5 * time.Second,
		logger:       logging.NewNop(),
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "playback")
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current state with the playing file.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, File: c.file, Since: c.since}
}

// Stop ends the active playback. It reports whether anything was playing.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel(ErrStopped)
	return true
}

// Idle puts the display in its idle picture when nothing is playing, for
// example after the player process was restarted.
func (c *Controller) Idle(ctx context.Context) error {
	c.mu.Lock()
	playing := c.state == StatePlaying
	c.mu.Unlock()
	if playing {
		return nil
	}
	if err := c.display.Idle(ctx); err != nil {
		return &Error{Kind: KindDisplayUnavailable, Err: err}
	}
	return nil
}

// Play shows path and blocks until it finishes, fails, times out, or is
// stopped. A manual stop returns ErrStopped.
func (c *Controller) Play(ctx context.Context, path string) (err error) {
	c.mu.Lock()
	if c.state == StatePlaying {
		current := c.file
		c.mu.Unlock()
		return &Error{Kind: KindAlreadyPlaying, Err: fmt.Errorf("%s is playing", current)}
	}
	playCtx, cancel := context.WithCancelCause(ctx)
	if c.maxDuration > 0 {
		var cancelTimeout context.CancelFunc
		playCtx, cancelTimeout = context.WithTimeoutCause(playCtx, c.maxDuration, errPlayTimeout)
		defer cancelTimeout()
	}
	c.state = StatePlaying
	c.file = path
	c.since = time.Now()
	c.cancel = cancel
	c.mu.Unlock()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindPlayerCrashed, Err: fmt.Errorf("display backend panic: %v", r)}
		}
		cancel(nil)
		c.returnToIdle()
		c.mu.Lock()
		c.state = StateIdle
		c.file = ""
		c.since = time.Time{}
		c.cancel = nil
		c.mu.Unlock()
		c.logFinished(path, started, err)
	}()

	if _, statErr := os.Stat(path); statErr != nil {
		return &Error{Kind: KindPlayerCrashed, Err: fmt.Errorf("open media: %w", statErr)}
	}
	c.logger.Info("playback started", logging.String("file", path), logging.String(logging.FieldEventType, "playback_started"))

	if loadErr := c.display.Load(playCtx, path); loadErr != nil {
		if playCtx.Err() != nil {
			return c.interrupted(playCtx)
		}
		if errors.Is(loadErr, mpv.ErrUnavailable) {
			return &Error{Kind: KindDisplayUnavailable, Err: loadErr}
		}
		return &Error{Kind: KindPlayerCrashed, Err: loadErr}
	}
	return c.wait(playCtx, path)
}

func (c *Controller) wait(ctx context.Context, path string) error {
	loaded := time.Now()
	onScreen := false
	startPoll := c.pollInterval
	if startPoll > 100*time.Millisecond {
		startPoll = 100 * time.Millisecond
	}
	timer := time.NewTimer(startPoll)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.interrupted(ctx)
		case <-timer.C:
		}
		playing, err := c.display.Playing(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return c.interrupted(ctx)
			}
			return &Error{Kind: KindPlayerCrashed, Err: err}
		}
		switch {
		case playing:
			onScreen = true
			timer.Reset(c.pollInterval)
		case !onScreen && time.Since(loaded) < c.startTimeout:
			timer.Reset(startPoll)
		case !onScreen:
			return &Error{Kind: KindPlayerCrashed, Err: fmt.Errorf("player did not start %s within %s", path, c.startTimeout)}
		default:
			return nil
		}
	}
}

func (c *Controller) interrupted(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrStopped):
		return ErrStopped
	case errors.Is(cause, errPlayTimeout):
		return &Error{Kind: KindTimeout, Err: fmt.Errorf("%w (%s)", errPlayTimeout, c.maxDuration)}
	default:
		return cause
	}
}

// returnToIdle runs with its own bounded context so a cancelled caller
// still gets a black screen.
func (c *Controller) returnToIdle() {
	ctx, cancel := context.WithTimeout(context.Background(), c.idleTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(c.logger, "display panicked while returning to idle", "display_idle_failed",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "restart vidkiosk"),
			)
		}
	}()
	if err := c.display.Idle(ctx); err != nil {
		logging.ErrorWithContext(c.logger, "failed to return display to idle", "display_idle_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that mpv is running; it is restarted automatically"),
		)
	}
}

func (c *Controller) logFinished(path string, started time.Time, err error) {
	elapsed := time.Since(started).Round(time.Second)
	switch {
	case err == nil:
		c.logger.Info("playback finished",
			logging.String("file", path),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "playback_finished"),
		)
	case errors.Is(err, ErrStopped):
		c.logger.Info("playback stopped",
			logging.String("file", path),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "playback_stopped"),
		)
	default:
		logging.WarnWithContext(c.logger, "playback failed", "playback_failed",
			logging.String("file", path),
			logging.String("kind", string(KindOf(err))),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check mpv output in the debug log"),
			logging.String(logging.FieldImpact, "display returned to idle"),
		)
	}
}
