// Package sound plays the short success and error cues through mpv's audio
// output. Cues are fire-and-forget; a missing sound file or a failing mpv
// never delays the request that triggered it.
package sound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/services"
)

// Cue file names inside the sounds directory.
const (
	SuccessFile = "success.mp3"
	ErrorFile   = "error.mp3"
)

const defaultTimeout = 10 * time.Second

// Runner executes one cue playback.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) error
}

// Option configures a Player.
type Option func(*Player)

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(r Runner) Option {
	return func(p *Player) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTimeout bounds a single cue.
func WithTimeout(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Player plays feedback cues.
type Player struct {
	binary  string
	dir     string
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	missing map[string]bool
}

// New returns a Player reading cues from dir and playing them with binary.
func New(binary, dir string, opts ...Option) *Player {
	p := &Player{
		binary:  strings.TrimSpace(binary),
		dir:     dir,
		runner:  commandRunner{},
		timeout: defaultTimeout,
		logger:  logging.NewNop(),
		missing: make(map[string]bool),
	}
	if p.binary == "" {
		p.binary = "mpv"
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "sound")
	return p
}

// Success plays the success cue.
func (p *Player) Success(ctx context.Context) { p.cue(ctx, SuccessFile) }

// Error plays the error cue.
func (p *Player) Error(ctx context.Context) { p.cue(ctx, ErrorFile) }

// Wait blocks until every started cue has finished.
func (p *Player) Wait() { p.wg.Wait() }

// Close stops accepting cues and waits for running ones.
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Player) cue(ctx context.Context, name string) {
	if p == nil {
		return
	}
	path := filepath.Join(p.dir, name)
	if _, err := os.Stat(path); err != nil {
		p.reportMissing(name, path, err)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	go func() {
		defer p.wg.Done()
		defer cancel()
		args := []string{"--no-video", "--really-quiet", "--no-terminal", path}
		if err := p.runner.Run(runCtx, p.binary, args); err != nil {
			p.logger.Debug("sound cue failed",
				logging.String("cue", name),
				logging.Error(services.Wrap(services.ErrExternalTool, "feedback", "play cue", name, err)),
			)
		}
	}()
}

// reportMissing warns once per cue so a kiosk without sound files stays quiet in the log.
func (p *Player) reportMissing(name, path string, err error) {
	p.mu.Lock()
	seen := p.missing[name]
	p.missing[name] = true
	p.mu.Unlock()
	if seen {
		return
	}
	if errors.Is(err, os.ErrNotExist) {
		err = fmt.Errorf("sound file %s not found", path)
	}
	logging.WarnWithContext(p.logger, "sound cue unavailable", "sound_missing",
		logging.String("cue", name),
		logging.Error(err),
		logging.String(logging.FieldImpact, "scans give no audible feedback"),
		logging.String(logging.FieldErrorHint, "place "+name+" in paths.sounds_dir"),
	)
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	out, err := cmd.CombinedOutput()
	if err != nil {
		if text := strings.TrimSpace(string(out)); text != "" {
			return fmt.Errorf("%w: %s", err, text)
		}
		return err
	}
	return nil
}
