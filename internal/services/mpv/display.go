package mpv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"vidkiosk/internal/logging"
)

// Display drives one mpv per connected screen as a single output.
// Files are loaded on every screen; completion is read from the first.
type Display struct {
	clients   []*Client
	idleImage string
	logger    *slog.Logger
}

// DisplayOption configures a Display.
type DisplayOption func(*Display)

// WithIdleImage shows image whenever the display is idle instead of plain black.
func WithIdleImage(path string) DisplayOption {
	return func(d *Display) {
		d.idleImage = path
	}
}

// WithDisplayLogger sets the display logger.
func WithDisplayLogger(logger *slog.Logger) DisplayOption {
	return func(d *Display) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDisplay returns a display for the given IPC sockets.
func NewDisplay(sockets []string, opts ...DisplayOption) *Display {
	d := &Display{logger: logging.NewNop()}
	for _, socket := range sockets {
		d.clients = append(d.clients, NewClient(socket))
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "display")
	return d
}

// Screens returns the number of mpv instances driven by the display.
func (d *Display) Screens() int {
	return len(d.clients)
}

// Load starts path on every screen.
func (d *Display) Load(ctx context.Context, path string) error {
	if len(d.clients) == 0 {
		return fmt.Errorf("%w: no screens configured", ErrUnavailable)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	for _, client := range d.clients {
		if err := client.LoadFile(ctx, abs); err != nil {
			return fmt.Errorf("load on %s: %w", client.Socket(), err)
		}
	}
	return nil
}

// Playing reports whether the first screen still shows path.
func (d *Display) Playing(ctx context.Context, path string) (bool, error) {
	if len(d.clients) == 0 {
		return false, fmt.Errorf("%w: no screens configured", ErrUnavailable)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", path, err)
	}
	current, ok, err := d.clients[0].Path(ctx)
	if err != nil {
		return false, err
	}
	return ok && current == abs, nil
}

// Idle returns every screen to the idle picture. All screens are attempted
// even when one fails.
func (d *Display) Idle(ctx context.Context) error {
	var errs []error
	for _, client := range d.clients {
		var err error
		if d.idleImage != "" {
			err = client.LoadFile(ctx, d.idleImage)
		} else {
			err = client.Stop(ctx)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("idle %s: %w", client.Socket(), err))
		}
	}
	return errors.Join(errs...)
}

// ShowText writes text on every screen's OSD.
func (d *Display) ShowText(ctx context.Context, text string, duration time.Duration) error {
	var errs []error
	for _, client := range d.clients {
		if err := client.ShowText(ctx, text, duration); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping checks that every screen answers on its IPC socket.
func (d *Display) Ping(ctx context.Context) error {
	var errs []error
	for _, client := range d.clients {
		if _, err := client.IdleActive(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		d.logger.Debug("display ping failed", logging.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}
