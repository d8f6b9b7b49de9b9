package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/services"
)

const defaultRescanInterval = 10 * time.Second

var errReconnect = errors.New("scanner reconnect requested")

// Sink receives each scanned line.
type Sink func(ctx context.Context, line string)

// Listener reads scans from the configured or auto-detected device.
type Listener struct {
	sink      Sink
	device    func() string
	sysfsRoot string
	open      Opener
	grab      bool
	hotplug   <-chan struct{}
	rescan    time.Duration
	logger    *slog.Logger
	kick      chan struct{}

	mu      sync.Mutex
	current Device
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithDevicePath returns the preferred device path on each (re)connect; an
// empty string selects auto-detection. Call Reconnect after the value
// changes to apply it right away.
func WithDevicePath(fn func() string) Option {
	return func(l *Listener) {
		if fn != nil {
			l.device = fn
		}
	}
}

// WithOpener replaces device opening (primarily for tests).
func WithOpener(open Opener) Option {
	return func(l *Listener) {
		if open != nil {
			l.open = open
		}
	}
}

// WithSysfsRoot changes where devices are enumerated.
func WithSysfsRoot(root string) Option {
	return func(l *Listener) {
		if strings.TrimSpace(root) != "" {
			l.sysfsRoot = root
		}
	}
}

// WithGrab controls whether the device is grabbed exclusively.
func WithGrab(grab bool) Option {
	return func(l *Listener) { l.grab = grab }
}

// WithHotplug wakes the listener when input devices change.
func WithHotplug(events <-chan struct{}) Option {
	return func(l *Listener) { l.hotplug = events }
}

// WithRescanInterval sets how often a missing device is looked for again.
func WithRescanInterval(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.rescan = d
		}
	}
}

// NewListener returns a listener that sends each scan to sink.
func NewListener(sink Sink, opts ...Option) *Listener {
	l := &Listener{
		sink:      sink,
		device:    func() string { return "" },
		sysfsRoot: DefaultSysfsRoot,
		open:      OpenDevice,
		grab:      true,
		rescan:    defaultRescanInterval,
		logger:    logging.NewNop(),
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "scanner")
	return l
}

// Current returns the device being read, if any.
func (l *Listener) Current() (Device, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current, l.current.Path != ""
}

// Reconnect drops the open device, if any, and looks for the scanner again
// without waiting for the rescan interval.
func (l *Listener) Reconnect() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// Run reads scans until ctx ends. A device that disappears is looked for
// again; Run only returns on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	ctx = services.WithSource(ctx, "scanner")
	warned := false
	for {
		dev, ok := l.find()
		if ok {
			warned = false
			err := l.read(ctx, dev)
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, errReconnect) {
				l.logger.Info("scanner device reselected", logging.String("previous", dev.Path))
				continue
			}
			logging.WarnWithContext(l.logger, "scanner unavailable", "scanner_lost",
				logging.String("device", dev.Path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "scans are ignored until the scanner is back"),
				logging.String(logging.FieldErrorHint, "check the USB connection"),
			)
		} else if !warned {
			warned = true
			logging.WarnWithContext(l.logger, "no scanner device found", "scanner_missing",
				logging.String(logging.FieldImpact, "only the dashboard can start videos"),
				logging.String(logging.FieldErrorHint, "connect a USB barcode/QR scanner or set scanner_device_path"),
			)
		}

		timer := time.NewTimer(l.rescan)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-l.hotplug:
			timer.Stop()
		case <-l.kick:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (l *Listener) find() (Device, bool) {
	if path := strings.TrimSpace(l.device()); path != "" {
		return Device{Path: path, Name: path}, true
	}
	devices, err := ListDevices(l.sysfsRoot)
	if err != nil {
		l.logger.Debug("enumerate input devices failed", logging.Error(err))
		return Device{}, false
	}
	return SelectDevice(devices)
}

// read consumes events from dev until the device fails or ctx ends.
func (l *Listener) read(ctx context.Context, dev Device) error {
	r, err := l.open(dev.Path, l.grab)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "scanner", "open device", dev.Path, err)
	}

	l.mu.Lock()
	l.current = dev
	l.mu.Unlock()
	l.logger.Info("scanner listening",
		logging.String(logging.FieldEventType, "scanner_started"),
		logging.String("device", dev.Path),
		logging.String("name", dev.Name),
		logging.Bool("grab", l.grab),
	)

	stop := make(chan struct{})
	var kicked atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-stop:
		case <-l.kick:
			kicked.Store(true)
		}
		// Closing unblocks the pending read.
		_ = r.Close()
	}()
	defer func() {
		close(stop)
		wg.Wait()
		l.mu.Lock()
		l.current = Device{}
		l.mu.Unlock()
	}()

	var decoder Decoder
	buf := make([]byte, eventSize)
	for {
		ev, err := readEvent(r, buf)
		if err != nil {
			if kicked.Load() {
				return errReconnect
			}
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if ev.Type != evKey {
			continue
		}
		if line, ok := decoder.Feed(ev.Code, ev.Value); ok {
			l.logger.Info("scan received",
				logging.String(logging.FieldEventType, "scan_received"),
				logging.Int("length", len(line)),
			)
			l.sink(ctx, line)
		}
	}
}
