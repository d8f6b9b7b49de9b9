package settings

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"vidkiosk/internal/config"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/ratelimit"
	"vidkiosk/internal/services"
	"vidkiosk/internal/store"
)

// Setting keys stored in the settings table.
const (
	KeyMaxVideos         = "max_videos"
	KeyPeriodHours       = "period_hours"
	KeyDebugMode         = "debug_mode"
	KeyScannerDevicePath = "scanner_device_path"
)

// MinPeriodHours is the shortest window the dashboard accepts (six minutes).
const MinPeriodHours = 0.1

// Settings is the runtime view of the editable values.
type Settings struct {
	MaxVideos         int
	PeriodHours       float64
	DebugMode         bool
	ScannerDevicePath string
}

// Period converts PeriodHours to a duration.
func (s Settings) Period() time.Duration {
	return time.Duration(s.PeriodHours * float64(time.Hour))
}

// Policy returns the admission policy described by s.
func (s Settings) Policy() ratelimit.Policy {
	return ratelimit.Policy{MaxVideos: s.MaxVideos, Period: s.Period()}
}

// Validate checks the values a parent can submit from the dashboard.
func (s Settings) Validate() error {
	if s.MaxVideos < 1 {
		return services.Wrap(services.ErrValidation, "settings", "validate", "max videos must be at least 1", nil)
	}
	if math.IsNaN(s.PeriodHours) || math.IsInf(s.PeriodHours, 0) || s.PeriodHours < MinPeriodHours {
		return services.Wrap(services.ErrValidation, "settings", "validate",
			fmt.Sprintf("period must be at least %.1f hours", MinPeriodHours), nil)
	}
	return nil
}

func (s Settings) values() map[string]string {
	return map[string]string{
		KeyMaxVideos:         strconv.Itoa(s.MaxVideos),
		KeyPeriodHours:       strconv.FormatFloat(s.PeriodHours, 'f', -1, 64),
		KeyDebugMode:         strconv.FormatBool(s.DebugMode),
		KeyScannerDevicePath: strings.TrimSpace(s.ScannerDevicePath),
	}
}

// Backend is the persistence the Manager needs.
type Backend interface {
	AllSettings(ctx context.Context) (map[string]store.Setting, error)
	SetSettings(ctx context.Context, values map[string]string, now time.Time) error
}

// Manager merges stored settings over configured defaults.
type Manager struct {
	backend  Backend
	defaults Settings
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	listeners []func(Settings)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Defaults derives the fallback settings from configuration.
func Defaults(cfg *config.Config) Settings {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	return Settings{
		MaxVideos:         cfg.Policy.MaxVideos,
		PeriodHours:       cfg.Policy.PeriodHours,
		ScannerDevicePath: cfg.Scanner.DevicePath,
	}
}

// NewManager constructs a Manager backed by backend with defaults from cfg.
func NewManager(backend Backend, cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		defaults: Defaults(cfg),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "settings")
	return m
}

// Load returns the current settings. A stored value that fails to parse or
// validate falls back to its default and is logged.
func (m *Manager) Load(ctx context.Context) (Settings, error) {
	stored, err := m.backend.AllSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	current := m.defaults
	if raw, ok := stored[KeyMaxVideos]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw.Value)); err == nil && n >= 1 {
			current.MaxVideos = n
		} else {
			m.warnInvalid(KeyMaxVideos, raw.Value)
		}
	}
	if raw, ok := stored[KeyPeriodHours]; ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw.Value), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && f >= MinPeriodHours {
			current.PeriodHours = f
		} else {
			m.warnInvalid(KeyPeriodHours, raw.Value)
		}
	}
	if raw, ok := stored[KeyDebugMode]; ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(raw.Value)); err == nil {
			current.DebugMode = b
		} else {
			m.warnInvalid(KeyDebugMode, raw.Value)
		}
	}
	if raw, ok := stored[KeyScannerDevicePath]; ok {
		current.ScannerDevicePath = strings.TrimSpace(raw.Value)
	}
	return current, nil
}

// Save validates and persists s, then notifies listeners.
func (m *Manager) Save(ctx context.Context, s Settings) error {
	s.ScannerDevicePath = strings.TrimSpace(s.ScannerDevicePath)
	if err := s.Validate(); err != nil {
		return err
	}
	if err := m.backend.SetSettings(ctx, s.values(), m.now()); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	m.logger.Info("settings updated",
		logging.String(logging.FieldEventType, "settings_updated"),
		logging.Int("max_videos", s.MaxVideos),
		logging.Float64("period_hours", s.PeriodHours),
		logging.Bool("debug_mode", s.DebugMode),
		logging.String("scanner_device_path", s.ScannerDevicePath),
	)

	m.mu.Lock()
	listeners := append([]func(Settings){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
	return nil
}

// OnChange registers fn to run after every successful Save.
func (m *Manager) OnChange(fn func(Settings)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Policy implements ratelimit.PolicySource.
func (m *Manager) Policy(ctx context.Context) (ratelimit.Policy, error) {
	current, err := m.Load(ctx)
	if err != nil {
		return ratelimit.Policy{}, err
	}
	return current.Policy(), nil
}

func (m *Manager) warnInvalid(key, value string) {
	logging.WarnWithContext(m.logger, "ignoring invalid stored setting", "settings_invalid",
		logging.String("key", key),
		logging.String("value", value),
		logging.String(logging.FieldErrorHint, "re-save the setting from the dashboard"),
		logging.String(logging.FieldImpact, "configured default is used instead"),
	)
}
