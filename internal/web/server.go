package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/settings"
	"vidkiosk/internal/store"
	"vidkiosk/internal/videourl"
)

//go:embed templates/*.html
var templateFS embed.FS

// RecentLimit is how many plays the dashboard lists.
const RecentLimit = 50

// Status is the dashboard's view of the kiosk.
type Status struct {
	State         string        `json:"state"`
	VideoID       string        `json:"video_id,omitempty"`
	File          string        `json:"file,omitempty"`
	Since         time.Time     `json:"since,omitzero"`
	PlaysInWindow int           `json:"plays_in_window"`
	MaxVideos     int           `json:"max_videos"`
	PeriodHours   float64       `json:"period_hours"`
	RetryAfter    time.Duration `json:"retry_after_ns"`
	ScannerDevice string        `json:"scanner_device,omitempty"`
	QueueDepth    int           `json:"queue_depth"`
}

// Kiosk is the daemon surface the dashboard drives.
type Kiosk interface {
	// Enqueue queues raw input for playback and reports whether it was accepted.
	Enqueue(source, raw string) bool
	Status(ctx context.Context) Status
	Stop() bool
}

// SettingsStore loads and saves runtime settings.
type SettingsStore interface {
	Load(ctx context.Context) (settings.Settings, error)
	Save(ctx context.Context, s settings.Settings) error
}

// History lists recent plays, newest first.
type History interface {
	RecentEvents(ctx context.Context, limit int) ([]store.PlayEvent, error)
}

// Server is the dashboard HTTP server.
type Server struct {
	bind     string
	kiosk    Kiosk
	settings SettingsStore
	history  History
	logger   *slog.Logger
	tmpl     *template.Template
	router   chi.Router
	perMin   int

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestsPerMinute limits play and stop requests per client IP.
// Zero disables the limit.
func WithRequestsPerMinute(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.perMin = n
		}
	}
}

// New builds the dashboard. bind is a host:port listen address.
func New(bind string, kiosk Kiosk, st SettingsStore, history History, opts ...Option) (*Server, error) {
	if kiosk == nil || st == nil || history == nil {
		return nil, errors.New("web: kiosk, settings, and history are required")
	}
	s := &Server{
		bind:     strings.TrimSpace(bind),
		kiosk:    kiosk,
		settings: st,
		history:  history,
		logger:   logging.NewNop(),
		perMin:   30,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "web")

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"stamp":    func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
		"platform": videourl.PlatformLabel,
		"wait":     formatWait,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.tmpl = tmpl
	s.router = s.routes()
	return s, nil
}

// Handler exposes the router (primarily for tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleDashboard)
	r.Get("/settings", s.handleSettingsForm)
	r.Post("/settings", s.handleSettingsSave)
	r.Get("/api/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		if s.perMin > 0 {
			r.Use(httprate.Limit(s.perMin, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Retry-After", "60")
					http.Error(w, "too many requests", http.StatusTooManyRequests)
				}),
			))
		}
		r.Post("/play", s.handlePlay)
		r.Get("/directplay/*", s.handleDirectPlay)
		r.Post("/api/stop", s.handleStop)
	})
	return r
}

// Start listens on the bind address and serves until ctx ends or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("web listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Lock()
	s.server = srv
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "dashboard server error", "web_serve_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that web.bind is free"),
			)
		}
	}()

	s.logger.Info("dashboard listening",
		logging.String(logging.FieldEventType, "web_started"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
			logging.String("remote", r.RemoteAddr),
		)
	})
}

func formatWait(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "under a minute"
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}
