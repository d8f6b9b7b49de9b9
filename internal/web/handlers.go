package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/settings"
	"vidkiosk/internal/store"
)

type dashboardPage struct {
	Title    string
	Queued   bool
	Rejected bool
	Status   Status
	Settings settings.Settings
	Recent   []store.PlayEvent
}

type settingsPage struct {
	Title    string
	Error    string
	Settings settings.Settings
}

type messagePage struct {
	Message string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, err := s.settings.Load(ctx)
	if err != nil {
		s.serverError(w, "load settings", err)
		return
	}
	recent, err := s.history.RecentEvents(ctx, RecentLimit)
	if err != nil {
		s.serverError(w, "load recent views", err)
		return
	}
	query := r.URL.Query()
	s.render(w, http.StatusOK, "dashboard", dashboardPage{
		Title:    "Dashboard",
		Queued:   query.Get("queued") != "",
		Rejected: query.Get("rejected") != "",
		Status:   s.kiosk.Status(ctx),
		Settings: current,
		Recent:   recent,
	})
}

func (s *Server) handleSettingsForm(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings.Load(r.Context())
	if err != nil {
		s.serverError(w, "load settings", err)
		return
	}
	s.render(w, http.StatusOK, "settings", settingsPage{Title: "Settings", Settings: current})
}

func (s *Server) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, err := s.settings.Load(ctx)
	if err != nil {
		s.serverError(w, "load settings", err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "settings", settingsPage{Title: "Settings", Error: "Invalid form", Settings: current})
		return
	}

	next, formErr := parseSettingsForm(r.PostForm, current)
	if formErr == "" {
		if err := s.settings.Save(ctx, next); err != nil {
			formErr = err.Error()
		}
	}
	if formErr != "" {
		s.logger.Warn("settings rejected",
			logging.String(logging.FieldEventType, "settings_rejected"),
			logging.String("reason", formErr),
		)
		s.render(w, http.StatusBadRequest, "settings", settingsPage{Title: "Settings", Error: formErr, Settings: next})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// parseSettingsForm overlays submitted values on current. It returns a
// message for the first unparsable field.
func parseSettingsForm(form url.Values, current settings.Settings) (settings.Settings, string) {
	next := current
	if raw := strings.TrimSpace(form.Get("max_videos")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return next, "Max videos must be a whole number"
		}
		next.MaxVideos = n
	}
	if raw := strings.TrimSpace(form.Get("period_hours")); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return next, "Period must be a number of hours"
		}
		next.PeriodHours = f
	}
	next.ScannerDevicePath = strings.TrimSpace(form.Get("scanner_device_path"))
	next.DebugMode = form.Get("debug_mode") == "1"
	return next, ""
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.PostFormValue("url"))
	if raw != "" && s.kiosk.Enqueue("web", raw) {
		http.Redirect(w, r, "/?queued=1", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/?rejected=1", http.StatusSeeOther)
}

// handleDirectPlay accepts /directplay/<url>. The URL may be percent-encoded
// or raw; a query string on the request belongs to the target URL.
func (s *Server) handleDirectPlay(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "*")
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	target = repairScheme(strings.TrimSpace(target))
	if target != "" && s.kiosk.Enqueue("web", target) {
		s.render(w, http.StatusOK, "message", messagePage{Message: "Video queued for playback."})
		return
	}
	s.render(w, http.StatusBadRequest, "message", messagePage{Message: "Invalid or missing URL."})
}

// repairScheme restores the second slash some proxies collapse in
// "https://" when it appears in a path.
func repairScheme(target string) string {
	for _, scheme := range []string{"https:/", "http:/"} {
		if strings.HasPrefix(target, scheme) && !strings.HasPrefix(target, scheme+"/") {
			return scheme + "/" + strings.TrimPrefix(target, scheme)
		}
	}
	return target
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.kiosk.Status(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	stopped := s.kiosk.Stop()
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.serverError(w, "render "+name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("encode json response failed", logging.Error(err))
	}
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	logging.ErrorWithContext(s.logger, "dashboard request failed", "web_request_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the database file"),
	)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
