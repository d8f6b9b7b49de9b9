package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	logTimestampLayout = "2006-01-02 15:04:05"
	// infoFieldLimit caps the fields shown on info lines; debug shows all.
	infoFieldLimit = 8
)

// consoleHandler writes one human-readable line per record, which is what
// journald shows for the kiosk service:
//
//	2026-03-01 12:00:00 INFO [orchestrator] Scanner · dQw4w9WgXcQ (resolved) | video ready | Size: 3.0 MiB
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool
	bound     []kv
	prefix    string
}

type kv struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := *h
	child.bound = slices.Clone(h.bound)
	for _, a := range attrs {
		child.bound = appendFlat(child.bound, h.prefix, a)
	}
	return &child
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	child := *h
	child.prefix = h.prefix + name + "."
	return &child
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := slices.Clone(h.bound)
	record.Attrs(func(a slog.Attr) bool {
		fields = appendFlat(fields, h.prefix, a)
		return true
	})
	fields = lastWins(fields)

	var s subject
	verbose := record.Level < slog.LevelInfo || record.Level >= slog.LevelWarn
	shown := fields[:0]
	for _, f := range fields {
		if s.take(f) {
			continue
		}
		if !verbose && isDebugOnlyKey(f.key) {
			continue
		}
		shown = append(shown, f)
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(formatTimestamp(ts))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	if s.component != "" {
		fmt.Fprintf(&b, " [%s]", s.component)
	}
	if text := s.String(); text != "" {
		b.WriteByte(' ')
		b.WriteString(text)
		b.WriteString(" |")
	}
	b.WriteByte(' ')
	if msg := strings.TrimSpace(record.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}

	limit := len(shown)
	if record.Level >= slog.LevelInfo && limit > infoFieldLimit {
		limit = infoFieldLimit
	}
	for _, f := range shown[:limit] {
		fmt.Fprintf(&b, " | %s: %s", displayLabel(f.key), formatValueForKey(f.key, f.value))
	}
	if hidden := len(shown) - limit; hidden > 0 {
		fmt.Fprintf(&b, " | +%d hidden", hidden)
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// subject holds the request fields that lead the line instead of trailing it.
type subject struct {
	component, source, videoID, stage string
}

func (s *subject) take(f kv) bool {
	var dst *string
	switch f.key {
	case FieldComponent:
		dst = &s.component
	case FieldSource:
		dst = &s.source
	case FieldVideoID:
		dst = &s.videoID
	case FieldStage:
		dst = &s.stage
	default:
		return false
	}
	*dst = strings.TrimSpace(attrString(f.value))
	return true
}

func (s subject) String() string {
	var parts []string
	if s.source != "" {
		parts = append(parts, capitalizeASCII(s.source))
	}
	switch {
	case s.videoID != "" && s.stage != "":
		parts = append(parts, s.videoID+" ("+s.stage+")")
	case s.videoID != "":
		parts = append(parts, s.videoID)
	case s.stage != "":
		parts = append(parts, s.stage)
	}
	return strings.Join(parts, " · ")
}

func appendFlat(dst []kv, prefix string, a slog.Attr) []kv {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, member := range a.Value.Group() {
			dst = appendFlat(dst, prefix, member)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	return append(dst, kv{key: prefix + a.Key, value: a.Value})
}

// lastWins drops earlier duplicates of a key, keeping the first position and
// the latest value.
func lastWins(fields []kv) []kv {
	seen := make(map[string]int, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if i, ok := seen[f.key]; ok {
			out[i].value = f.value
			continue
		}
		seen[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldCorrelationID, "argv", "stderr", "socket":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

var fieldLabels = map[string]string{
	FieldEventType:    "Event",
	FieldErrorHint:    "Hint",
	FieldDecisionType: "Decision",
	"decision_result": "Result",
	"decision_reason": "Reason",
	"retry_after":     "Retry After",
	"size_bytes":      "Size",
}

func displayLabel(key string) string {
	if label, ok := fieldLabels[key]; ok {
		return label
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	if len(words) == 0 {
		return capitalizeASCII(key)
	}
	for i, w := range words {
		words[i] = capitalizeASCII(w)
	}
	return strings.Join(words, " ")
}

func capitalizeASCII(value string) string {
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(logTimestampLayout)
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
