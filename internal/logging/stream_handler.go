package logging

import (
	"context"
	"log/slog"
	"maps"
	"strings"
)

// streamHandler mirrors every record into a StreamHub before passing it on.
// Attributes bound with WithAttrs are folded into a template event once, so
// Handle only applies the call-site attributes.
type streamHandler struct {
	next     slog.Handler
	hub      *StreamHub
	template LogEvent
	prefix   string
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	evt := h.template.clone()
	evt.Timestamp = record.Time
	evt.Level = strings.ToUpper(record.Level.String())
	evt.Message = strings.TrimSpace(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		evt.apply(h.prefix, a)
		return true
	})
	h.hub.Publish(evt)
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := *h
	child.next = h.next.WithAttrs(attrs)
	child.template = h.template.clone()
	for _, a := range attrs {
		child.template.apply(h.prefix, a)
	}
	return &child
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	child := *h
	child.next = h.next.WithGroup(name)
	child.prefix = h.prefix + name + "."
	return &child
}

func (e LogEvent) clone() LogEvent {
	e.Fields = maps.Clone(e.Fields)
	return e
}

// apply records a onto the event. The well-known keys land in their own
// fields only at the top level; everything else goes to Fields.
func (e *LogEvent) apply(prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if a.Value.Kind() == slog.KindGroup {
		if key != "" {
			prefix += key + "."
		}
		for _, member := range a.Value.Group() {
			e.apply(prefix, member)
		}
		return
	}
	if key == "" {
		return
	}
	if prefix == "" {
		value := attrString(a.Value)
		switch key {
		case FieldVideoID:
			e.VideoID = value
			return
		case FieldStage:
			e.Stage = value
			return
		case FieldSource:
			e.Source = value
			return
		case FieldCorrelationID:
			e.CorrelationID = value
			return
		case FieldComponent:
			e.Component = value
			return
		}
	}
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[prefix+key] = attrString(a.Value)
}
