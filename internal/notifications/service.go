package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidkiosk/internal/config"
)

const (
	userAgent     = "vidkiosk/0.1"
	defaultServer = "https://ntfy.sh/"
)

// Event names a notification class.
type Event string

const (
	EventPlaybackStarted Event = "playback_started"
	EventRateLimited     Event = "rate_limited"
	EventError           Event = "error"
	EventPlayerRestarted Event = "player_restarted"
	EventTest            Event = "test"
)

// Payload carries event-specific values. Unknown keys are ignored.
type Payload map[string]any

// Service publishes kiosk events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	endpoint := TopicURL(cfg.Notifications.NtfyTopic)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventPlaybackStarted: cfg.Notifications.Playback,
			EventRateLimited:     cfg.Notifications.RateLimited,
			EventError:           cfg.Notifications.Errors,
			EventPlayerRestarted: cfg.Notifications.Errors,
			EventTest:            true,
		},
	}
}

// TopicURL accepts either a bare topic name on the public server or a full URL.
func TopicURL(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "http://") || strings.HasPrefix(topic, "https://") {
		return topic
	}
	return defaultServer + strings.TrimPrefix(topic, "/")
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventPlaybackStarted:
		return message{
			title: "Kiosk - Playing",
			body:  fmt.Sprintf("▶️ Playing %s", payloadString(payload, "videoID")),
			tags:  []string{"vidkiosk", "playback"},
		}, true
	case EventRateLimited:
		body := "⏳ Limit reached"
		if wait, ok := payload["retryAfter"].(time.Duration); ok && wait > 0 {
			body = fmt.Sprintf("%s, next video in %s", body, wait.Round(time.Minute))
		}
		if id := payloadString(payload, "videoID"); id != "" {
			body = fmt.Sprintf("%s (scanned %s)", body, id)
		}
		return message{
			title: "Kiosk - Limit Reached",
			body:  body,
			tags:  []string{"vidkiosk", "limit"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payloadString(payload, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if text := payloadString(payload, "error"); text != "" {
			builder.WriteString(text)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Kiosk - Error",
			body:     builder.String(),
			tags:     []string{"vidkiosk", "error", "alert"},
			priority: "high",
		}, true
	case EventPlayerRestarted:
		return message{
			title:    "Kiosk - Player Restarted",
			body:     fmt.Sprintf("🔁 mpv on screen %s exited and was restarted", payloadString(payload, "screen")),
			tags:     []string{"vidkiosk", "player", "restart"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Kiosk - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"vidkiosk", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
