package videourl

import (
	"errors"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// ErrInvalidURL is returned when no registered platform recognizes the input.
var ErrInvalidURL = errors.New("not a supported video url")

// Video identifies one video on one platform.
type Video struct {
	Platform  string
	ID        string
	SourceURL string
}

// Handler recognizes URLs for a single platform.
type Handler interface {
	// Platform is the stable lowercase platform name stored with play events.
	Platform() string
	// Match reports whether u belongs to the platform.
	Match(u *url.URL) bool
	// VideoID extracts the identifier from u. ok is false when the URL is the
	// platform's but carries no valid id.
	VideoID(u *url.URL) (id string, ok bool)
	// ValidID reports whether id is well formed for the platform.
	ValidID(id string) bool
	// CanonicalURL is the URL handed to the downloader for id.
	CanonicalURL(id string) string
}

// Registry holds the platform handlers consulted in registration order.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry returns a registry with the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// DefaultRegistry returns a registry that understands YouTube.
func DefaultRegistry() *Registry {
	return NewRegistry(YouTube{})
}

// Register appends h. Nil handlers are ignored.
func (r *Registry) Register(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// Lookup returns the handler registered for platform.
func (r *Registry) Lookup(platform string) (Handler, bool) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.Platform() == platform {
			return h, true
		}
	}
	return nil, false
}

// Parse normalizes raw and returns the first platform match.
func (r *Registry) Parse(raw string) (Video, error) {
	cleaned := Normalize(raw)
	if cleaned == "" {
		return Video{}, ErrInvalidURL
	}
	u, err := url.Parse(cleaned)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Video{}, ErrInvalidURL
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return Video{}, ErrInvalidURL
	}

	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers...)
	r.mu.RUnlock()

	for _, h := range handlers {
		if !h.Match(u) {
			continue
		}
		if id, ok := h.VideoID(u); ok {
			return Video{Platform: h.Platform(), ID: id, SourceURL: cleaned}, nil
		}
	}
	return Video{}, ErrInvalidURL
}

// Normalize folds full-width characters to ASCII, drops control characters
// left over from scanner keystrokes, and trims surrounding space.
func Normalize(raw string) string {
	folded := width.Fold.String(raw)
	folded = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, folded)
	return strings.TrimSpace(folded)
}

var platformTitle = cases.Title(language.English)

// PlatformLabel renders a platform name for display, e.g. "youtube" as "Youtube".
func PlatformLabel(platform string) string {
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return "Unknown"
	}
	if platform == "youtube" {
		return "YouTube"
	}
	return platformTitle.String(platform)
}
