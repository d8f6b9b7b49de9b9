package videourl

import (
	"net/url"
	"regexp"
	"strings"
)

var youtubeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// YouTube handles youtube.com watch and embed URLs and youtu.be short links.
type YouTube struct{}

// Platform implements Handler.
func (YouTube) Platform() string { return "youtube" }

// Subdomains that serve the same watch and embed paths as www.
var youtubeSubdomains = []string{"www.", "m.", "music."}

func youtubeHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	for _, prefix := range youtubeSubdomains {
		if rest, ok := strings.CutPrefix(host, prefix); ok {
			return rest
		}
	}
	return host
}

// Match implements Handler.
func (YouTube) Match(u *url.URL) bool {
	switch youtubeHost(u) {
	case "youtube.com", "youtu.be":
		return true
	}
	return false
}

// VideoID implements Handler.
func (y YouTube) VideoID(u *url.URL) (string, bool) {
	var id string
	switch youtubeHost(u) {
	case "youtu.be":
		id, _, _ = strings.Cut(strings.Trim(u.Path, "/"), "/")
	case "youtube.com":
		switch {
		case strings.HasPrefix(u.Path, "/embed/"):
			id, _, _ = strings.Cut(strings.TrimPrefix(u.Path, "/embed/"), "/")
		case u.Path == "/watch" || u.Path == "/watch/":
			id = u.Query().Get("v")
		}
	}
	if !y.ValidID(id) {
		return "", false
	}
	return id, true
}

// ValidID implements Handler.
func (YouTube) ValidID(id string) bool {
	return youtubeIDPattern.MatchString(id)
}

// CanonicalURL implements Handler.
func (YouTube) CanonicalURL(id string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(id)
}
