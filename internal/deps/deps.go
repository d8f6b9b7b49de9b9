package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"vidkiosk/internal/config"
)

// Requirement is an external binary the kiosk shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the result of looking a Requirement up on PATH.
type Status struct {
	Requirement
	// Path is the resolved executable when Available.
	Path      string
	Available bool
	Detail    string
}

// CheckBinaries resolves every requirement, in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		results[i] = lookup(req)
	}
	return results
}

func lookup(req Requirement) Status {
	st := Status{Requirement: req}
	if req.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return st
	}
	st.Path = path
	st.Available = true
	return st
}

// Requirements lists the binaries cfg points at. mpv covers both the display
// and the feedback sounds.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{Name: "yt-dlp", Command: cfg.Downloader.Binary, Description: "Downloads videos into the cache"},
		{Name: "mpv", Command: cfg.Player.Binary, Description: "Plays videos and feedback sounds"},
	}
}
