package preflight

import (
	"context"

	"vidkiosk/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckFreeSpace("Cache free space", cfg.Paths.CacheDir, cfg.CacheMinFreeBytes()),
		CheckSounds(cfg.Paths.SoundsDir),
	}

	if cfg.Scanner.Enabled {
		results = append(results, CheckScanner(cfg.Scanner.DevicePath, ""))
	}

	if cfg.Web.Enabled {
		results = append(results, CheckBind("Dashboard bind", cfg.Web.Bind))
	}

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}

	return results
}
