package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePolicy(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateWeb(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.CacheDir == c.Paths.DataDir {
		return errors.New("paths.cache_dir must differ from paths.data_dir; cache pruning removes unknown files")
	}
	return nil
}

func (c *Config) validatePolicy() error {
	if c.Policy.MaxVideos <= 0 {
		return errors.New("policy.max_videos must be positive")
	}
	if c.Policy.PeriodHours <= 0 {
		return errors.New("policy.period_hours must be positive")
	}
	if float64(c.Cache.EventRetentionDays*24) < c.Policy.PeriodHours {
		return fmt.Errorf("cache.event_retention_days (%d) must cover policy.period_hours (%.1f)", c.Cache.EventRetentionDays, c.Policy.PeriodHours)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"cache.download_timeout_seconds": c.Cache.DownloadTimeoutSeconds,
		"player.max_play_minutes":        c.Player.MaxPlayMinutes,
		"player.startup_timeout_seconds": c.Player.StartupTimeoutSeconds,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
		"web.requests_per_minute":        c.Web.RequestsPerMin,
	})
}

func (c *Config) validateWeb() error {
	if !c.Web.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Web.Bind); err != nil {
		return fmt.Errorf("web.bind %q: %w", c.Web.Bind, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
