package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCache()
	c.normalizeDownloader()
	if err := c.normalizePlayer(); err != nil {
		return err
	}
	if err := c.normalizeScanner(); err != nil {
		return err
	}
	c.normalizeWeb()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.data_dir", &c.Paths.DataDir},
		{"paths.cache_dir", &c.Paths.CacheDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.sounds_dir", &c.Paths.SoundsDir},
		{"paths.socket_path", &c.Paths.SocketPath},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeCache() {
	if c.Cache.MaxGiB < 0 {
		c.Cache.MaxGiB = 0
	}
	if c.Cache.MinFreeMiB < 0 {
		c.Cache.MinFreeMiB = 0
	}
	if c.Cache.DownloadTimeoutSeconds <= 0 {
		c.Cache.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Cache.EventRetentionDays <= 0 {
		c.Cache.EventRetentionDays = defaultEventRetentionDays
	}
}

func (c *Config) normalizeDownloader() {
	c.Downloader.Binary = strings.TrimSpace(c.Downloader.Binary)
	if c.Downloader.Binary == "" {
		c.Downloader.Binary = defaultDownloaderBinary
	}
	c.Downloader.Format = strings.TrimSpace(c.Downloader.Format)
	if c.Downloader.Format == "" {
		c.Downloader.Format = defaultDownloaderFormat
	}
}

func (c *Config) normalizePlayer() error {
	c.Player.Binary = strings.TrimSpace(c.Player.Binary)
	if c.Player.Binary == "" {
		c.Player.Binary = defaultPlayerBinary
	}
	c.Player.IPCSocket = strings.TrimSpace(c.Player.IPCSocket)
	if c.Player.IPCSocket == "" {
		c.Player.IPCSocket = defaultPlayerSocket
	}
	socket, err := expandPath(c.Player.IPCSocket)
	if err != nil {
		return fmt.Errorf("player.ipc_socket: %w", err)
	}
	c.Player.IPCSocket = socket

	connectors := c.Player.DisplayConnectors[:0]
	seen := make(map[string]struct{}, len(c.Player.DisplayConnectors))
	for _, connector := range c.Player.DisplayConnectors {
		trimmed := strings.TrimSpace(connector)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		connectors = append(connectors, trimmed)
	}
	c.Player.DisplayConnectors = connectors

	if c.Player.MaxPlayMinutes <= 0 {
		c.Player.MaxPlayMinutes = defaultMaxPlayMinutes
	}
	if c.Player.StartupTimeoutSeconds <= 0 {
		c.Player.StartupTimeoutSeconds = defaultStartupTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeScanner() error {
	c.Scanner.DevicePath = strings.TrimSpace(c.Scanner.DevicePath)
	if c.Scanner.DevicePath == "" {
		return nil
	}
	path, err := expandPath(c.Scanner.DevicePath)
	if err != nil {
		return fmt.Errorf("scanner.device_path: %w", err)
	}
	c.Scanner.DevicePath = path
	return nil
}

func (c *Config) normalizeWeb() {
	c.Web.Bind = strings.TrimSpace(c.Web.Bind)
	if c.Web.Bind == "" {
		c.Web.Bind = defaultWebBind
	}
	if c.Web.RequestsPerMin <= 0 {
		c.Web.RequestsPerMin = defaultWebRequestsPerMin
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("VIDKIOSK_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
