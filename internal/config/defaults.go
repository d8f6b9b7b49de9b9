package config

const (
	defaultDataDir                = "~/.local/share/vidkiosk"
	defaultLogDir                 = "~/.local/share/vidkiosk/logs"
	defaultSoundsDir              = "~/.local/share/vidkiosk/sounds"
	defaultSocketPath             = "~/.local/share/vidkiosk/vidkiosk.sock"
	defaultLogRetentionDays       = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultMaxVideos              = 3
	defaultPeriodHours            = 24.0
	defaultCacheMaxGiB            = 20
	defaultCacheMinFreeMiB        = 512
	defaultDownloadTimeoutSeconds = 900
	defaultEventRetentionDays     = 30
	defaultDownloaderBinary       = "yt-dlp"
	defaultDownloaderFormat       = "best[height<=720]/best"
	defaultPlayerBinary           = "mpv"
	defaultPlayerSocket           = "/tmp/vidkiosk-mpv.sock"
	defaultMaxPlayMinutes         = 180
	defaultStartupTimeoutSeconds  = 5
	defaultWebBind                = "0.0.0.0:8080"
	defaultWebRequestsPerMin      = 30
	defaultNotifyRequestTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			CacheDir:   defaultCacheDir(),
			LogDir:     defaultLogDir,
			SoundsDir:  defaultSoundsDir,
			SocketPath: defaultSocketPath,
		},
		Policy: Policy{
			MaxVideos:   defaultMaxVideos,
			PeriodHours: defaultPeriodHours,
		},
		Cache: Cache{
			MaxGiB:                 defaultCacheMaxGiB,
			MinFreeMiB:             defaultCacheMinFreeMiB,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
			EventRetentionDays:     defaultEventRetentionDays,
		},
		Downloader: Downloader{
			Binary: defaultDownloaderBinary,
			Format: defaultDownloaderFormat,
		},
		Player: Player{
			Binary:                defaultPlayerBinary,
			IPCSocket:             defaultPlayerSocket,
			MaxPlayMinutes:        defaultMaxPlayMinutes,
			StartupTimeoutSeconds: defaultStartupTimeoutSeconds,
			IdleImage:             true,
		},
		Scanner: Scanner{
			Enabled: true,
			Grab:    true,
			Hotplug: true,
		},
		Web: Web{
			Enabled:        true,
			Bind:           defaultWebBind,
			RequestsPerMin: defaultWebRequestsPerMin,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Playback:       true,
			RateLimited:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
