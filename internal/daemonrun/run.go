package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"vidkiosk/internal/config"
	"vidkiosk/internal/daemon"
	"vidkiosk/internal/idlescreen"
	"vidkiosk/internal/ipc"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/notifications"
	"vidkiosk/internal/orchestrator"
	"vidkiosk/internal/playback"
	"vidkiosk/internal/preflight"
	"vidkiosk/internal/ratelimit"
	"vidkiosk/internal/scanner"
	"vidkiosk/internal/services/mpv"
	"vidkiosk/internal/services/ytdlp"
	"vidkiosk/internal/settings"
	"vidkiosk/internal/sound"
	"vidkiosk/internal/store"
	"vidkiosk/internal/videocache"
	"vidkiosk/internal/videourl"
	"vidkiosk/internal/web"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured level when set.
	LogLevel string
}

// Run starts the vidkiosk daemon and blocks until a signal arrives or a
// background service fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	hub := logging.NewStreamHub(512)
	logger, logPath, err := logging.NewDaemonLogger(cfg, hub, time.Now())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vidkiosk.log link: %v\n", err)
	}
	logDependencySnapshot(logger, cfg)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	manager := settings.NewManager(st, cfg, settings.WithLogger(logger))
	current, err := manager.Load(signalCtx)
	if err != nil {
		logging.WarnWithContext(logger, "settings unavailable", "settings_load_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "configured defaults apply until settings are saved again"),
		)
		current = settings.Defaults(cfg)
	}

	limiter := ratelimit.New(st, manager, ratelimit.WithLogger(logger))
	downloader, err := ytdlp.New(cfg.Downloader.Binary, cfg.Downloader.Format)
	if err != nil {
		return fmt.Errorf("create downloader: %w", err)
	}
	resolver, err := videocache.New(cfg, st, downloader,
		videocache.WithLogger(logger),
		videocache.WithProgress(func(videoID string, p ytdlp.Progress) {
			logger.Debug("download progress",
				logging.String("video_id", videoID),
				logging.Float64("percent", p.Percent),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("create video cache: %w", err)
	}
	defer resolver.Close()

	displayOpts := []mpv.DisplayOption{mpv.WithDisplayLogger(logger)}
	if cfg.Player.IdleImage {
		path := cfg.IdleImagePath()
		if _, err := idlescreen.Ensure(path, idlescreen.DefaultWidth, idlescreen.DefaultHeight); err != nil {
			logger.Warn("idle image unavailable, using mpv's black idle window",
				logging.String("path", path),
				logging.Error(err),
			)
		} else {
			displayOpts = append(displayOpts, mpv.WithIdleImage(path))
		}
	}

	var d *daemon.Daemon
	supervisor := mpv.NewSupervisor(processConfigs(cfg),
		mpv.WithSupervisorLogger(logger),
		mpv.WithRestartHook(func(index int) {
			d.PlayerRestarted(signalCtx, index)
		}),
	)
	display := mpv.NewDisplay(supervisor.Sockets(), displayOpts...)
	controller := playback.New(display,
		playback.WithLogger(logger),
		playback.WithMaxDuration(cfg.MaxPlayDuration()),
	)

	cues := sound.New(cfg.Player.Binary, cfg.Paths.SoundsDir, sound.WithLogger(logger))
	defer cues.Close()

	notifier := notifications.NewService(cfg)
	orch, err := orchestrator.New(videourl.DefaultRegistry(), limiter, resolver, controller,
		orchestrator.WithLogger(logger),
		orchestrator.WithFeedback(cues),
		orchestrator.WithObserver(daemon.OutcomeNotifier(notifier, logger)),
		orchestrator.WithOnPlay(daemon.PlayNotifier(notifier, logger)),
	)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "vidkiosk.pid")
	var wrotePID bool
	defer func() {
		if wrotePID {
			_ = os.Remove(pidPath)
		}
	}()
	daemonOpts := []daemon.Option{
		daemon.WithLogger(logger),
		daemon.WithLogHub(hub),
		daemon.WithDebugOverlay(display),
		daemon.WithDebugMode(current.DebugMode),
		daemon.WithActiveLog(logPath),
		daemon.WithPrepare("pid", func(context.Context) error {
			if err := writePIDFile(pidPath); err != nil {
				return err
			}
			wrotePID = true
			return nil
		}),
		daemon.WithPrepare("mpv", supervisor.Start),
		daemon.WithService("mpv", supervisor.Run),
	}

	var devicePath atomic.Value
	devicePath.Store(scannerDevice(cfg, current))
	var listener *scanner.Listener
	if cfg.Scanner.Enabled {
		listenerOpts := []scanner.Option{
			scanner.WithLogger(logger),
			scanner.WithGrab(cfg.Scanner.Grab),
			scanner.WithDevicePath(func() string {
				return devicePath.Load().(string)
			}),
		}
		if cfg.Scanner.Hotplug {
			hotplug := scanner.NewHotplug(logger)
			hotplug.Start(signalCtx)
			defer hotplug.Stop()
			listenerOpts = append(listenerOpts, scanner.WithHotplug(hotplug.Events()))
		}
		listener = scanner.NewListener(func(ctx context.Context, line string) {
			if !d.Enqueue(scannerSource, line) {
				cues.Error(ctx)
			}
		}, listenerOpts...)
		daemonOpts = append(daemonOpts,
			daemon.WithScanner(listener),
			daemon.WithService("scanner", listener.Run),
		)
	}

	d, err = daemon.New(cfg, daemon.Deps{
		Handler:  orch,
		Player:   controller,
		Events:   st,
		Policy:   manager,
		Cache:    resolver,
		Notifier: notifier,
	}, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	manager.OnChange(func(s settings.Settings) {
		d.SetDebugMode(s.DebugMode)
		next := scannerDevice(cfg, s)
		if prev := devicePath.Swap(next); prev != next && listener != nil {
			listener.Reconnect()
		}
	})

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that mpv can open the display and no other daemon is running"),
		)
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if cfg.Web.Enabled {
		srv, err := web.New(cfg.Web.Bind, kiosk{d: d}, manager, st,
			web.WithLogger(logger),
			web.WithRequestsPerMinute(cfg.Web.RequestsPerMin),
		)
		if err != nil {
			return fmt.Errorf("create dashboard: %w", err)
		}
		if err := srv.Start(signalCtx); err != nil {
			return fmt.Errorf("start dashboard: %w", err)
		}
		defer srv.Stop()
	}

	select {
	case <-signalCtx.Done():
		logger.Info("vidkiosk daemon shutting down")
		return nil
	case <-d.Done():
		err := d.Err()
		logger.Error("vidkiosk daemon stopped", logging.Error(err))
		return err
	}
}

const scannerSource = "scanner"

// processConfigs returns one mpv instance per display connector, or a single
// instance on the default output when none are configured.
func processConfigs(cfg *config.Config) []mpv.ProcessConfig {
	connectors := cfg.Player.DisplayConnectors
	if len(connectors) == 0 {
		connectors = []string{""}
	}
	configs := make([]mpv.ProcessConfig, 0, len(connectors))
	for i, connector := range connectors {
		configs = append(configs, mpv.ProcessConfig{
			Binary:         cfg.Player.Binary,
			Socket:         cfg.PlayerSocket(i),
			Connector:      connector,
			StartupTimeout: cfg.PlayerStartupTimeout(),
		})
	}
	return configs
}

// scannerDevice prefers the dashboard override over the configured path.
// Empty means auto-detect.
func scannerDevice(cfg *config.Config, s settings.Settings) string {
	if path := strings.TrimSpace(s.ScannerDevicePath); path != "" {
		return path
	}
	return strings.TrimSpace(cfg.Scanner.DevicePath)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "vidkiosk.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("scanner_enabled", cfg.Scanner.Enabled),
		logging.Bool("web_enabled", cfg.Web.Enabled),
	}
	for _, status := range preflight.CheckSystemDeps(cfg) {
		attrs = append(attrs,
			logging.Bool(status.Name+"_available", status.Available),
			logging.String(status.Name+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
