package mpv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"vidkiosk/internal/logging"
)

// ProcessConfig describes one idle mpv instance.
type ProcessConfig struct {
	Binary         string
	Socket         string
	Connector      string
	StartupTimeout time.Duration
}

// Args returns the mpv command line for cfg.
func (cfg ProcessConfig) Args() []string {
	args := []string{
		"--idle=yes",
		"--force-window=yes",
		"--fs",
		"--no-osc",
		"--no-input-default-bindings",
		"--no-terminal",
		"--keep-open=no",
		"--image-display-duration=inf",
		"--osd-align-y=bottom",
		"--osd-font-size=18",
		"--input-ipc-server=" + cfg.Socket,
	}
	if connector := strings.TrimSpace(cfg.Connector); connector != "" {
		args = append(args, "--vo=drm", "--drm-connector="+connector)
	}
	return args
}

// Handle is a running display process.
type Handle interface {
	Done() <-chan struct{}
	Err() error
	Stop(grace time.Duration) error
}

// Process is a running mpv started by StartProcess.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	once sync.Once
}

// StartProcess launches mpv and waits until its IPC socket answers.
func StartProcess(ctx context.Context, cfg ProcessConfig, logger *slog.Logger) (*Process, error) {
	if strings.TrimSpace(cfg.Binary) == "" {
		return nil, errors.New("mpv binary required")
	}
	if strings.TrimSpace(cfg.Socket) == "" {
		return nil, errors.New("mpv ipc socket required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.Remove(cfg.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	cmd := exec.Command(cfg.Binary, cfg.Args()...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = io.Discard
	cmd.Stderr = &lineLogger{logger: logger}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	timeout := cfg.StartupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := waitForSocket(ctx, cfg.Socket, timeout, p.done); err != nil {
		_ = p.Stop(2 * time.Second)
		return nil, err
	}
	logger.Info("mpv started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("socket", cfg.Socket),
		logging.String("connector", cfg.Connector),
	)
	return p, nil
}

func waitForSocket(ctx context.Context, socket string, timeout time.Duration, exited <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := NewClient(socket)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(socket); err == nil {
			if _, err := client.IdleActive(ctx); err == nil {
				return nil
			}
		}
		select {
		case <-exited:
			return fmt.Errorf("%w: mpv exited before creating %s", ErrUnavailable, socket)
		case <-ctx.Done():
			return fmt.Errorf("%w: mpv did not create %s within %s", ErrUnavailable, socket, timeout)
		case <-ticker.C:
		}
	}
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error once Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Stop terminates the process group, escalating to SIGKILL after grace.
func (p *Process) Stop(grace time.Duration) error {
	var result error
	p.once.Do(func() {
		pid := p.cmd.Process.Pid
		if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			_ = p.cmd.Process.Signal(unix.SIGTERM)
		}
		select {
		case <-p.done:
			return
		case <-time.After(grace):
		}
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			_ = p.cmd.Process.Kill()
		}
		select {
		case <-p.done:
		case <-time.After(grace):
			result = fmt.Errorf("mpv pid %d did not exit after SIGKILL", pid)
		}
	})
	return result
}

// lineLogger forwards mpv stderr lines at debug level.
type lineLogger struct {
	logger *slog.Logger
	mu     sync.Mutex
	buf    []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		idx := bytes.IndexByte(l.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(l.buf[:idx]))
		l.buf = l.buf[idx+1:]
		if line != "" {
			l.logger.Debug("mpv output", logging.String("line", line))
		}
	}
	if len(l.buf) > 64*1024 {
		l.buf = l.buf[:0]
	}
	return len(p), nil
}
