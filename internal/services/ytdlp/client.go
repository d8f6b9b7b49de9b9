package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"vidkiosk/internal/services"
)

// DefaultFormat keeps downloads small enough for a Raspberry Pi to decode.
const DefaultFormat = "best[height<=720]/best"

// Progress captures a yt-dlp download progress line.
type Progress struct {
	Percent float64
	Message string
}

// Executor abstracts command execution for testability. onLine receives
// stdout and stderr lines as they arrive.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary string
	format string
	exec   Executor
}

// New constructs a yt-dlp client.
func New(binary, format string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	format = strings.TrimSpace(format)
	if format == "" {
		format = DefaultFormat
	}
	client := &Client{
		binary: binary,
		format: format,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Download fetches url into destDir as <videoID>.<ext> and returns the file path.
// destDir should be private to this call; stray files in it are treated as output.
func (c *Client) Download(ctx context.Context, url, videoID, destDir string, progress func(Progress)) (string, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(videoID) == "" {
		return "", services.Wrap(services.ErrValidation, "download", "yt-dlp", "url and video id required", nil)
	}
	if destDir == "" {
		return "", errors.New("destination directory required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--no-color",
		"--no-part",
		"--no-mtime",
		"--format", c.format,
		"--output", filepath.Join(destDir, videoID+".%(ext)s"),
		"--print", "after_move:filepath",
		"--no-simulate",
		"--",
		url,
	}

	var (
		mu        sync.Mutex
		printed   string
		diagnosis []string
	)
	runErr := c.exec.Run(ctx, c.binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if update, ok := parseProgress(line); ok {
			if progress != nil {
				progress(update)
			}
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if filepath.IsAbs(line) && strings.HasPrefix(line, destDir) {
			printed = line
			return
		}
		if strings.HasPrefix(line, "ERROR:") || strings.HasPrefix(line, "WARNING:") {
			diagnosis = append(diagnosis, line)
		}
	})
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return "", services.Wrap(services.ErrTimeout, "download", "yt-dlp", "download timed out", ctxErr)
			}
			return "", ctxErr
		}
		return "", classifyFailure(diagnosis, runErr)
	}

	if printed != "" {
		if info, err := os.Stat(printed); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return printed, nil
		}
	}
	found, err := findOutput(destDir, videoID)
	if err != nil {
		return "", fmt.Errorf("inspect download output: %w", err)
	}
	if found == "" {
		return "", services.Wrap(services.ErrExternalTool, "download", "yt-dlp", "yt-dlp produced no output file", nil)
	}
	return found, nil
}

// Version returns the yt-dlp version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version string
	if err := c.exec.Run(ctx, c.binary, []string{"--version"}, func(line string) {
		if version == "" {
			version = strings.TrimSpace(line)
		}
	}); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "preflight", "yt-dlp --version", "", err)
	}
	return version, nil
}

var progressPattern = regexp.MustCompile(`^\[download\]\s+([0-9.]+)%`)

func parseProgress(line string) (Progress, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return Progress{}, false
	}
	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return Progress{}, false
	}
	return Progress{Percent: percent, Message: strings.TrimSpace(strings.TrimPrefix(line, "[download]"))}, true
}

var (
	unavailableMarkers = []string{
		"video unavailable",
		"private video",
		"this video is not available",
		"has been removed",
		"incomplete youtube id",
		"unsupported url",
		"is not a valid url",
		"http error 404",
		"sign in to confirm your age",
	}
	networkMarkers = []string{
		"unable to download",
		"urlopen error",
		"timed out",
		"temporary failure in name resolution",
		"name or service not known",
		"connection reset",
		"connection refused",
		"network is unreachable",
		"http error 5",
		"http error 429",
		"read timed out",
		"got error: ",
	}
)

// classifyFailure tags a failed run. Unavailable videos carry ErrNotFound,
// network trouble ErrTransient, and a full disk wraps unix.ENOSPC.
func classifyFailure(diagnosis []string, runErr error) error {
	detail := "yt-dlp failed"
	if len(diagnosis) > 0 {
		detail = diagnosis[len(diagnosis)-1]
	}
	lower := strings.ToLower(strings.Join(diagnosis, "\n"))

	switch {
	case strings.Contains(lower, "no space left on device"):
		return services.Wrap(services.ErrExternalTool, "download", "yt-dlp", detail, unix.ENOSPC)
	case containsAny(lower, unavailableMarkers):
		return services.Wrap(services.ErrNotFound, "download", "yt-dlp", detail, runErr)
	case containsAny(lower, networkMarkers):
		return services.Wrap(services.ErrTransient, "download", "yt-dlp", detail, runErr)
	default:
		return services.Wrap(services.ErrExternalTool, "download", "yt-dlp", detail, runErr)
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func findOutput(dir, videoID string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var (
		best     string
		bestSize int64
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, videoID+".") {
			continue
		}
		switch filepath.Ext(name) {
		case ".part", ".ytdl", ".tmp", ".json":
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, name)
			bestSize = info.Size()
		}
	}
	return best, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
