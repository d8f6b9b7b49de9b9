package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"vidkiosk/internal/config"
	"vidkiosk/internal/deps"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/notifications"
	"vidkiosk/internal/scanner"
	"vidkiosk/internal/sound"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minFree bytes available.
func CheckFreeSpace(name, path string, minFree int64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := int64(st.Bavail) * int64(st.Bsize)
	detail := fmt.Sprintf("%s free", logging.FormatBytes(free))
	if free < minFree {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, logging.FormatBytes(minFree))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSounds verifies the feedback sound files are present. Missing sounds
// only silence the cues, so the detail names what is absent.
func CheckSounds(dir string) Result {
	const name = "Feedback sounds"
	var missing []string
	for _, file := range []string{sound.SuccessFile, sound.ErrorFile} {
		if err := unix.Access(filepath.Join(dir, file), unix.R_OK); err != nil {
			missing = append(missing, file)
		}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (missing: %s)", dir, strings.Join(missing, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: dir}
}

// CheckScanner verifies the configured input device is readable or, when
// devicePath is empty, that auto-detection finds one. An empty sysfsRoot
// uses the system default.
func CheckScanner(devicePath, sysfsRoot string) Result {
	const name = "Barcode scanner"
	if devicePath = strings.TrimSpace(devicePath); devicePath != "" {
		if err := unix.Access(devicePath, unix.R_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v; add the user to the input group)", devicePath, err)}
		}
		return Result{Name: name, Passed: true, Detail: devicePath}
	}
	if sysfsRoot == "" {
		sysfsRoot = scanner.DefaultSysfsRoot
	}
	devices, err := scanner.ListDevices(sysfsRoot)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("enumerate input devices: %v", err)}
	}
	dev, ok := scanner.SelectDevice(devices)
	if !ok {
		return Result{Name: name, Detail: "no keyboard-like input device found"}
	}
	detail := dev.Path
	if dev.Name != "" {
		detail = fmt.Sprintf("%s (%s, auto-detected)", dev.Path, dev.Name)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckBind verifies the address can be listened on. It fails when another
// process, including a running daemon, already holds the port.
func CheckBind(name, addr string) Result {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", addr, err)}
	}
	_ = listener.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s available", addr)}
}

// CheckNtfy verifies the ntfy server behind topic answers its health endpoint.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	endpoint := notifications.TopicURL(topic)
	if endpoint == "" {
		return Result{Name: name, Detail: "topic not configured"}
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid topic url %q", endpoint)}
	}
	health := parsed.Scheme + "://" + parsed.Host + "/v1/health"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: parsed.Host + " reachable"}
}

// CheckSystemDeps evaluates the external binaries for the given config.
// Both the daemon and the CLI check command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (server unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (server unreachable)"
	}
	return err.Error()
}
