package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// ErrUnavailable reports that the IPC socket could not be reached.
var ErrUnavailable = errors.New("mpv ipc unavailable")

// DefaultCommandTimeout bounds a single IPC round trip when the caller's
// context has no earlier deadline.
const DefaultCommandTimeout = 5 * time.Second

// CommandError is returned when mpv answers with an error status.
type CommandError struct {
	Command string
	Status  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("mpv %s: %s", e.Command, e.Status)
}

// IsPropertyUnavailable reports whether err is mpv's answer for a property
// that has no value in the current state (for example path while idle).
func IsPropertyUnavailable(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr) && cmdErr.Status == "property unavailable"
}

type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type response struct {
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID *int64          `json:"request_id"`
	Event     string          `json:"event"`
}

// Client sends commands to one mpv IPC socket.
type Client struct {
	socket  string
	timeout time.Duration
	nextID  atomic.Int64
	dialer  net.Dialer
}

// NewClient returns a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{socket: path, timeout: DefaultCommandTimeout}
}

// Socket returns the IPC socket path.
func (c *Client) Socket() string {
	return c.socket
}

// Command runs one IPC command and returns the raw data field.
func (c *Client) Command(ctx context.Context, args ...any) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, errors.New("mpv command required")
	}
	name := fmt.Sprint(args[0])
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "unix", c.socket)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.socket, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	id := c.nextID.Add(1)
	payload, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("encode mpv %s: %w", name, err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", ErrUnavailable, name, err)
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, name, err)
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("decode mpv %s reply: %w", name, err)
		}
		// Async events share the connection; skip anything not ours.
		if resp.Event != "" || resp.RequestID == nil || *resp.RequestID != id {
			continue
		}
		if resp.Error != "success" {
			return nil, &CommandError{Command: name, Status: resp.Error}
		}
		return resp.Data, nil
	}
}

// LoadFile replaces the current file with path.
func (c *Client) LoadFile(ctx context.Context, path string) error {
	_, err := c.Command(ctx, "loadfile", path, "replace")
	return err
}

// Stop stops playback, leaving mpv idle.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.Command(ctx, "stop")
	return err
}

// ShowText renders text on the OSD for d.
func (c *Client) ShowText(ctx context.Context, text string, d time.Duration) error {
	_, err := c.Command(ctx, "show-text", text, d.Milliseconds())
	return err
}

// IdleActive reports whether mpv has nothing loaded.
func (c *Client) IdleActive(ctx context.Context) (bool, error) {
	var idle bool
	if err := c.property(ctx, "idle-active", &idle); err != nil {
		return false, err
	}
	return idle, nil
}

// Path returns the currently loaded file path. ok is false when idle.
func (c *Client) Path(ctx context.Context) (string, bool, error) {
	var path string
	err := c.property(ctx, "path", &path)
	if IsPropertyUnavailable(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

func (c *Client) property(ctx context.Context, name string, out any) error {
	data, err := c.Command(ctx, "get_property", name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode mpv property %s: %w", name, err)
	}
	return nil
}
