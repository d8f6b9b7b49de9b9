package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"vidkiosk/internal/config"
	"vidkiosk/internal/ipc"
)

// skipConfigAnnotation marks commands that must run without a valid config,
// such as config init.
const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries the global flags and the lazily loaded config.
type commandContext struct {
	socketFlag string
	configFlag string

	loadConfig func() (*config.Config, error)
}

func newCommandContext() *commandContext {
	c := &commandContext{}
	c.loadConfig = sync.OnceValues(func() (*config.Config, error) {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return cfg, nil
	})
	return c
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.loadConfig()
}

// socketPath prefers --socket, then the config, then the default location.
func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.socketFlag); socket != "" {
		return socket
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.SocketPath
	}
	if socket, err := config.ExpandPath(config.Default().Paths.SocketPath); err == nil {
		return socket
	}
	return filepath.Join(os.TempDir(), "vidkiosk.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		err = wrapDialError(err, socket)
	}
	return client, err
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return fmt.Errorf("kiosk daemon is not running (no socket at %s); start it with `vidkiosk run`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("kiosk daemon at %s refused the connection; it may have exited uncleanly", socket)
	default:
		return fmt.Errorf("connect to kiosk daemon: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
