package scanner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"vidkiosk/internal/logging"
)

// Hotplug reports input devices being added or removed via udev netlink.
type Hotplug struct {
	logger *slog.Logger
	events chan struct{}

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewHotplug returns a monitor; call Start to connect.
func NewHotplug(logger *slog.Logger) *Hotplug {
	return &Hotplug{
		logger: logging.NewComponentLogger(logger, "scanner-hotplug"),
		events: make(chan struct{}, 1),
	}
}

// Events fires (coalesced) after an input device add or remove.
func (h *Hotplug) Events() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.events
}

// Start connects to the netlink socket. Failure is logged and non-fatal: the
// listener falls back to periodic rescans.
func (h *Hotplug) Start(ctx context.Context) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		h.logger.Warn("failed to connect to netlink socket; scanner hotplug disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "a newly plugged scanner is picked up on the next periodic rescan"),
		)
		return
	}
	h.conn = conn
	h.quit = make(chan struct{})
	h.done = make(chan struct{})
	h.running = true
	go h.loop(ctx, conn, h.quit, h.done)

	h.logger.Debug("scanner hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_started"),
	)
}

// Stop closes the netlink connection and waits for the monitor loop.
func (h *Hotplug) Stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	close(h.quit)
	done := h.done
	conn := h.conn
	h.conn = nil
	h.running = false
	h.mu.Unlock()

	<-done
	_ = conn.Close()
}

func (h *Hotplug) loop(ctx context.Context, conn *netlink.UEventConn, quit, done chan struct{}) {
	defer close(done)
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, inputMatcher())
	defer close(monitorQuit)

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case uevent := <-queue:
			h.logger.Debug("input device changed",
				logging.String("action", string(uevent.Action)),
				logging.String("device", uevent.Env["DEVNAME"]),
			)
			select {
			case h.events <- struct{}{}:
			default:
			}
		case err := <-errs:
			h.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "scanner hotplug may be delayed"),
			)
		}
	}
}

// inputMatcher matches add and remove of evdev nodes.
func inputMatcher() netlink.Matcher {
	action := "add|remove"
	devname := "input/event[0-9]+"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "input",
			"DEVNAME":   devname,
		},
	})
	return rules
}
