package scanner

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// evioCGrab is EVIOCGRAB, _IOW('E', 0x90, int).
const evioCGrab = 0x40044590

// Capability bits from /sys/class/input/*/device/capabilities/ev.
const (
	capKey    = 1 << 1
	capRepeat = 1 << 20
)

// DefaultSysfsRoot is where input devices are enumerated.
const DefaultSysfsRoot = "/sys/class/input"

// Device is an evdev node that can produce key events.
type Device struct {
	Path string
	Name string
	// Keyboard is set for devices with key and autorepeat capability.
	Keyboard bool
}

// ListDevices enumerates event devices under sysfsRoot. Devices without key
// capability are skipped. The result is sorted by event number.
func ListDevices(sysfsRoot string) ([]Device, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "event*"))
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool {
		return eventNumber(matches[i]) < eventNumber(matches[j])
	})
	devices := make([]Device, 0, len(matches))
	for _, dir := range matches {
		caps, err := readCapabilities(filepath.Join(dir, "device", "capabilities", "ev"))
		if err != nil || caps&capKey == 0 {
			continue
		}
		name, _ := os.ReadFile(filepath.Join(dir, "device", "name"))
		devices = append(devices, Device{
			Path:     filepath.Join("/dev/input", filepath.Base(dir)),
			Name:     strings.TrimSpace(string(name)),
			Keyboard: caps&capRepeat != 0,
		})
	}
	return devices, nil
}

// SelectDevice picks the scanner among devices: a name mentioning scanner,
// barcode, or qr wins; otherwise the first keyboard-like device.
func SelectDevice(devices []Device) (Device, bool) {
	for _, dev := range devices {
		name := strings.ToLower(dev.Name)
		if strings.Contains(name, "scanner") || strings.Contains(name, "barcode") || strings.Contains(name, "qr") {
			return dev, true
		}
	}
	for _, dev := range devices {
		if dev.Keyboard {
			return dev, true
		}
	}
	return Device{}, false
}

func eventNumber(path string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "event"))
	if err != nil {
		return -1
	}
	return n
}

// readCapabilities parses the lowest word of a sysfs capability bitmap.
// The file holds space-separated hex words, most significant first.
func readCapabilities(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty capabilities in %s", path)
	}
	return strconv.ParseUint(fields[len(fields)-1], 16, 64)
}

// Opener opens a device for reading key events.
type Opener func(path string, grab bool) (io.ReadCloser, error)

// OpenDevice opens an evdev node and optionally takes an exclusive grab.
func OpenDevice(path string, grab bool) (io.ReadCloser, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	if grab {
		if err := unix.IoctlSetInt(int(f.Fd()), evioCGrab, 1); err != nil {
			f.Close()
			return nil, fmt.Errorf("grab %s: %w", path, err)
		}
	}
	return f, nil
}

// inputEvent mirrors struct input_event. The timestamp is two C longs.
type inputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

var (
	timevalSize = 2 * strconv.IntSize / 8
	eventSize   = timevalSize + 8
)

// readEvent reads one input_event from r.
func readEvent(r io.Reader, buf []byte) (inputEvent, error) {
	if _, err := io.ReadFull(r, buf[:eventSize]); err != nil {
		return inputEvent{}, err
	}
	b := buf[timevalSize:eventSize]
	return inputEvent{
		Type:  binary.NativeEndian.Uint16(b[0:2]),
		Code:  binary.NativeEndian.Uint16(b[2:4]),
		Value: int32(binary.NativeEndian.Uint32(b[4:8])),
	}, nil
}
