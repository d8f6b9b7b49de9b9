// Package scanner turns a USB QR/barcode scanner into a stream of strings.
//
// Scanners present themselves as keyboards. The listener reads raw evdev
// key events from the device, decodes them with a US QWERTY map, and emits
// one string per Enter. The device is grabbed exclusively so scans never
// leak into whatever else has keyboard focus. When no device is present
// the listener waits for an input hotplug event from udev and retries.
package scanner
