// Package mpv drives mpv instances running in idle mode.
//
// Client speaks mpv's JSON IPC protocol over a Unix socket, one connection
// per command. Display fans commands out to one mpv per HDMI connector and
// implements the playback display backend. Process and Supervisor own the
// mpv processes themselves: they start mpv, wait for its IPC socket, and
// restart it with backoff when it dies.
package mpv
