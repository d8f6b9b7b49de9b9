// Package main hosts the vidkiosk CLI entrypoint and command graph.
//
// `vidkiosk run` starts the daemon in the foreground, usually under systemd.
// Every other command talks to the running daemon over its Unix socket, except
// the config and check commands, which work offline.
package main
