// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Play
// requests can optionally block until the video has finished so scripted
// callers see the terminal outcome.
package ipc
