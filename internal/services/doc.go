// Package services defines shared utilities consumed by the request pipeline
// and the external tool integrations under it.
//
// Key responsibilities:
//   - Context helpers that stamp video IDs, lifecycle stages, input sources,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures from yt-dlp,
//     mpv, and ntfy can be classified without string matching.
//
// The integrations themselves live in subpackages (ytdlp, mpv).
package services
