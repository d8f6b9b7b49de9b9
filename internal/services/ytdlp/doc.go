// Package ytdlp wraps the yt-dlp command-line downloader.
//
// The client downloads a single video into a caller-provided directory,
// reports progress parsed from yt-dlp's newline output, and classifies
// failures with the shared service markers so the cache can map them to
// fetch error kinds. Command execution goes through an Executor so tests can
// script output without spawning yt-dlp.
package ytdlp
