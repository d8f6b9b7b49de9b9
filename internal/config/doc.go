// Package config loads, normalizes, and validates vidkiosk configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDKIOSK_NTFY_TOPIC. The policy section only seeds the runtime settings
// table; the daemon reads the live policy from the store on every request.
package config
