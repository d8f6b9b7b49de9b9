// Package settings holds the runtime-editable kiosk settings.
//
// Values edited from the dashboard are persisted in the store's settings
// table and take precedence over the TOML defaults. The Manager is the
// PolicySource the rate limiter consults on every admission check, so an
// edit applies to the very next scan.
package settings
