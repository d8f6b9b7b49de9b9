// Package preflight provides readiness checks for the binaries, paths, and
// services the kiosk depends on.
//
// The CLI "vidkiosk check" command runs every check and prints the results;
// the daemon logs the same results once at startup. Checks for disabled
// features (scanner, dashboard, notifications) are skipped.
package preflight
