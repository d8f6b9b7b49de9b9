// Package notifications delivers kiosk events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event class
// can be switched off individually so a parent can, for example, receive
// errors without a push for every video.
package notifications
