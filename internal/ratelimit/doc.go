// Package ratelimit decides whether a video may start playing.
//
// A Limiter counts play events inside a rolling window that ends at the
// decision time. Admission is read-only; the caller records an event only
// when playback actually starts. The policy is fetched on every call so a
// change made from the dashboard applies to the very next request, including
// to events recorded under the previous policy.
package ratelimit
