// Package videourl turns scanned or pasted text into a platform video
// reference.
//
// Platforms plug in through the Handler interface; the default registry
// knows YouTube watch, short-link, and embed URLs. Scanner input is
// width-folded first so a scanner in a full-width IME mode still yields
// ASCII.
package videourl
