// Package web serves the parent dashboard: kiosk status, a paste-to-play
// form, runtime settings, recent views, and the /directplay/<url> shortcut
// used by bookmarklets and home-automation buttons.
//
// Nothing here plays video directly. Play requests are handed to the
// daemon's request queue exactly like scanner input.
package web
