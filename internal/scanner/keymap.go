package scanner

import "strings"

// Linux input event codes used by the decoder.
const (
	evKey = 0x01

	keyEnter      = 28
	keyLeftShift  = 42
	keyRightShift = 54
	keyKPEnter    = 96
)

// keymap maps evdev KEY_* codes to their unshifted and shifted characters.
var keymap = map[uint16][2]rune{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
	57: {' ', ' '},
}

// maxLine bounds a single scan; a stuck key cannot grow the buffer forever.
const maxLine = 4096

// Decoder accumulates key events into scanned lines.
type Decoder struct {
	buf   strings.Builder
	shift bool
}

// Feed consumes one EV_KEY event. value is 0 for release, 1 for press and
// 2 for autorepeat. It returns the completed line when Enter is pressed
// after at least one character.
func (d *Decoder) Feed(code uint16, value int32) (string, bool) {
	switch code {
	case keyLeftShift, keyRightShift:
		d.shift = value != 0
		return "", false
	case keyEnter, keyKPEnter:
		if value != 1 || d.buf.Len() == 0 {
			return "", false
		}
		line := d.buf.String()
		d.buf.Reset()
		return line, true
	}
	if value != 1 {
		return "", false
	}
	chars, ok := keymap[code]
	if !ok {
		return "", false
	}
	if d.buf.Len() >= maxLine {
		return "", false
	}
	if d.shift {
		d.buf.WriteRune(chars[1])
	} else {
		d.buf.WriteRune(chars[0])
	}
	return "", false
}

// Reset drops any partial line and modifier state.
func (d *Decoder) Reset() {
	d.buf.Reset()
	d.shift = false
}
