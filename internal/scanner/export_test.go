package scanner

import "encoding/binary"

// KeyEvent encodes one EV_KEY input_event as the kernel would deliver it.
func KeyEvent(code uint16, value int32) []byte {
	return encode(evKey, code, value)
}

// SyncEvent encodes an EV_SYN report.
func SyncEvent() []byte {
	return encode(0, 0, 0)
}

func encode(typ, code uint16, value int32) []byte {
	buf := make([]byte, eventSize)
	b := buf[timevalSize:]
	binary.NativeEndian.PutUint16(b[0:2], typ)
	binary.NativeEndian.PutUint16(b[2:4], code)
	binary.NativeEndian.PutUint32(b[4:8], uint32(value))
	return buf
}

// TypeLine encodes the key presses a scanner sends for s followed by Enter.
func TypeLine(s string) []byte {
	var out []byte
	for _, r := range s {
		code, shifted, ok := lookup(r)
		if !ok {
			continue
		}
		if shifted {
			out = append(out, KeyEvent(keyLeftShift, 1)...)
		}
		out = append(out, KeyEvent(code, 1)...)
		out = append(out, SyncEvent()...)
		out = append(out, KeyEvent(code, 0)...)
		if shifted {
			out = append(out, KeyEvent(keyLeftShift, 0)...)
		}
	}
	out = append(out, KeyEvent(keyEnter, 1)...)
	out = append(out, KeyEvent(keyEnter, 0)...)
	return out
}

func lookup(r rune) (uint16, bool, bool) {
	for code, chars := range keymap {
		if chars[0] == r {
			return code, false, true
		}
	}
	for code, chars := range keymap {
		if chars[1] == r {
			return code, true, true
		}
	}
	return 0, false, false
}
