// Package transcode converts clipboard text between the UTF-16LE byte
// buffers used on the clipboard channel and the UTF-8 strings used locally.
package transcode

import "unicode/utf16"

// EncodeUTF16LE converts a UTF-8 string to a UTF-16LE byte buffer with a
// trailing two-byte zero code unit, the layout CF_UNICODETEXT payloads use.
// The result always has even length.
func EncodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 0, (len(units)+1)*2)
	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}
	return append(buf, 0, 0)
}

// DecodeUTF16LE converts a UTF-16LE byte buffer to a UTF-8 string, stopping
// at the first zero code unit or at the end of the buffer, whichever comes
// first. A trailing odd byte is ignored.
func DecodeUTF16LE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := uint16(b[i]) | uint16(b[i+1])<<8
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}
