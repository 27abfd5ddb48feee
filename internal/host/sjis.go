package host

import (
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Utf8ToSjis transcodes a UTF-8 string to Shift_JIS bytes, used at the host boundary for
// filenames and text-file content. Characters with no Shift_JIS representation are replaced with
// the encoder's substitution byte rather than failing the call outright -- a real Human68k host
// never saw UTF-8 input to begin with, so there is no "correct" error behavior to preserve here.
func (n *Native) Utf8ToSjis(s string) []byte {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(s))
	if err != nil {
		// Fall back byte-by-byte so one bad rune doesn't lose an otherwise-good string.
		var buf []byte

		for _, r := range s {
			b, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(string(r)))
			if err != nil {
				b = []byte{'?'}
			}

			buf = append(buf, b...)
		}

		return buf
	}

	return out
}

// SjisToUtf8 transcodes Shift_JIS bytes (a guest filename or file content) to a UTF-8 string.
func (n *Native) SjisToUtf8(b []byte) string {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), b)
	if err != nil {
		return string(b)
	}

	return string(out)
}
