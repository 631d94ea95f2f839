package core

// streaming.go provides the readers the table store layers over the mapping.
//
// Rows are never copied out of the mapping as a whole. Each scan opens a
// section of the mapped bytes and passes it through:
//
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?' one-for-one, so
//     byte offsets reported by the CSV reader still match the mapping
//   - bomLength: detects the UTF-8 BOM (0xEF 0xBB 0xBF) so scans start after it

import (
	"io"
	"unicode/utf8"
)

// utf8BOM is the byte order mark written by many Windows programs.
var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

// UTF8Sanitizer wraps an io.Reader and replaces each invalid UTF-8 byte with
// '?' on the fly. Output length always equals input length.
type UTF8Sanitizer struct {
	reader io.Reader

	// Leftover bytes from the previous read that may start a multi-byte rune
	pending []byte
}

// NewUTF8Sanitizer creates a new streaming UTF-8 sanitizer.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = append(s.pending[:0], s.pending[offset:]...)
		if len(s.pending) > 0 {
			// p could not even hold the carried bytes
			return offset, nil
		}
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	// Fast path: most CSV data is ASCII
	if isAllASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// isAllASCII returns true if all bytes are ASCII (< 128).
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites invalid bytes in place and returns how many bytes of data
// are ready. Unless atEOF, an incomplete rune at the end is held back in
// pending for the next call.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	for i := 0; i < len(data); {
		if data[i] < utf8.RuneSelf {
			i++
			continue
		}

		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && isIncompleteRune(data[i:]) {
				s.pending = append(s.pending, data[i:]...)
				return i
			}
			data[i] = '?'
		}
		i += size
	}
	return len(data)
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0 // continuation byte
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// isIncompleteRune reports whether data is a valid prefix of a multi-byte
// rune that was cut off by the end of the buffer.
func isIncompleteRune(data []byte) bool {
	want := runeLen(data[0])
	if want <= 1 || len(data) >= want {
		return false
	}
	for _, b := range data[1:] {
		if b&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// bomLength returns 3 if data starts with a UTF-8 BOM, 0 otherwise.
func bomLength(r io.ReaderAt, size int64) int64 {
	if size < int64(len(utf8BOM)) {
		return 0
	}
	var buf [3]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return 0
	}
	if buf == utf8BOM {
		return int64(len(utf8BOM))
	}
	return 0
}
