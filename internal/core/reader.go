package core

// reader.go cleans raw upload bytes before they reach encoding/csv.
//
// Spreadsheet exports are frequently prefixed with a UTF-8 byte order mark
// and occasionally contain stray Latin-1 bytes. Both are handled as a
// stream so large files never need a second in-memory copy.

import (
	"bufio"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader positioned after a leading UTF-8 BOM, if any.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil &&
		head[0] == utf8BOM[0] && head[1] == utf8BOM[1] && head[2] == utf8BOM[2] {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces every invalid UTF-8 byte with U+FFFD.
type UTF8Sanitizer struct {
	src *bufio.Reader
	buf [utf8.UTFMax]byte
	// carry holds the tail of an encoded rune that did not fit in p.
	carry []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &UTF8Sanitizer{src: br}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	n := copy(p, s.carry)
	s.carry = s.carry[n:]

	for n < len(p) {
		r, _, err := s.src.ReadRune()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}
		// ReadRune reports an invalid byte as (RuneError, 1); re-encoding
		// it writes the three byte replacement character.
		w := utf8.EncodeRune(s.buf[:], r)
		c := copy(p[n:], s.buf[:w])
		n += c
		if c < w {
			s.carry = append(s.carry[:0], s.buf[c:w]...)
		}
	}
	return n, nil
}

// CountingReader tracks how many bytes have passed through it.
type CountingReader struct {
	r     io.Reader
	Bytes int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.Bytes += int64(n)
	return n, err
}

// CleanInput applies BOM stripping and UTF-8 sanitizing in that order.
func CleanInput(r io.Reader) io.Reader {
	return NewUTF8Sanitizer(SkipBOM(r))
}
