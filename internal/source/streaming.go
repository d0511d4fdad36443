package source

// streaming.go holds the readers CSV decoding runs through:
//
//   - BOMSkippingReader drops a leading UTF-8 byte order mark
//   - UTF8Sanitizer replaces invalid UTF-8 bytes with '?'
//   - CountingReader tracks bytes read for progress logging
//
// WrapForStreaming applies them in that order.

import (
	"bufio"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader removes a UTF-8 BOM from the start of a stream.
type BOMSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

// NewBOMSkippingReader wraps r.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: bufio.NewReader(r)}
}

func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, _ := b.r.Peek(len(utf8BOM))
		if len(head) == len(utf8BOM) && head[0] == utf8BOM[0] && head[1] == utf8BOM[1] && head[2] == utf8BOM[2] {
			if _, err := b.r.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return b.r.Read(p)
}

// UTF8Sanitizer replaces each byte that is not part of a valid UTF-8
// sequence with '?'. A multi-byte sequence split across reads is held back
// until the next read completes it. Reads need a buffer of at least
// utf8.UTFMax bytes.
type UTF8Sanitizer struct {
	r       io.Reader
	pending []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	atEOF := err == io.EOF
	w := s.sanitize(p[:n], atEOF)
	if w == 0 && err == nil {
		// Only a partial sequence so far; read again rather than return 0, nil.
		return s.Read(p)
	}
	return w, err
}

// sanitize rewrites data in place and returns the length of the clean
// prefix. An incomplete trailing sequence is moved to pending unless atEOF.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	w := 0
	for r := 0; r < len(data); {
		c := data[r]
		if c < utf8.RuneSelf {
			data[w] = c
			w++
			r++
			continue
		}
		if !atEOF && !utf8.FullRune(data[r:]) {
			s.pending = append(s.pending, data[r:]...)
			return w
		}
		ru, size := utf8.DecodeRune(data[r:])
		if ru == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
	Total     int64 // 0 when unknown
}

// NewCountingReader wraps r. total may be 0 when the size is unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, Total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// Progress returns the share read as a percentage, or 0 if Total is unknown.
func (c *CountingReader) Progress() int {
	if c.Total <= 0 {
		return 0
	}
	p := int(c.BytesRead * 100 / c.Total)
	if p > 100 {
		p = 100
	}
	return p
}

// WrapForStreaming strips the BOM, then sanitizes, then counts.
func WrapForStreaming(r io.Reader, total int64) *CountingReader {
	return NewCountingReader(NewUTF8Sanitizer(NewBOMSkippingReader(r)), total)
}
