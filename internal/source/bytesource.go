// Package source implements the resumable, markable, counted input
// abstractions every reader is built on: ByteSource and CharSource. It is
// the narrowly-scoped buffering layer built around a raw-buffer
// refill/compaction loop in the style of a hand-written streaming scanner.
package source

// ByteSource is a pull-based, resumable byte stream. Callers drive it by
// feeding chunks (Feed) and marking the final chunk (Close); readers built
// on top suspend rather than block when Available() is zero and the source
// is not yet final.
type ByteSource struct {
	buf        []byte
	pos        int // next unread byte
	final      bool
	byteNumber int64 // count of bytes consumed via Get/GetSlice
	markSet    bool
	markPos    int
}

// NewByteSource creates a ByteSource pre-loaded with data. If final is true,
// no further input will ever be fed and EOF is permanent once data is
// consumed.
func NewByteSource(data []byte, final bool) *ByteSource {
	return &ByteSource{buf: data, final: final}
}

// Feed appends more input to a non-final source. It is an error to feed a
// source that has already been closed.
func (s *ByteSource) Feed(data []byte) {
	if s.final {
		panic("source: Feed called on a closed ByteSource")
	}
	s.compact()
	s.buf = append(s.buf, data...)
}

// Close marks the source as final: Available() returning 0 from now on is a
// true end-of-stream rather than a suspension point.
func (s *ByteSource) Close() { s.final = true }

// IsFinal reports whether Close has been called.
func (s *ByteSource) IsFinal() bool { return s.final }

// Available returns the number of unread bytes currently buffered. Zero
// means "suspend and wait for more input" unless IsFinal is also true, in
// which case it means true EOF.
func (s *ByteSource) Available() int { return len(s.buf) - s.pos }

// ByteNumber returns the running count of bytes consumed so far.
func (s *ByteSource) ByteNumber() int64 { return s.byteNumber }

// Get returns the next byte, or false if none is currently available.
func (s *ByteSource) Get() (byte, bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	b := s.buf[s.pos]
	s.pos++
	s.byteNumber++
	return b, true
}

// Peek returns the next byte without consuming it.
func (s *ByteSource) Peek() (byte, bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	return s.buf[s.pos], true
}

// PeekAt returns the byte `ahead` positions past the cursor without
// consuming anything, for short lookaheads (e.g. distinguishing a 2-byte
// token from a 1-byte one).
func (s *ByteSource) PeekAt(ahead int) (byte, bool) {
	idx := s.pos + ahead
	if idx >= len(s.buf) {
		return 0, false
	}
	return s.buf[idx], true
}

// GetSlice returns a borrowed slice of up to n unread bytes. It returns
// false if zero bytes are currently available (caller must distinguish
// "need more input" from "true EOF" via IsFinal). The returned slice is
// only valid until the next Get/GetSlice/Feed call.
func (s *ByteSource) GetSlice(n int) ([]byte, bool) {
	avail := s.Available()
	if avail == 0 {
		return nil, false
	}
	if n > avail {
		n = avail
	}
	out := s.buf[s.pos : s.pos+n]
	s.pos += n
	s.byteNumber += int64(n)
	return out, true
}

// Mark records the current position so a later Reset can rewind to it. Only
// one mark is held at a time; distance is bounded only by buffer
// retention, which Compact respects.
func (s *ByteSource) Mark() {
	s.markSet = true
	s.markPos = s.pos
}

// Reset rewinds to the most recent Mark, un-counting the rewound bytes from
// ByteNumber. It panics if no mark is set, which is a programmer error;
// compact never drops bytes at or after a held mark.
func (s *ByteSource) Reset() {
	if !s.markSet {
		panic("source: Reset called without a prior Mark")
	}
	s.byteNumber -= int64(s.pos - s.markPos)
	s.pos = s.markPos
}

// Unmark releases the held mark, allowing Compact to reclaim consumed
// bytes before the old mark position.
func (s *ByteSource) Unmark() { s.markSet = false }

// compact drops already-consumed bytes from the front of the buffer,
// moving the remaining bytes to the beginning. It never drops bytes at or
// after a held mark.
func (s *ByteSource) compact() {
	low := s.pos
	if s.markSet && s.markPos < low {
		low = s.markPos
	}
	if low == 0 {
		return
	}
	copy(s.buf, s.buf[low:])
	s.buf = s.buf[:len(s.buf)-low]
	s.pos -= low
	if s.markSet {
		s.markPos -= low
	}
}
