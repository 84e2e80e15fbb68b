package source

import (
	"github.com/faceless2/evcodec"
)

// Encoding identifies the detected/declared charset of a CharSource.
type Encoding int8

const (
	AnyEncoding Encoding = iota
	UTF8
	UTF16LE
	UTF16BE
)

// CharSource decodes Unicode scalar values out of a ByteSource, performing
// a charset sniff on first read and preserving decoder state (a pending
// partial multi-byte/surrogate sequence) across ByteSource refills.
type CharSource struct {
	bs       *ByteSource
	encoding Encoding
	sniffed  bool

	trackPosition bool
	line, col     int
}

// NewCharSource wraps a ByteSource. If encoding is AnyEncoding, the charset
// is sniffed from the first bytes; otherwise the declared encoding is used
// as-is (no BOM is consumed).
func NewCharSource(bs *ByteSource, encoding Encoding, trackPosition bool) *CharSource {
	cs := &CharSource{bs: bs, encoding: encoding, trackPosition: trackPosition, line: 1, col: 1}
	if encoding != AnyEncoding {
		cs.sniffed = true
	}
	return cs
}

// Position reports the current line/column (1-based) if position tracking
// is enabled, else the zero Position carrying only a byte offset.
func (cs *CharSource) Position() evcodec.Position {
	if !cs.trackPosition {
		return evcodec.Position{Offset: cs.bs.ByteNumber()}
	}
	return evcodec.Position{Offset: cs.bs.ByteNumber(), Line: cs.line, Column: cs.col}
}

// sniff performs the §6.2 charset detection. It returns false if more input
// is needed to decide (fewer than 3 bytes buffered and not final).
func (cs *CharSource) sniff() bool {
	if cs.sniffed {
		return true
	}
	b0, ok0 := cs.bs.Peek()
	b1, ok1 := cs.bs.PeekAt(1)
	b2, ok2 := cs.bs.PeekAt(2)
	if !ok2 && !cs.bs.IsFinal() {
		return false // need a 3rd byte (or EOF) to disambiguate UTF-8 BOM
	}
	switch {
	case ok0 && ok1 && ok2 && b0 == 0xEF && b1 == 0xBB && b2 == 0xBF:
		cs.bs.Get()
		cs.bs.Get()
		cs.bs.Get()
		cs.encoding = UTF8
	case ok0 && ok1 && b0 == 0xFE && b1 == 0xFF:
		cs.bs.Get()
		cs.bs.Get()
		cs.encoding = UTF16BE
	case ok0 && ok1 && b0 == 0xFF && b1 == 0xFE:
		cs.bs.Get()
		cs.bs.Get()
		cs.encoding = UTF16LE
	case ok0 && ok1 && b0 == 0 && isPrintableASCII(b1):
		cs.encoding = UTF16BE
	case ok0 && ok1 && b1 == 0 && isPrintableASCII(b0):
		cs.encoding = UTF16LE
	default:
		cs.encoding = UTF8
	}
	cs.sniffed = true
	return true
}

func isPrintableASCII(b byte) bool { return b >= 0x20 && b < 0x7F }

// needMore is the error (ErrNeedMoreInput) that signals "not enough input
// buffered yet; feed more and retry" as opposed to a genuine decode error.
type needMore struct{}

func (needMore) Error() string { return "source: need more input" }

// ErrNeedMoreInput is returned by Next/PeekRune when the source is
// suspended mid-sequence in partial mode.
var ErrNeedMoreInput error = needMore{}

// PeekRune decodes, without consuming, the next rune.
func (cs *CharSource) PeekRune() (r rune, size int, err error) {
	if !cs.sniff() {
		return 0, 0, ErrNeedMoreInput
	}
	switch cs.encoding {
	case UTF8:
		return cs.peekUTF8()
	default:
		return cs.peekUTF16(cs.encoding == UTF16LE)
	}
}

// Advance consumes `size` bytes previously reported by PeekRune, updating
// line/column tracking if enabled.
func (cs *CharSource) Advance(r rune, size int) {
	for i := 0; i < size; i++ {
		cs.bs.Get()
	}
	if cs.trackPosition {
		if r == '\n' {
			cs.line++
			cs.col = 1
		} else {
			cs.col++
		}
	}
}

// Next decodes and consumes the next rune. ok is false when suspended
// (need more input, non-final) or at true EOF (check IsFinal/Available to
// distinguish); err is non-nil only for genuine malformed input.
func (cs *CharSource) Next() (r rune, ok bool, err error) {
	r, size, err := cs.PeekRune()
	if err == ErrNeedMoreInput {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if size == 0 {
		return 0, false, nil // true EOF
	}
	cs.Advance(r, size)
	return r, true, nil
}

func (cs *CharSource) peekUTF8() (rune, int, error) {
	b0, ok := cs.bs.Peek()
	if !ok {
		if cs.bs.IsFinal() {
			return 0, 0, nil
		}
		return 0, 0, ErrNeedMoreInput
	}
	var width int
	switch {
	case b0&0x80 == 0x00:
		width = 1
	case b0&0xE0 == 0xC0:
		width = 2
	case b0&0xF0 == 0xE0:
		width = 3
	case b0&0xF8 == 0xF0:
		width = 4
	default:
		return 0, 0, evcodec.NewError(evcodec.ErrInvalidUTF8, cs.Position(), "invalid leading UTF-8 byte 0x%02x", b0)
	}
	bytes := make([]byte, 0, 4)
	bytes = append(bytes, b0)
	for i := 1; i < width; i++ {
		b, ok := cs.bs.PeekAt(i)
		if !ok {
			if cs.bs.IsFinal() {
				return 0, 0, evcodec.NewError(evcodec.ErrInvalidUTF8, cs.Position(), "truncated UTF-8 sequence")
			}
			return 0, 0, ErrNeedMoreInput
		}
		if b&0xC0 != 0x80 {
			return 0, 0, evcodec.NewError(evcodec.ErrInvalidUTF8, cs.Position(), "invalid UTF-8 continuation byte")
		}
		bytes = append(bytes, b)
	}
	var value rune
	switch width {
	case 1:
		value = rune(bytes[0])
	case 2:
		value = rune(bytes[0]&0x1F)<<6 | rune(bytes[1]&0x3F)
	case 3:
		value = rune(bytes[0]&0x0F)<<12 | rune(bytes[1]&0x3F)<<6 | rune(bytes[2]&0x3F)
	case 4:
		value = rune(bytes[0]&0x07)<<18 | rune(bytes[1]&0x3F)<<12 | rune(bytes[2]&0x3F)<<6 | rune(bytes[3]&0x3F)
	}
	if value >= 0xD800 && value <= 0xDFFF || value > 0x10FFFF {
		return 0, 0, evcodec.NewError(evcodec.ErrInvalidUTF8, cs.Position(), "invalid unicode scalar value U+%04X", value)
	}
	return value, width, nil
}

func (cs *CharSource) peekUTF16(little bool) (rune, int, error) {
	lo, hi := 0, 1
	if !little {
		lo, hi = 1, 0
	}
	b0, ok0 := cs.bs.PeekAt(0)
	b1, ok1 := cs.bs.PeekAt(1)
	if !ok0 || !ok1 {
		if cs.bs.IsFinal() && !ok0 {
			return 0, 0, nil
		}
		if cs.bs.IsFinal() {
			return 0, 0, evcodec.NewError(evcodec.ErrUnexpectedEOF, cs.Position(), "truncated UTF-16 code unit")
		}
		return 0, 0, ErrNeedMoreInput
	}
	pair := [2]byte{b0, b1}
	unit := uint16(pair[lo]) | uint16(pair[hi])<<8
	if unit&0xFC00 == 0xDC00 {
		return 0, 0, evcodec.NewError(evcodec.ErrInvalidUTF8, cs.Position(), "unexpected UTF-16 low surrogate")
	}
	if unit&0xFC00 != 0xD800 {
		return rune(unit), 2, nil
	}
	b2, ok2 := cs.bs.PeekAt(2)
	b3, ok3 := cs.bs.PeekAt(3)
	if !ok2 || !ok3 {
		if cs.bs.IsFinal() {
			return 0, 0, evcodec.NewError(evcodec.ErrUnexpectedEOF, cs.Position(), "truncated UTF-16 surrogate pair")
		}
		return 0, 0, ErrNeedMoreInput
	}
	pair2 := [2]byte{b2, b3}
	unit2 := uint16(pair2[lo]) | uint16(pair2[hi])<<8
	if unit2&0xFC00 != 0xDC00 {
		return 0, 0, evcodec.NewError(evcodec.ErrInvalidUTF8, cs.Position(), "expected UTF-16 low surrogate")
	}
	value := 0x10000 + (rune(unit&0x3FF) << 10) + rune(unit2&0x3FF)
	return value, 4, nil
}
