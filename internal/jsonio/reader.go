// Package jsonio implements a textual JSON reader and writer: a
// resumable, event-producing lexer/parser and a compact-or-pretty
// event-consuming serializer, built around an explicit frame-stack state
// machine in the style of a hand-written streaming scanner/emitter pair.
package jsonio

import (
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/internal/source"
)

type frameKind int8

const (
	frameRoot frameKind = iota
	frameArray
	frameObject
)

type objectState int8

const (
	objExpectKeyOrEnd objectState = iota
	objExpectColon
	objExpectValue
	objExpectCommaOrEnd
)

type arrayState int8

const (
	arrExpectValueOrEnd arrayState = iota
	arrExpectCommaOrEnd
)

type frame struct {
	kind  frameKind
	obj   objectState
	arr   arrayState
	depth int
}

// Reader is a resumable, push-parseable textual JSON reader. It decodes
// bytes through a source.CharSource (§6.2 BOM/UTF-16 sniffing, line/column
// tracking) into a small pending buffer of normalized UTF-8 bytes, and
// produces evcodec.Event values one at a time via Next from that buffer.
// Next returns ok=false (no error) when the currently buffered input is
// insufficient to complete the next token; the caller should Feed more
// bytes into the underlying source and call Next again.
type Reader struct {
	cs       *source.CharSource
	opts     ev.ReaderOptions
	stack    []frame
	rootSeen bool
	done     bool

	// pending holds normalized UTF-8 bytes decoded from cs but not yet
	// consumed by scanning; pendPos is the scanning cursor into it.
	// pendMarkSet/pendMarkPos let a suspended Next() attempt (one that
	// needed more input) rewind to its starting point without re-decoding,
	// since decoded bytes are cached here rather than re-read from cs.
	pending      []byte
	pendPos      int
	pendMarkSet  bool
	pendMarkPos  int
	decodeErr    error // sticky charset/UTF-8 decode error surfaced via errf

	// pendingChunks, when non-nil, is an in-flight chunked string/buffer
	// being emitted across multiple Next() calls once its literal exceeds
	// FastStringLength.
	pendingChunks   [][]byte
	pendingIdx      int
	pendingEndAfter bool
}

// New creates a Reader over bs, decoding characters with the encoding
// detected from the input (BOM or byte-pattern sniffing).
func New(bs *source.ByteSource, opts ev.ReaderOptions) *Reader {
	cs := source.NewCharSource(bs, source.AnyEncoding, opts.Context)
	return &Reader{
		cs:    cs,
		opts:  opts,
		stack: []frame{{kind: frameRoot}},
	}
}

// Done reports whether the reader has produced a complete, well-formed
// top-level value and there is nothing left to parse.
func (r *Reader) Done() bool { return r.done }

func (r *Reader) pos() ev.Position { return r.cs.Position() }

// errf builds a position-tagged error, unless a charset/UTF-8 decode error
// is already pending, in which case that error (the true cause) is
// returned instead of the generic one the caller asked for.
func (r *Reader) errf(kind ev.ErrorKind, format string, args ...any) error {
	if r.decodeErr != nil {
		return r.decodeErr
	}
	return ev.NewError(kind, r.pos(), format, args...)
}

// Next produces the next event. ok is false (err nil) when more input is
// required; the caller must Feed the source and retry. When Done() is
// true, Next returns ok=false, err=nil permanently.
func (r *Reader) Next() (event ev.Event, ok bool, err error) {
	if r.done {
		return ev.Event{}, false, nil
	}
	if r.pendingChunks != nil {
		return r.drainPending()
	}

	r.markPending()
	savedTop, savedRootSeen := *r.top(), r.rootSeen
	e, ok, err := r.next()
	if !ok && err == nil {
		// Roll the frame state back together with the scan cursor, so the
		// retry after more input starts the step from scratch.
		r.resetPending()
		*r.top() = savedTop
		r.rootSeen = savedRootSeen
		return ev.Event{}, false, nil
	}
	r.unmarkPending()
	return e, ok, err
}

// markPending/resetPending/unmarkPending give a suspended scan attempt the
// same mark/reset semantics source.ByteSource gives raw bytes, but applied
// to the decoded-UTF-8 pending buffer: a reset rewinds the scan cursor
// without discarding already-decoded bytes, since cs's decode is one-way.
func (r *Reader) markPending() {
	r.pendMarkSet = true
	r.pendMarkPos = r.pendPos
}

func (r *Reader) resetPending() {
	r.pendPos = r.pendMarkPos
}

func (r *Reader) unmarkPending() {
	r.pendMarkSet = false
	r.compactPending()
}

// compactPending drops already-scanned bytes from the front of pending,
// the same Compact-never-past-a-held-mark rule source.ByteSource applies.
func (r *Reader) compactPending() {
	low := r.pendPos
	if r.pendMarkSet && r.pendMarkPos < low {
		low = r.pendMarkPos
	}
	if low == 0 {
		return
	}
	copy(r.pending, r.pending[low:])
	r.pending = r.pending[:len(r.pending)-low]
	r.pendPos -= low
	if r.pendMarkSet {
		r.pendMarkPos -= low
	}
}

// fillOutcome is the result of trying to decode one more rune from cs into
// pending.
type fillOutcome int8

const (
	fillOK fillOutcome = iota
	fillNeedMore
	fillEOF
	fillErr
)

// fillPending decodes and buffers one more rune's worth of normalized
// UTF-8 bytes via cs (running §6.2 charset sniffing and line/column
// tracking as a side effect), or reports why it couldn't.
func (r *Reader) fillPending() fillOutcome {
	if r.decodeErr != nil {
		return fillErr
	}
	rn, size, err := r.cs.PeekRune()
	if err == source.ErrNeedMoreInput {
		return fillNeedMore
	}
	if err != nil {
		r.decodeErr = err
		return fillErr
	}
	if size == 0 {
		return fillEOF
	}
	r.cs.Advance(rn, size)
	var tmp [utf8.UTFMax]byte
	n := utf8.EncodeRune(tmp[:], rn)
	r.pending = append(r.pending, tmp[:n]...)
	return fillOK
}

func (r *Reader) drainPending() (ev.Event, bool, error) {
	if r.pendingIdx < len(r.pendingChunks) {
		c := r.pendingChunks[r.pendingIdx]
		r.pendingIdx++
		return ev.Event{Type: ev.StringData, Chunk: c}, true, nil
	}
	r.pendingChunks = nil
	r.pendingIdx = 0
	if r.pendingEndAfter {
		r.pendingEndAfter = false
		r.afterValueEmitted()
		return ev.Event{Type: ev.StringEnd}, true, nil
	}
	return ev.Event{}, false, nil
}

func (r *Reader) top() *frame { return &r.stack[len(r.stack)-1] }

func (r *Reader) pushFrame(k frameKind) error {
	if r.opts.MaxDepth > 0 && len(r.stack) > r.opts.MaxDepth {
		return r.errf(ev.ErrDepthLimit, "nesting exceeds max depth %d", r.opts.MaxDepth)
	}
	r.stack = append(r.stack, frame{kind: k})
	return nil
}

func (r *Reader) popFrame() {
	r.stack = r.stack[:len(r.stack)-1]
	r.afterValueEmitted()
}

// afterValueEmitted advances the enclosing frame's state once a value (or
// a closed container) has just been completed.
func (r *Reader) afterValueEmitted() {
	if len(r.stack) == 0 {
		return
	}
	f := r.top()
	switch f.kind {
	case frameArray:
		f.arr = arrExpectCommaOrEnd
	case frameObject:
		// A just-scanned key leaves the object waiting for its colon.
		if f.obj != objExpectColon {
			f.obj = objExpectCommaOrEnd
		}
	case frameRoot:
		// next() checks for trailing content and sets done.
	}
}

// next performs exactly one step: either returns a structural event
// (*Start/*End) or delegates to value scanning. It returns ok=false with a
// nil error to signal "need more input" (caller resets the mark).
func (r *Reader) next() (ev.Event, bool, error) {
	f := r.top()
	switch f.kind {
	case frameRoot:
		if r.rootSeen {
			if err := r.skipTrailingWhitespaceAndComments(); err != nil {
				return ev.Event{}, false, err
			}
			_, avail, need := r.peekSkipped()
			if need {
				return ev.Event{}, false, nil
			}
			if !avail {
				r.done = true
				return ev.Event{}, false, nil
			}
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "unexpected trailing content after top-level value")
		}
		if err := r.skipWSComments(); err != nil {
			return ev.Event{}, false, err
		}
		r.rootSeen = true
		return r.scanValue()
	case frameArray:
		return r.nextArray(f)
	case frameObject:
		return r.nextObject(f)
	}
	panic("jsonio: unreachable frame kind")
}

func (r *Reader) nextArray(f *frame) (ev.Event, bool, error) {
	switch f.arr {
	case arrExpectValueOrEnd:
		if err := r.skipWSComments(); err != nil {
			return ev.Event{}, false, err
		}
		b, avail, need := r.peekByte()
		if need {
			return ev.Event{}, false, nil
		}
		if !avail {
			return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "unterminated array")
		}
		if b == ']' {
			r.consumeByte()
			r.popFrame()
			return ev.Event{Type: ev.ListEnd}, true, nil
		}
		return r.scanValue()
	case arrExpectCommaOrEnd:
		if err := r.skipWSComments(); err != nil {
			return ev.Event{}, false, err
		}
		b, avail, need := r.peekByte()
		if need {
			return ev.Event{}, false, nil
		}
		if !avail {
			return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "unterminated array")
		}
		if b == ']' {
			r.consumeByte()
			r.popFrame()
			return ev.Event{Type: ev.ListEnd}, true, nil
		}
		if b != ',' {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "expected ',' or ']', got %q", b)
		}
		r.consumeByte()
		if err := r.skipWSComments(); err != nil {
			return ev.Event{}, false, err
		}
		b2, avail2, need2 := r.peekByte()
		if need2 {
			return ev.Event{}, false, nil
		}
		if avail2 && b2 == ']' {
			if !r.opts.AllowTrailingComma {
				return ev.Event{}, false, r.errf(ev.ErrSyntax, "trailing comma not allowed")
			}
			r.consumeByte()
			r.popFrame()
			return ev.Event{Type: ev.ListEnd}, true, nil
		}
		f.arr = arrExpectValueOrEnd
		return r.scanValue()
	}
	panic("jsonio: unreachable array state")
}

func (r *Reader) nextObject(f *frame) (ev.Event, bool, error) {
	switch f.obj {
	case objExpectKeyOrEnd, objExpectCommaOrEnd:
		wantComma := f.obj == objExpectCommaOrEnd
		if err := r.skipWSComments(); err != nil {
			return ev.Event{}, false, err
		}
		b, avail, need := r.peekByte()
		if need {
			return ev.Event{}, false, nil
		}
		if !avail {
			return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "unterminated object")
		}
		if b == '}' {
			r.consumeByte()
			r.popFrame()
			return ev.Event{Type: ev.MapEnd}, true, nil
		}
		if wantComma {
			if b != ',' {
				return ev.Event{}, false, r.errf(ev.ErrSyntax, "expected ',' or '}', got %q", b)
			}
			r.consumeByte()
			if err := r.skipWSComments(); err != nil {
				return ev.Event{}, false, err
			}
			b2, avail2, need2 := r.peekByte()
			if need2 {
				return ev.Event{}, false, nil
			}
			if avail2 && b2 == '}' {
				if !r.opts.AllowTrailingComma {
					return ev.Event{}, false, r.errf(ev.ErrSyntax, "trailing comma not allowed")
				}
				r.consumeByte()
				r.popFrame()
				return ev.Event{Type: ev.MapEnd}, true, nil
			}
		}
		f.obj = objExpectColon
		return r.scanKey()
	case objExpectColon:
		if err := r.skipWSComments(); err != nil {
			return ev.Event{}, false, err
		}
		b, avail, need := r.peekByte()
		if need {
			return ev.Event{}, false, nil
		}
		if !avail || b != ':' {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "expected ':' after object key")
		}
		r.consumeByte()
		f.obj = objExpectValue
		if err := r.skipWSComments(); err != nil {
			return ev.Event{}, false, err
		}
		return r.next2ValueForObject()
	case objExpectValue:
		return r.next2ValueForObject()
	}
	panic("jsonio: unreachable object state")
}

func (r *Reader) next2ValueForObject() (ev.Event, bool, error) {
	if err := r.skipWSComments(); err != nil {
		return ev.Event{}, false, err
	}
	return r.scanValue()
}

// --- whitespace / comments ---

func (r *Reader) skipWSComments() error {
	for {
		b, avail, need := r.peekByte()
		if need {
			return nil // caller will see "need more" via a subsequent peek
		}
		if !avail {
			return nil
		}
		switch b {
		case ' ', '\t', '\n', '\r':
			r.consumeByte()
			continue
		case '/':
			if !r.opts.AllowComments {
				return nil
			}
			b2, avail2, need2 := r.peekByteAt(1)
			if need2 {
				return nil
			}
			if !avail2 {
				return nil
			}
			if b2 == '/' {
				r.consumeByte()
				r.consumeByte()
				for {
					b3, avail3, need3 := r.peekByte()
					if need3 {
						return nil
					}
					if !avail3 || b3 == '\n' {
						break
					}
					r.consumeByte()
				}
				continue
			}
			if b2 == '*' {
				r.consumeByte()
				r.consumeByte()
				for {
					b3, avail3, need3 := r.peekByte()
					if need3 {
						return nil
					}
					if !avail3 {
						return r.errf(ev.ErrUnexpectedEOF, "unterminated block comment")
					}
					r.consumeByte()
					if b3 == '*' {
						b4, avail4, need4 := r.peekByte()
						if need4 {
							return nil
						}
						if avail4 && b4 == '/' {
							r.consumeByte()
							break
						}
					}
				}
				continue
			}
			return nil
		default:
			return nil
		}
	}
}

func (r *Reader) skipTrailingWhitespaceAndComments() error { return r.skipWSComments() }

func (r *Reader) peekSkipped() (byte, bool, bool) {
	return r.peekByte()
}

// peekByte returns (byte, available, needMoreInput). Exactly one of
// `available` or `needMoreInput` is meaningful when the byte isn't usable;
// available=false,needMoreInput=false covers both true EOF and a sticky
// decode error (distinguished by errf via r.decodeErr).
func (r *Reader) peekByte() (byte, bool, bool) {
	return r.peekByteAt(0)
}

func (r *Reader) peekByteAt(n int) (byte, bool, bool) {
	for r.pendPos+n >= len(r.pending) {
		switch r.fillPending() {
		case fillOK:
			continue
		case fillNeedMore:
			return 0, false, true
		case fillEOF, fillErr:
			return 0, false, false
		}
	}
	return r.pending[r.pendPos+n], true, false
}

func (r *Reader) consumeByte() {
	r.pendPos++
}

// --- values ---

func (r *Reader) scanValue() (ev.Event, bool, error) {
	b, avail, need := r.peekByte()
	if need {
		return ev.Event{}, false, nil
	}
	if !avail {
		return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "expected a value")
	}
	switch {
	case b == '"':
		return r.scanString(false)
	case b == '{':
		r.consumeByte()
		if err := r.pushFrame(frameObject); err != nil {
			return ev.Event{}, false, err
		}
		r.top().obj = objExpectKeyOrEnd
		return ev.Event{Type: ev.MapStart}, true, nil
	case b == '[':
		r.consumeByte()
		if err := r.pushFrame(frameArray); err != nil {
			return ev.Event{}, false, err
		}
		r.top().arr = arrExpectValueOrEnd
		return ev.Event{Type: ev.ListStart}, true, nil
	case b == 't':
		return r.scanLiteral("true", ev.Bool(true))
	case b == 'f':
		return r.scanLiteral("false", ev.Bool(false))
	case b == 'n':
		return r.scanLiteral("null", ev.Null())
	case b == 'N':
		if !r.opts.AllowNaN {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "unexpected character 'N'")
		}
		return r.scanLiteral("NaN", ev.Float(nan()))
	case b == 'I':
		if !r.opts.AllowNaN {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "unexpected character 'I'")
		}
		return r.scanLiteral("Infinity", ev.Float(inf(1)))
	case b == '-' || (b >= '0' && b <= '9'):
		return r.scanNumber()
	case b == 'u' && r.opts.AllowUnquotedKeys:
		// bare identifiers are accepted only as object keys, never as values
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "unexpected character %q", b)
	default:
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "unexpected character %q", b)
	}
}

func nan() float64  { var z float64; return z / z }
func inf(sign int) float64 {
	if sign < 0 {
		return -inf(1)
	}
	var z float64
	return 1 / z
}

func (r *Reader) scanLiteral(lit string, value ev.Primitive) (ev.Event, bool, error) {
	for i := 0; i < len(lit); i++ {
		b, avail, need := r.peekByteAt(i)
		if need {
			return ev.Event{}, false, nil
		}
		if !avail {
			return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "unterminated literal %q", lit)
		}
		if b != lit[i] {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid literal, expected %q", lit)
		}
	}
	// Require the literal isn't immediately followed by another identifier
	// byte (e.g. "nullx" is not "null" then "x").
	nb, navail, nneed := r.peekByteAt(len(lit))
	if nneed {
		return ev.Event{}, false, nil
	}
	if navail && isIdentByte(nb) {
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid literal %q", lit)
	}
	for i := 0; i < len(lit); i++ {
		r.consumeByte()
	}
	r.afterValueEmitted()
	return ev.PrimitiveEvent(value), true, nil
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// scanKey scans an object key: a quoted string, or (if AllowUnquotedKeys)
// a bare identifier demoted to a string primitive.
func (r *Reader) scanKey() (ev.Event, bool, error) {
	b, avail, need := r.peekByte()
	if need {
		return ev.Event{}, false, nil
	}
	if !avail {
		return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "expected object key")
	}
	if b == '"' {
		return r.scanString(true)
	}
	if r.opts.AllowUnquotedKeys && (isIdentStart(b)) {
		return r.scanUnquotedKey()
	}
	return ev.Event{}, false, r.errf(ev.ErrSyntax, "expected a string key")
}

func isIdentStart(b byte) bool {
	return b == '_' || b == '$' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func (r *Reader) scanUnquotedKey() (ev.Event, bool, error) {
	var sb strings.Builder
	i := 0
	for {
		b, avail, need := r.peekByteAt(i)
		if need {
			return ev.Event{}, false, nil
		}
		if !avail || !isIdentByte(b) {
			break
		}
		sb.WriteByte(b)
		i++
	}
	if sb.Len() == 0 {
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "expected an identifier key")
	}
	for j := 0; j < i; j++ {
		r.consumeByte()
	}
	return ev.PrimitiveEvent(ev.String(sb.String())), true, nil
}

// scanString scans a double-quoted JSON string starting at the opening
// quote (not yet consumed). isKey only affects nothing structurally; the
// caller's frame transition is handled by scanValue/scanKey callers.
func (r *Reader) scanString(isKey bool) (ev.Event, bool, error) {
	_ = isKey
	r.consumeByte() // opening quote

	var raw []byte
	i := 0
	for {
		b, avail, need := r.peekByteAt(i)
		if need {
			return ev.Event{}, false, nil
		}
		if !avail {
			return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "unterminated string")
		}
		if b == '"' {
			break
		}
		if b == '\\' {
			// Need at least the escape selector byte.
			esc, eavail, eneed := r.peekByteAt(i + 1)
			if eneed {
				return ev.Event{}, false, nil
			}
			if !eavail {
				return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "unterminated escape")
			}
			if esc == 'u' {
				for k := 0; k < 4; k++ {
					_, havail, hneed := r.peekByteAt(i + 2 + k)
					if hneed {
						return ev.Event{}, false, nil
					}
					if !havail {
						return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "unterminated \\u escape")
					}
				}
				i += 6
				continue
			}
			i += 2
			continue
		}
		i++
	}
	// We now have the whole raw literal bytes [0,i) (escapes included) plus
	// a closing quote at i, fully buffered. Decode it.
	rawBytes := append([]byte(nil), r.pending[r.pendPos:r.pendPos+i]...)
	decoded, derr := decodeJSONString(rawBytes, r.opts)
	if derr != nil {
		return ev.Event{}, false, derr
	}
	if r.opts.NFC {
		decoded = normalizeNFC(decoded)
	}
	raw = []byte(decoded)
	for k := 0; k < i+1; k++ { // +1 consumes the closing quote
		r.consumeByte()
	}
	if r.opts.FastStringLength > 0 && uint64(len(raw)) > r.opts.FastStringLength {
		return r.emitChunkedString(raw)
	}
	r.afterValueEmitted()
	return ev.PrimitiveEvent(ev.String(string(raw))), true, nil
}

func (r *Reader) emitChunkedString(raw []byte) (ev.Event, bool, error) {
	const chunkSize = 4096
	var chunks [][]byte
	for off := 0; off < len(raw); off += chunkSize {
		end := off + chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		chunks = append(chunks, raw[off:end])
	}
	r.pendingChunks = chunks
	r.pendingEndAfter = true
	n := uint64(len(raw))
	return ev.Event{Type: ev.StringStart, Size: &n}, true, nil
}

func decodeJSONString(raw []byte, opts ev.ReaderOptions) (string, error) {
	var sb strings.Builder
	sb.Grow(len(raw))
	i := 0
	for i < len(raw) {
		b := raw[i]
		if b != '\\' {
			sb.WriteByte(b)
			i++
			continue
		}
		esc := raw[i+1]
		switch esc {
		case '"':
			sb.WriteByte('"')
			i += 2
		case '\\':
			sb.WriteByte('\\')
			i += 2
		case '/':
			sb.WriteByte('/')
			i += 2
		case 'b':
			sb.WriteByte('\b')
			i += 2
		case 'f':
			sb.WriteByte('\f')
			i += 2
		case 'n':
			sb.WriteByte('\n')
			i += 2
		case 'r':
			sb.WriteByte('\r')
			i += 2
		case 't':
			sb.WriteByte('\t')
			i += 2
		case 'u':
			u1, err := parseHex4(raw[i+2 : i+6])
			if err != nil {
				return "", err
			}
			i += 6
			if u1 >= 0xD800 && u1 <= 0xDBFF && i+1 < len(raw) && raw[i] == '\\' && raw[i+1] == 'u' {
				u2, err := parseHex4(raw[i+2 : i+6])
				if err == nil && u2 >= 0xDC00 && u2 <= 0xDFFF {
					r := (rune(u1-0xD800) << 10) + rune(u2-0xDC00) + 0x10000
					sb.WriteRune(r)
					i += 6
					continue
				}
			}
			if u1 >= 0xD800 && u1 <= 0xDFFF {
				switch opts.CodingError {
				case ev.CodingReport:
					return "", ev.NewError(ev.ErrInvalidUTF8, ev.Position{}, "lone surrogate \\u%04x", u1)
				case ev.CodingIgnore:
					continue
				default:
					sb.WriteRune('�')
					continue
				}
			}
			sb.WriteRune(rune(u1))
		default:
			return "", ev.NewError(ev.ErrSyntax, ev.Position{}, "invalid escape \\%c", esc)
		}
	}
	return sb.String(), nil
}

func parseHex4(b []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(b), 16, 32)
	if err != nil {
		return 0, ev.NewError(ev.ErrSyntax, ev.Position{}, "invalid \\u escape")
	}
	return uint32(v), nil
}

func normalizeNFC(s string) string {
	if isASCII(s) {
		return s
	}
	return norm.NFC.String(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// scanNumber scans a JSON number (plus the dialect's hex-integer
// extension), requiring a lookahead byte past the last digit to confirm
// the number has terminated (spec scenario 6: "12" followed by more input
// must not be emitted until we know no further digits follow).
func (r *Reader) scanNumber() (ev.Event, bool, error) {
	i := 0
	neg := false
	if b, avail, need := r.peekByteAt(0); need {
		return ev.Event{}, false, nil
	} else if avail && b == '-' {
		neg = true
		i = 1
	}

	// Hex integer extension: 0x[0-9A-Fa-f]+
	if b0, a0, n0 := r.peekByteAt(i); n0 {
		return ev.Event{}, false, nil
	} else if a0 && b0 == '0' {
		if b1, a1, n1 := r.peekByteAt(i + 1); n1 {
			return ev.Event{}, false, nil
		} else if a1 && (b1 == 'x' || b1 == 'X') {
			return r.scanHexInt(i+2, neg)
		}
	}

	start := i
	for {
		b, avail, need := r.peekByteAt(i)
		if need {
			return ev.Event{}, false, nil
		}
		if !avail || b < '0' || b > '9' {
			break
		}
		i++
	}
	if i == start {
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid number")
	}
	isFloat := false
	if b, avail, need := r.peekByteAt(i); need {
		return ev.Event{}, false, nil
	} else if avail && b == '.' {
		isFloat = true
		i++
		fstart := i
		for {
			b, avail, need := r.peekByteAt(i)
			if need {
				return ev.Event{}, false, nil
			}
			if !avail || b < '0' || b > '9' {
				break
			}
			i++
		}
		if i == fstart {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid number: expected digits after '.'")
		}
	}
	if b, avail, need := r.peekByteAt(i); need {
		return ev.Event{}, false, nil
	} else if avail && (b == 'e' || b == 'E') {
		isFloat = true
		j := i + 1
		if b2, a2, n2 := r.peekByteAt(j); n2 {
			return ev.Event{}, false, nil
		} else if a2 && (b2 == '+' || b2 == '-') {
			j++
		}
		estart := j
		for {
			b, avail, need := r.peekByteAt(j)
			if need {
				return ev.Event{}, false, nil
			}
			if !avail || b < '0' || b > '9' {
				break
			}
			j++
		}
		if j == estart {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid number: expected digits in exponent")
		}
		i = j
	}
	// Lookahead: confirm the number has actually ended.
	if nb, navail, nneed := r.peekByteAt(i); nneed {
		return ev.Event{}, false, nil
	} else if navail && (nb == '.' || nb == 'e' || nb == 'E' || isIdentByte(nb)) {
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid number")
	}

	lit := append([]byte(nil), r.pending[r.pendPos:r.pendPos+i]...)
	for k := 0; k < i; k++ {
		r.consumeByte()
	}
	value, err := parseNumberLiteral(string(lit), isFloat, r.opts)
	if err != nil {
		return ev.Event{}, false, err
	}
	r.afterValueEmitted()
	return ev.PrimitiveEvent(value), true, nil
}

func (r *Reader) scanHexInt(bodyStart int, neg bool) (ev.Event, bool, error) {
	i := bodyStart
	for {
		b, avail, need := r.peekByteAt(i)
		if need {
			return ev.Event{}, false, nil
		}
		if !avail || !isHexDigit(b) {
			break
		}
		i++
	}
	if i == bodyStart {
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid hex literal")
	}
	if nb, navail, nneed := r.peekByteAt(i); nneed {
		return ev.Event{}, false, nil
	} else if navail && isIdentByte(nb) {
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid hex literal")
	}
	lit := append([]byte(nil), r.pending[r.pendPos:r.pendPos+i]...)
	for k := 0; k < i; k++ {
		r.consumeByte()
	}
	bi, ok := new(big.Int).SetString(string(lit[bodyStart:]), 16)
	if !ok {
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid hex literal")
	}
	if neg {
		bi.Neg(bi)
	}
	r.afterValueEmitted()
	return ev.PrimitiveEvent(ev.BigInt(bi)), true, nil
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// parseNumberLiteral implements the integer/float sizing rules of spec
// §4.1: integers fitting int32 -> int32 (carried here as KindInt), else
// int64, else arbitrary precision; floats emit binary64 unless BigDecimal
// dialect and precision/exponent demand an arbitrary-precision decimal.
func parseNumberLiteral(lit string, isFloat bool, opts ev.ReaderOptions) (ev.Primitive, error) {
	if !isFloat {
		if bi, ok := new(big.Int).SetString(lit, 10); ok {
			if bi.IsInt64() {
				iv := bi.Int64()
				if iv >= -(1<<31) && iv < (1<<31) {
					return ev.Int(iv), nil
				}
				return ev.Int(iv), nil
			}
			return ev.BigInt(bi), nil
		}
		return ev.Primitive{}, ev.NewError(ev.ErrSyntax, ev.Position{}, "invalid integer literal %q", lit)
	}
	if opts.BigDecimal && needsDecimal(lit) {
		mantissa, exponent, ok := decimalParts(lit)
		if ok {
			return ev.DecimalValue(mantissa, exponent), nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return ev.Primitive{}, ev.NewError(ev.ErrSyntax, ev.Position{}, "invalid float literal %q", lit)
	}
	return ev.Float(f), nil
}

// needsDecimal reports whether lit has more than 15 significant digits or
// an exponent outside +/-308, beyond what a float64 can represent exactly.
func needsDecimal(lit string) bool {
	sig := 0
	expAbs := 0
	seenExp := false
	expSign := 1
	expDigits := 0
	for i := 0; i < len(lit); i++ {
		c := lit[i]
		switch {
		case c == 'e' || c == 'E':
			seenExp = true
		case c == '+' :
		case c == '-':
			if seenExp {
				expSign = -1
			}
		case c == '.':
		case c >= '0' && c <= '9':
			if !seenExp {
				if c != '0' || sig > 0 {
					sig++
				}
			} else {
				expDigits++
				expAbs = expAbs*10 + int(c-'0')
			}
		}
	}
	if sig > 15 {
		return true
	}
	if seenExp && expDigits > 0 && expSign*expAbs > 308 {
		return true
	}
	if seenExp && expDigits > 0 && expSign*expAbs < -308 {
		return true
	}
	return false
}

func decimalParts(lit string) (*big.Int, int, bool) {
	mant := lit
	exp := 0
	if idx := strings.IndexAny(lit, "eE"); idx >= 0 {
		mant = lit[:idx]
		e, err := strconv.Atoi(lit[idx+1:])
		if err != nil {
			return nil, 0, false
		}
		exp = e
	}
	neg := strings.HasPrefix(mant, "-")
	if neg {
		mant = mant[1:]
	}
	if dot := strings.IndexByte(mant, '.'); dot >= 0 {
		frac := mant[dot+1:]
		mant = mant[:dot] + frac
		exp -= len(frac)
	}
	bi, ok := new(big.Int).SetString(mant, 10)
	if !ok {
		return nil, 0, false
	}
	if neg {
		bi.Neg(bi)
	}
	return bi, exp, true
}
