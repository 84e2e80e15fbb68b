package cborio

import (
	"math"
	"math/big"
	"unicode/utf8"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/internal/source"
)

type frameKind int8

const (
	frameRoot frameKind = iota
	frameList
	frameMap
	frameString
	frameBuffer
)

type frame struct {
	kind       frameKind
	indefinite bool
	remaining  uint64 // remaining child events (list: n, map: 2n), or remaining bytes (string/buffer)
}

const maxChunk = 1 << 16

// Reader is a resumable RFC 8949 CBOR reader. Like jsonio.Reader, Next
// returns ok=false (err nil) to mean "feed more input and retry": a Mark is
// taken at the start of each Next call and Reset if the call can't
// complete, so partially-buffered multi-byte headers/payloads never leave
// the reader in an inconsistent state.
type Reader struct {
	bs      *source.ByteSource
	opts    ev.ReaderOptions
	stack   []frame
	rootSeen bool
	done    bool
	pendingTag *uint64
}

func New(bs *source.ByteSource, opts ev.ReaderOptions) *Reader {
	return &Reader{bs: bs, opts: opts, stack: []frame{{kind: frameRoot}}}
}

func (r *Reader) Done() bool { return r.done }

func (r *Reader) errf(kind ev.ErrorKind, format string, args ...any) error {
	return ev.NewError(kind, ev.Position{Offset: r.bs.ByteNumber()}, format, args...)
}

func (r *Reader) Next() (ev.Event, bool, error) {
	if r.done {
		return ev.Event{}, false, nil
	}
	r.bs.Mark()
	e, ok, err := r.next()
	if !ok && err == nil {
		r.bs.Reset()
		return ev.Event{}, false, nil
	}
	r.bs.Unmark()
	return e, ok, err
}

func (r *Reader) top() *frame { return &r.stack[len(r.stack)-1] }

func (r *Reader) next() (ev.Event, bool, error) {
	f := r.top()
	switch f.kind {
	case frameString, frameBuffer:
		return r.nextChunk(f)
	}

	// Definite-length container with no remaining children: close it
	// without consuming any bytes.
	if (f.kind == frameList || f.kind == frameMap) && !f.indefinite && f.remaining == 0 {
		return r.closeContainer(f)
	}

	b, ok := r.peekByte(0)
	if !ok {
		if r.bs.IsFinal() {
			if f.kind == frameRoot && r.rootSeen {
				r.done = true
				return ev.Event{}, false, nil
			}
			return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "truncated CBOR input")
		}
		return ev.Event{}, false, nil
	}

	// Indefinite container: a break byte ends it.
	if (f.kind == frameList || f.kind == frameMap) && f.indefinite && b == 0xFF {
		r.consumeByte()
		return r.closeContainer(f)
	}

	if f.kind == frameRoot && r.rootSeen {
		r.done = true
		return ev.Event{}, false, nil
	}

	return r.decodeItem(f)
}

// closeContainer pops a completed list/map frame and emits its End event.
// The enclosing frame's remaining-child count (or root-done flag) was
// already accounted for when this container's Start was produced, so
// popping here needs no further bookkeeping.
func (r *Reader) closeContainer(f *frame) (ev.Event, bool, error) {
	evType := ev.ListEnd
	if f.kind == frameMap {
		evType = ev.MapEnd
	}
	r.stack = r.stack[:len(r.stack)-1]
	return ev.Event{Type: evType}, true, nil
}

func (r *Reader) peekByte(ahead int) (byte, bool) { return r.bs.PeekAt(ahead) }
func (r *Reader) consumeByte()                     { r.bs.Get() }

// readHeader reads a major-type byte's length/argument field. It returns
// ok=false to mean "need more input".
func (r *Reader) readHeader() (major byte, info byte, arg uint64, indefinite bool, width int, ok bool, err error) {
	b0, have := r.peekByte(0)
	if !have {
		return 0, 0, 0, false, 0, false, nil
	}
	major = b0 >> 5
	info = b0 & 0x1F
	switch {
	case info < 24:
		return major, info, uint64(info), false, 1, true, nil
	case info == 24:
		b1, have1 := r.peekByte(1)
		if !have1 {
			return 0, 0, 0, false, 0, false, nil
		}
		return major, info, uint64(b1), false, 2, true, nil
	case info == 25:
		bs, have2 := r.peekN(1, 2)
		if !have2 {
			return 0, 0, 0, false, 0, false, nil
		}
		return major, info, uint64(be16(bs)), false, 3, true, nil
	case info == 26:
		bs, have4 := r.peekN(1, 4)
		if !have4 {
			return 0, 0, 0, false, 0, false, nil
		}
		return major, info, uint64(be32(bs)), false, 5, true, nil
	case info == 27:
		bs, have8 := r.peekN(1, 8)
		if !have8 {
			return 0, 0, 0, false, 0, false, nil
		}
		return major, info, be64(bs), false, 9, true, nil
	case info == 31:
		if major == 0 || major == 1 || major == 6 {
			return 0, 0, 0, false, 0, false, r.errf(ev.ErrSyntax, "indefinite length not allowed for major type %d", major)
		}
		return major, info, 0, true, 1, true, nil
	default:
		return 0, 0, 0, false, 0, false, r.errf(ev.ErrSyntax, "invalid additional info %d", info)
	}
}

func (r *Reader) peekN(offset, n int) ([]byte, bool) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, ok := r.peekByte(offset + i)
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func be64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func (r *Reader) decodeItem(f *frame) (ev.Event, bool, error) {
	major, info, arg, indefinite, width, ok, err := r.readHeader()
	if err != nil {
		return ev.Event{}, false, err
	}
	if !ok {
		return ev.Event{}, false, nil
	}

	switch major {
	case 0: // unsigned int
		r.advance(width)
		return r.produceValue(ev.Uint(arg))
	case 1: // negative int
		r.advance(width)
		if arg > math.MaxInt64 {
			bi := new(big.Int).SetUint64(arg)
			bi.Add(bi, big.NewInt(1))
			bi.Neg(bi)
			return r.produceValue(ev.BigInt(bi))
		}
		return r.produceValue(ev.Int(-1 - int64(arg)))
	case 2:
		return r.startChunked(frameBuffer, ev.BufferStart, width, arg, indefinite)
	case 3:
		return r.startChunked(frameString, ev.StringStart, width, arg, indefinite)
	case 4:
		r.advance(width)
		size := (*uint64)(nil)
		if !indefinite {
			n := arg
			size = &n
		}
		r.pendingTag = nil
		r.decChildAndMaybeRoot()
		fr := frame{kind: frameList, indefinite: indefinite, remaining: arg}
		r.stack = append(r.stack, fr)
		return ev.Event{Type: ev.ListStart, Size: size}, true, nil
	case 5:
		r.advance(width)
		size := (*uint64)(nil)
		if !indefinite {
			n := arg
			size = &n
		}
		r.pendingTag = nil
		r.decChildAndMaybeRoot()
		fr := frame{kind: frameMap, indefinite: indefinite, remaining: arg * 2}
		r.stack = append(r.stack, fr)
		return ev.Event{Type: ev.MapStart, Size: size}, true, nil
	case 6: // tag
		r.advance(width)
		if r.pendingTag != nil {
			return ev.Event{}, false, r.errf(ev.ErrInvalidState, "nested tag on single value")
		}
		t := arg
		r.pendingTag = &t
		return ev.TagEvent(arg), true, nil
	case 7:
		return r.decodeSimpleOrFloat(info, arg, width)
	}
	return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid major type %d", major)
}

func (r *Reader) advance(n int) {
	for i := 0; i < n; i++ {
		r.consumeByte()
	}
}

// produceValue finalizes a primitive/simple value: it consumes a pending
// tag (if any) by simply returning the value (the Tag event was already
// emitted separately) and advances the enclosing container's bookkeeping.
func (r *Reader) produceValue(v ev.Primitive) (ev.Event, bool, error) {
	r.pendingTag = nil
	r.decChildAndMaybeRoot()
	return ev.PrimitiveEvent(v), true, nil
}

func (r *Reader) decChildAndMaybeRoot() {
	if len(r.stack) == 0 {
		return
	}
	f := r.top()
	switch f.kind {
	case frameList, frameMap:
		if !f.indefinite && f.remaining > 0 {
			f.remaining--
		}
	case frameRoot:
		r.rootSeen = true
	}
}

func (r *Reader) decodeSimpleOrFloat(info byte, arg uint64, width int) (ev.Event, bool, error) {
	switch info {
	case 20:
		r.advance(width)
		return r.produceValue(ev.Bool(false))
	case 21:
		r.advance(width)
		return r.produceValue(ev.Bool(true))
	case 22:
		r.advance(width)
		return r.produceValue(ev.Null())
	case 23:
		r.advance(width)
		return r.produceValue(ev.Undefined())
	case 24:
		if arg < 32 {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid simple value encoding for %d", arg)
		}
		r.advance(width)
		r.pendingTag = nil
		r.decChildAndMaybeRoot()
		return ev.SimpleEvent(uint8(arg)), true, nil
	case 25:
		r.advance(width)
		return r.produceValue(ev.Float(float64(halfToFloat32(uint16(arg)))))
	case 26:
		r.advance(width)
		return r.produceValue(ev.Float(float64(math.Float32frombits(uint32(arg)))))
	case 27:
		r.advance(width)
		return r.produceValue(ev.Float(math.Float64frombits(arg)))
	case 31:
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "unexpected break byte")
	default:
		r.advance(width)
		r.pendingTag = nil
		r.decChildAndMaybeRoot()
		return ev.SimpleEvent(uint8(info)), true, nil
	}
}

// halfToFloat32 expands an IEEE 754 binary16 value to binary32 losslessly.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := (h >> 10) & 0x1F
	frac := uint32(h & 0x3FF)
	var bits uint32
	switch {
	case exp == 0:
		if frac == 0 {
			bits = sign
		} else {
			// subnormal half -> normalize into float32
			e := -1
			for frac&0x400 == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			bits = sign | uint32(int32(127-15+e+1))<<23 | (frac << 13)
		}
	case exp == 0x1F:
		bits = sign | 0xFF<<23 | (frac << 13)
	default:
		bits = sign | (uint32(exp)+(127-15))<<23 | (frac << 13)
	}
	return math.Float32frombits(bits)
}

func (r *Reader) startChunked(kind frameKind, evType ev.EventType, headerWidth int, arg uint64, indefinite bool) (ev.Event, bool, error) {
	r.advance(headerWidth)
	size := (*uint64)(nil)
	if !indefinite {
		n := arg
		size = &n
	}
	r.pendingTag = nil
	r.decChildAndMaybeRoot()
	r.stack = append(r.stack, frame{kind: kind, indefinite: indefinite, remaining: arg})
	return ev.Event{Type: evType, Size: size}, true, nil
}

func (r *Reader) nextChunk(f *frame) (ev.Event, bool, error) {
	endType := ev.BufferEnd
	if f.kind == frameString {
		endType = ev.StringEnd
	}
	if f.indefinite {
		b, ok := r.peekByte(0)
		if !ok {
			if r.bs.IsFinal() {
				return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "truncated indefinite-length string/buffer")
			}
			return ev.Event{}, false, nil
		}
		if b == 0xFF {
			r.consumeByte()
			r.stack = r.stack[:len(r.stack)-1]
			return ev.Event{Type: endType}, true, nil
		}
		// Next sub-chunk must be a definite-length string of the same
		// major type; decode its header and body as one chunk event.
		major, _, arg, sindef, width, ok2, err := r.readHeader()
		if err != nil {
			return ev.Event{}, false, err
		}
		if !ok2 {
			return ev.Event{}, false, nil
		}
		wantMajor := byte(2)
		if f.kind == frameString {
			wantMajor = 3
		}
		if major != wantMajor || sindef {
			return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid chunk inside indefinite-length string/buffer")
		}
		chunk, ok3 := r.peekBody(width, int(arg))
		if !ok3 {
			if r.bs.IsFinal() {
				return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "truncated string/buffer chunk")
			}
			return ev.Event{}, false, nil
		}
		r.advance(width + len(chunk))
		dataType := ev.BufferData
		if f.kind == frameString {
			dataType = ev.StringData
			if err := checkUTF8(chunk, r.opts); err != nil {
				return ev.Event{}, false, err
			}
		}
		return ev.Event{Type: dataType, Chunk: append([]byte(nil), chunk...)}, true, nil
	}

	if f.remaining == 0 {
		r.stack = r.stack[:len(r.stack)-1]
		return ev.Event{Type: endType}, true, nil
	}
	n := f.remaining
	if n > maxChunk {
		n = maxChunk
	}
	chunk, ok := r.peekBody(0, int(n))
	if !ok {
		if r.bs.IsFinal() {
			return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "truncated string/buffer")
		}
		return ev.Event{}, false, nil
	}
	r.advance(len(chunk))
	f.remaining -= uint64(len(chunk))
	dataType := ev.BufferData
	if f.kind == frameString {
		dataType = ev.StringData
		if err := checkUTF8(chunk, r.opts); err != nil {
			return ev.Event{}, false, err
		}
	}
	return ev.Event{Type: dataType, Chunk: append([]byte(nil), chunk...)}, true, nil
}

func (r *Reader) peekBody(offset, n int) ([]byte, bool) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, ok := r.peekByte(offset + i)
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

// checkUTF8 validates a text-string chunk per the configured coding-error
// action. Chunk boundaries are not required to land on code point
// boundaries; this performs a best-effort whole-chunk check and does not
// track a decoder carry across chunks.
func checkUTF8(chunk []byte, opts ev.ReaderOptions) error {
	if opts.CodingError != ev.CodingReport {
		return nil
	}
	if !validUTF8Prefix(chunk) {
		return ev.NewError(ev.ErrInvalidUTF8, ev.Position{}, "invalid UTF-8 in text string chunk")
	}
	return nil
}

// validUTF8Prefix reports whether chunk is valid UTF-8 once a possible
// trailing incomplete sequence (up to 3 bytes) is ignored.
func validUTF8Prefix(chunk []byte) bool {
	n := len(chunk)
	if n == 0 {
		return true
	}
	start := n - 1
	for start > 0 && n-start < 4 && chunk[start]&0xC0 == 0x80 {
		start--
	}
	if !utf8.FullRune(chunk[start:]) {
		return isValidUTF8(chunk[:start])
	}
	return isValidUTF8(chunk)
}

func isValidUTF8(b []byte) bool { return utf8.Valid(b) }
