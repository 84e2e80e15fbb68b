package cborio

import (
	"bytes"
	"io"
	"math"
	"math/big"
	"sort"

	ev "github.com/faceless2/evcodec"
)

type wframeKind int8

const (
	wFrameRoot wframeKind = iota
	wFrameList
	wFrameMapKey
	wFrameMapValue
)

type wframe struct {
	kind        wframeKind
	indefinite  bool
	sorted      bool
	count       int     // pairs (map) or items (list) actually placed
	declared    *uint64 // declared count from *Start's Size, set only for definite-length headers
	sortBuf     []sortedPair
	pendingKey  []byte
	basePathLen int
}

type sortedPair struct {
	key  []byte
	text []byte
}

// PathStep mirrors jsonio.PathStep for the filter hook, kept as a distinct
// type since each wire format writer is self-contained.
type PathStep struct {
	Key   string
	Index int
	IsKey bool
}

// Filter may mutate, drop, or replace an event before it is serialized.
type Filter func(path []PathStep, e ev.Event) (out ev.Event, ok bool)

// Writer serializes a stream of evcodec.Events as RFC 8949 CBOR.
type Writer struct {
	w      io.Writer
	opts   ev.WriterOptions
	stack  []wframe
	path   []PathStep
	filter Filter
	err    error

	pendingTag *uint64

	// string/buffer streaming state: set when a *Start with a declared size
	// was emitted so subsequent *Data chunks are written as raw bytes
	// instead of nested definite-length chunks.
	streamDefinite bool
	streamDeclared *uint64 // declared byte length from *Start's Size, set only when streamDefinite
	streamLen      int     // bytes actually received via *Data so far
	inString       bool
	inBuffer       bool
}

func New(w io.Writer, opts ev.WriterOptions) *Writer {
	return &Writer{w: w, opts: opts, stack: []wframe{{kind: wFrameRoot}}}
}

func (wr *Writer) SetFilter(f Filter) { wr.filter = f }

func (wr *Writer) top() *wframe { return &wr.stack[len(wr.stack)-1] }

func (wr *Writer) Write(e ev.Event) error {
	if wr.err != nil {
		return wr.err
	}
	if wr.filter != nil {
		var ok bool
		e, ok = wr.filter(append([]PathStep(nil), wr.path...), e)
		if !ok {
			return nil
		}
	}
	err := wr.write(e)
	if err != nil {
		wr.err = err
	}
	return err
}

func (wr *Writer) write(e ev.Event) error {
	switch e.Type {
	case ev.MapStart:
		return wr.openContainer(true, e.Size)
	case ev.MapEnd:
		return wr.closeContainer(true)
	case ev.ListStart:
		return wr.openContainer(false, e.Size)
	case ev.ListEnd:
		return wr.closeContainer(false)
	case ev.StringStart:
		return wr.openStream(true, e.Size)
	case ev.StringData:
		return wr.streamData(true, e.Chunk)
	case ev.StringEnd:
		return wr.closeStream(true)
	case ev.BufferStart:
		return wr.openStream(false, e.Size)
	case ev.BufferData:
		return wr.streamData(false, e.Chunk)
	case ev.BufferEnd:
		return wr.closeStream(false)
	case ev.EventPrimitive:
		return wr.writePrimitive(e.Value)
	case ev.EventTag:
		n := e.Value.Uint
		wr.pendingTag = &n
		return nil
	case ev.EventSimple:
		return wr.emit(wr.encodeHeader(7, e.Value.Uint))
	}
	return ev.NewError(ev.ErrInvalidState, ev.Position{}, "cborio: unexpected event %s", e.Type)
}

// emit writes a complete, atomic value (primitive or simple value)
// to the current frame, applying any pending tag header first.
func (wr *Writer) emit(payload []byte) error {
	return wr.place(wr.withPendingTag(payload), false)
}

// emitOpen writes a container/stream *Start header. Unlike emit, it does
// not immediately flip a sorted parent map out of its "collecting a value"
// state, since the value's content continues arriving across further Write
// calls until the matching *End (see place's delayFlip parameter).
func (wr *Writer) emitOpen(payload []byte) error {
	return wr.place(wr.withPendingTag(payload), true)
}

func (wr *Writer) withPendingTag(payload []byte) []byte {
	if wr.pendingTag == nil {
		return payload
	}
	var buf bytes.Buffer
	buf.Write(wr.encodeHeader(6, *wr.pendingTag))
	wr.pendingTag = nil
	buf.Write(payload)
	return buf.Bytes()
}

// place routes encoded bytes to either the nearest enclosing sorted map's
// in-progress value buffer or straight to the output stream, and advances
// key/value bookkeeping on the immediate parent frame. delayFlip suppresses
// the value->key bookkeeping flip for non-atomic writes (container/stream
// Starts), whose matching End performs the flip once the whole value has
// been written (see closeContainer/closeStream).
func (wr *Writer) place(b []byte, delayFlip bool) error {
	f := wr.top()
	switch f.kind {
	case wFrameMapKey:
		if f.sorted {
			f.pendingKey = append([]byte(nil), b...)
		} else if err := wr.writeBytes(b); err != nil {
			return err
		}
		f.kind = wFrameMapValue
	case wFrameMapValue:
		f.count++
		if f.sorted {
			f.sortBuf = append(f.sortBuf, sortedPair{key: f.pendingKey, text: append([]byte(nil), b...)})
			if !delayFlip {
				f.kind = wFrameMapKey
			}
		} else {
			if err := wr.writeBytes(b); err != nil {
				return err
			}
			f.kind = wFrameMapKey
		}
	default:
		if f.kind == wFrameList {
			f.count++
		}
		if err := wr.writeBytes(b); err != nil {
			return err
		}
	}
	return nil
}

// writeBytes appends b to the nearest enclosing sorted map's in-progress
// value buffer, if any (so a value nested several frames deep still ends
// up sorted into its ultimate ancestor pair), or writes straight to the
// underlying stream otherwise.
func (wr *Writer) writeBytes(b []byte) error {
	for i := len(wr.stack) - 1; i >= 0; i-- {
		f := &wr.stack[i]
		if f.kind == wFrameMapValue && f.sorted && len(f.sortBuf) > 0 {
			last := len(f.sortBuf) - 1
			f.sortBuf[last].text = append(f.sortBuf[last].text, b...)
			return nil
		}
	}
	_, err := wr.w.Write(b)
	return err
}

func (wr *Writer) openContainer(isMap bool, size *uint64) error {
	indefinite := size == nil
	sorted := isMap && wr.opts.Sorted
	if sorted {
		// Sorting needs every pair buffered before the header's pair count
		// is known (or avoided), so sorted maps are always written
		// indefinite-length and closed with a break byte.
		indefinite = true
	}
	var hdr []byte
	if isMap {
		if indefinite {
			hdr = []byte{0xBF}
		} else {
			hdr = wr.encodeHeader(5, *size)
		}
	} else {
		if indefinite {
			hdr = []byte{0x9F}
		} else {
			hdr = wr.encodeHeader(4, *size)
		}
	}
	if err := wr.emitOpen(hdr); err != nil {
		return err
	}
	kind := wFrameList
	if isMap {
		kind = wFrameMapKey
	}
	var declared *uint64
	if !indefinite {
		declared = size
	}
	wr.stack = append(wr.stack, wframe{kind: kind, indefinite: indefinite, sorted: sorted, declared: declared, basePathLen: len(wr.path)})
	return nil
}

func (wr *Writer) closeContainer(isMap bool) error {
	if len(wr.stack) < 2 {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "cborio: unmatched container end")
	}
	f := wr.stack[len(wr.stack)-1]
	if f.declared != nil && uint64(f.count) != *f.declared {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "cborio: container declared %d entries but received %d", *f.declared, f.count)
	}
	wr.stack = wr.stack[:len(wr.stack)-1]
	wr.path = wr.path[:f.basePathLen]

	if f.sorted {
		sort.Slice(f.sortBuf, func(i, j int) bool { return bytes.Compare(f.sortBuf[i].key, f.sortBuf[j].key) < 0 })
		for _, p := range f.sortBuf {
			if err := wr.writeBytes(p.key); err != nil {
				return err
			}
			if err := wr.writeBytes(p.text); err != nil {
				return err
			}
		}
	}
	if f.indefinite {
		if err := wr.writeBytes([]byte{0xFF}); err != nil {
			return err
		}
	}
	wr.flipParentAfterValue()
	return nil
}

// flipParentAfterValue completes the delayed value->key bookkeeping flip
// for a container/stream value that just fully closed (see place's
// delayFlip parameter).
func (wr *Writer) flipParentAfterValue() {
	if len(wr.stack) == 0 {
		return
	}
	if f := wr.top(); f.kind == wFrameMapValue {
		f.kind = wFrameMapKey
	}
}

func (wr *Writer) openStream(isString bool, size *uint64) error {
	indefinite := size == nil
	major := byte(2)
	if isString {
		major = 3
	}
	var hdr []byte
	if indefinite {
		if isString {
			hdr = []byte{0x7F}
		} else {
			hdr = []byte{0x5F}
		}
	} else {
		hdr = wr.encodeHeader(major, *size)
	}
	if err := wr.emitOpen(hdr); err != nil {
		return err
	}
	wr.streamDefinite = !indefinite
	wr.streamLen = 0
	if wr.streamDefinite {
		wr.streamDeclared = size
	} else {
		wr.streamDeclared = nil
	}
	wr.inString = isString
	wr.inBuffer = !isString
	return nil
}

func (wr *Writer) streamData(isString bool, chunk []byte) error {
	wr.streamLen += len(chunk)
	if wr.streamDefinite {
		return wr.writeBytes(chunk)
	}
	major := byte(2)
	if isString {
		major = 3
	}
	hdr := wr.encodeHeader(major, uint64(len(chunk)))
	if err := wr.writeBytes(hdr); err != nil {
		return err
	}
	return wr.writeBytes(chunk)
}

func (wr *Writer) closeStream(isString bool) error {
	if wr.streamDeclared != nil && uint64(wr.streamLen) != *wr.streamDeclared {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "cborio: string/buffer declared %d bytes but received %d", *wr.streamDeclared, wr.streamLen)
	}
	if !wr.streamDefinite {
		if err := wr.writeBytes([]byte{0xFF}); err != nil {
			return err
		}
	}
	wr.inString, wr.inBuffer, wr.streamDefinite = false, false, false
	wr.streamDeclared = nil
	wr.flipParentAfterValue()
	return nil
}

func (wr *Writer) writePrimitive(v ev.Primitive) error {
	switch v.Kind {
	case ev.KindNull:
		return wr.emit([]byte{0xF6})
	case ev.KindUndefined:
		return wr.emit([]byte{0xF7})
	case ev.KindBool:
		if v.Bool {
			return wr.emit([]byte{0xF5})
		}
		return wr.emit([]byte{0xF4})
	case ev.KindInt:
		return wr.emit(wr.encodeInt(v.Int))
	case ev.KindUint:
		return wr.emit(wr.encodeHeader(0, v.Uint))
	case ev.KindBigInt:
		return wr.emit(wr.encodeBigInt(v.BigInt))
	case ev.KindFloat:
		return wr.emit(wr.encodeFloat64(v.Float))
	case ev.KindDecimal:
		return wr.emit(wr.encodeDecimal(v.Decimal))
	case ev.KindString:
		b := []byte(v.Str)
		return wr.emit(append(wr.encodeHeader(3, uint64(len(b))), b...))
	}
	return ev.NewError(ev.ErrInvalidState, ev.Position{}, "cborio: unknown primitive kind %d", v.Kind)
}

func (wr *Writer) encodeInt(v int64) []byte {
	if v >= 0 {
		return wr.encodeHeader(0, uint64(v))
	}
	return wr.encodeHeader(1, uint64(-1-v))
}

func (wr *Writer) encodeBigInt(v *big.Int) []byte {
	tag := uint64(TagPosBignum)
	mag := new(big.Int).Set(v)
	if v.Sign() < 0 {
		tag = TagNegBignum
		mag = new(big.Int).Add(new(big.Int).Neg(v), big.NewInt(-1))
	}
	body := mag.Bytes()
	out := wr.encodeHeader(6, tag)
	out = append(out, wr.encodeHeader(2, uint64(len(body)))...)
	out = append(out, body...)
	return out
}

func (wr *Writer) encodeFloat64(f float64) []byte {
	out := []byte{0xFB}
	bits := math.Float64bits(f)
	for i := 7; i >= 0; i-- {
		out = append(out, byte(bits>>(uint(i)*8)))
	}
	return out
}

func (wr *Writer) encodeDecimal(d ev.Decimal) []byte {
	tag := uint64(TagDecimalFraction)
	if wr.opts.LegacyBigDecimalTag {
		tag = TagBigDecimal10
	}
	out := wr.encodeHeader(6, tag)
	out = append(out, wr.encodeHeader(4, 2)...) // array of [exponent, mantissa]
	out = append(out, wr.encodeInt(int64(d.Exponent))...)
	if d.Mantissa == nil {
		out = append(out, wr.encodeHeader(0, 0)...)
	} else if d.Mantissa.IsInt64() {
		out = append(out, wr.encodeInt(d.Mantissa.Int64())...)
	} else {
		out = append(out, wr.encodeBigInt(d.Mantissa)...)
	}
	return out
}

// encodeHeader writes a CBOR major-type/argument header using the smallest
// encoding that fits arg; headers are never padded wider than necessary.
func (wr *Writer) encodeHeader(major byte, arg uint64) []byte {
	b := major << 5
	switch {
	case arg < 24:
		return []byte{b | byte(arg)}
	case arg <= 0xFF:
		return []byte{b | 24, byte(arg)}
	case arg <= 0xFFFF:
		return []byte{b | 25, byte(arg >> 8), byte(arg)}
	case arg <= 0xFFFFFFFF:
		return []byte{b | 26, byte(arg >> 24), byte(arg >> 16), byte(arg >> 8), byte(arg)}
	default:
		out := make([]byte, 9)
		out[0] = b | 27
		for i := 0; i < 8; i++ {
			out[1+i] = byte(arg >> (uint(7-i) * 8))
		}
		return out
	}
}
