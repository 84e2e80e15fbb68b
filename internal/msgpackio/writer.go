package msgpackio

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
	sorted      bool
	count       int     // pairs (map) or items (list) actually placed
	declared    *uint64 // declared count from *Start's Size; nil only for a sorted map (header is derived, not checked)
	sortBuf     []sortedPair
	pendingKey  []byte
	basePathLen int
}

type sortedPair struct {
	key  []byte
	text []byte
}

// PathStep mirrors cborio/jsonio's PathStep for the filter hook.
type PathStep struct {
	Key   string
	Index int
	IsKey bool
}

type Filter func(path []PathStep, e ev.Event) (out ev.Event, ok bool)

// Writer serializes a stream of evcodec.Events as MessagePack. Every
// array/map/str/bin header needs the element count or byte length up
// front (MessagePack has no indefinite-length containers, unlike CBOR), so
// a nil Size on a StringStart/BufferStart makes the writer buffer the whole
// value until its End, and a nil Size on a ListStart, or on a MapStart when
// not Sorted, is rejected with ErrInvalidState (see openContainer).
type Writer struct {
	w      io.Writer
	opts   ev.WriterOptions
	stack  []wframe
	path   []PathStep
	filter Filter
	err    error

	pendingTag *uint64

	// Buffered because MessagePack string/buffer headers must declare
	// their total length before any body bytes are written, but Start
	// events may arrive with no declared Size (the upstream emitter/reader
	// chose to stream); in that case the whole value is buffered until End.
	streaming     bool
	streamIsText  bool
	streamBuf     bytes.Buffer
	streamKnown   bool
	streamDeclared uint64 // length stated by the header already written
	streamActual   uint64 // bytes actually received via *Data so far
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
		return wr.closeContainer()
	case ev.ListStart:
		return wr.openContainer(false, e.Size)
	case ev.ListEnd:
		return wr.closeContainer()
	case ev.StringStart:
		return wr.openStream(true, e.Size)
	case ev.StringData:
		return wr.streamData(e.Chunk)
	case ev.StringEnd:
		return wr.closeStream()
	case ev.BufferStart:
		return wr.openStream(false, e.Size)
	case ev.BufferData:
		return wr.streamData(e.Chunk)
	case ev.BufferEnd:
		return wr.closeStream()
	case ev.EventPrimitive:
		return wr.writePrimitive(e.Value)
	case ev.EventTag:
		n := e.Value.Uint
		wr.pendingTag = &n
		return nil
	case ev.EventSimple:
		// MessagePack has no simple-value concept beyond nil/bool; widen
		// to the smallest-fitting unsigned integer.
		return wr.emit(wr.encodeUint(e.Value.Uint))
	}
	return ev.NewError(ev.ErrInvalidState, ev.Position{}, "msgpackio: unexpected event %s", e.Type)
}

func (wr *Writer) emit(payload []byte) error {
	return wr.place(wr.withPendingTag(payload), false)
}

// emitOpen writes a header whose body bytes arrive via later, separate
// writeBytes calls (a declared-length string/buffer stream): it must not
// flip an enclosing sorted map's value-collection state until the value's
// matching close happens (see flipParentAfterValue).
func (wr *Writer) emitOpen(payload []byte) error {
	return wr.place(wr.withPendingTag(payload), true)
}

func (wr *Writer) withPendingTag(payload []byte) []byte {
	if wr.pendingTag == nil {
		return payload
	}
	// MessagePack carries no generic tag wire type; a pending Tag here
	// means an ext value, written as fixext/ext-N around the payload by
	// writeExtValue instead of through this path. Plain tags on
	// non-buffer values have no MessagePack representation and are
	// dropped.
	wr.pendingTag = nil
	return payload
}

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

func (wr *Writer) flipParentAfterValue() {
	if len(wr.stack) == 0 {
		return
	}
	if f := wr.top(); f.kind == wFrameMapValue {
		f.kind = wFrameMapKey
	}
}

func (wr *Writer) openContainer(isMap bool, size *uint64) error {
	sorted := isMap && wr.opts.Sorted
	if size == nil && !sorted {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "msgpackio: list/map start without a declared size has no MessagePack encoding")
	}
	var n uint64
	if size != nil {
		n = *size
	}
	hdr := wr.encodeContainerHeader(isMap, n)
	var declared *uint64
	if !sorted {
		if err := wr.emitOpen(hdr); err != nil {
			return err
		}
		declared = &n
	} else {
		// Sorting needs every pair collected before the header (which must
		// state the final count up front) can be written, so sorted maps
		// buffer their whole body and emit the header only at MapEnd. A
		// tag on a map/list has no MessagePack wire representation (only
		// ext values carry a type byte), so it is dropped here exactly as
		// withPendingTag drops it on the unsorted path above.
		wr.pendingTag = nil
	}
	kind := wFrameList
	if isMap {
		kind = wFrameMapKey
	}
	wr.stack = append(wr.stack, wframe{kind: kind, sorted: sorted, declared: declared, basePathLen: len(wr.path)})
	return nil
}

func (wr *Writer) closeContainer() error {
	if len(wr.stack) < 2 {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "msgpackio: unmatched container end")
	}
	f := wr.stack[len(wr.stack)-1]
	if f.declared != nil && uint64(f.count) != *f.declared {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "msgpackio: container header declared %d entries but received %d", *f.declared, f.count)
	}
	wr.stack = wr.stack[:len(wr.stack)-1]
	wr.path = wr.path[:f.basePathLen]

	if f.sorted {
		sort.Slice(f.sortBuf, func(i, j int) bool { return bytes.Compare(f.sortBuf[i].key, f.sortBuf[j].key) < 0 })
		hdr := wr.encodeContainerHeader(true, uint64(len(f.sortBuf)))
		if err := wr.writeBytes(hdr); err != nil {
			return err
		}
		for _, p := range f.sortBuf {
			if err := wr.writeBytes(p.key); err != nil {
				return err
			}
			if err := wr.writeBytes(p.text); err != nil {
				return err
			}
		}
	}
	wr.flipParentAfterValue()
	return nil
}

func (wr *Writer) encodeContainerHeader(isMap bool, n uint64) []byte {
	if isMap {
		switch {
		case n <= 0x0F:
			return []byte{0x80 | byte(n)}
		case n <= 0xFFFF:
			return []byte{0xDE, byte(n >> 8), byte(n)}
		default:
			return []byte{0xDF, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
		}
	}
	switch {
	case n <= 0x0F:
		return []byte{0x90 | byte(n)}
	case n <= 0xFFFF:
		return []byte{0xDC, byte(n >> 8), byte(n)}
	default:
		return []byte{0xDD, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

func (wr *Writer) openStream(isText bool, size *uint64) error {
	if wr.pendingTag != nil {
		// A tagged string/buffer is a MessagePack ext value: the whole
		// payload must be known up front to choose fixext vs ext8/16/32,
		// so buffer it regardless of the declared Size.
		wr.streaming = true
		wr.streamIsText = isText
		wr.streamBuf.Reset()
		wr.streamKnown = false
		return nil
	}
	if size != nil {
		wr.streaming = true
		wr.streamIsText = isText
		wr.streamKnown = true
		wr.streamDeclared = *size
		wr.streamActual = 0
		if err := wr.emitOpen(wr.encodeStrBinHeader(isText, *size)); err != nil {
			return err
		}
		return nil
	}
	wr.streaming = true
	wr.streamIsText = isText
	wr.streamBuf.Reset()
	wr.streamKnown = false
	return nil
}

func (wr *Writer) streamData(chunk []byte) error {
	if wr.streamKnown {
		wr.streamActual += uint64(len(chunk))
		return wr.writeBytes(chunk)
	}
	wr.streamBuf.Write(chunk)
	return nil
}

func (wr *Writer) closeStream() error {
	if wr.streamKnown {
		wr.streaming, wr.streamKnown = false, false
		if wr.streamActual != wr.streamDeclared {
			return ev.NewError(ev.ErrInvalidState, ev.Position{}, "msgpackio: string/buffer header declared %d bytes but received %d", wr.streamDeclared, wr.streamActual)
		}
		wr.flipParentAfterValue()
		return nil
	}
	body := append([]byte(nil), wr.streamBuf.Bytes()...)
	wr.streamBuf.Reset()
	wr.streaming = false
	if wr.pendingTag != nil {
		return wr.writeExtValue(*wr.pendingTag, body)
	}
	if err := wr.emit(append(wr.encodeStrBinHeader(wr.streamIsText, uint64(len(body))), body...)); err != nil {
		return err
	}
	return nil
}

func (wr *Writer) writeExtValue(tag uint64, body []byte) error {
	wr.pendingTag = nil
	extType := int8(tag)
	if tag > 0x7F {
		extType = int8(int(tag) - 0x100)
	}
	var hdr []byte
	n := len(body)
	switch n {
	case 1, 2, 4, 8, 16:
		prefixes := map[int]byte{1: 0xD4, 2: 0xD5, 4: 0xD6, 8: 0xD7, 16: 0xD8}
		hdr = []byte{prefixes[n], byte(extType)}
	default:
		switch {
		case n <= 0xFF:
			hdr = []byte{0xC7, byte(n), byte(extType)}
		case n <= 0xFFFF:
			hdr = []byte{0xC8, byte(n >> 8), byte(n), byte(extType)}
		default:
			hdr = []byte{0xC9, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n), byte(extType)}
		}
	}
	return wr.place(append(hdr, body...), false)
}

func (wr *Writer) encodeStrBinHeader(isText bool, n uint64) []byte {
	if isText {
		switch {
		case n <= 0x1F:
			return []byte{0xA0 | byte(n)}
		case n <= 0xFF:
			return []byte{0xD9, byte(n)}
		case n <= 0xFFFF:
			return []byte{0xDA, byte(n >> 8), byte(n)}
		default:
			return []byte{0xDB, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
		}
	}
	switch {
	case n <= 0xFF:
		return []byte{0xC4, byte(n)}
	case n <= 0xFFFF:
		return []byte{0xC5, byte(n >> 8), byte(n)}
	default:
		return []byte{0xC6, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

func (wr *Writer) writePrimitive(v ev.Primitive) error {
	switch v.Kind {
	case ev.KindNull:
		return wr.emit([]byte{0xC0})
	case ev.KindUndefined:
		return wr.emit([]byte{0xC0}) // MessagePack has no undefined; collapses to nil
	case ev.KindBool:
		if v.Bool {
			return wr.emit([]byte{0xC3})
		}
		return wr.emit([]byte{0xC2})
	case ev.KindInt:
		return wr.emit(wr.encodeInt(v.Int))
	case ev.KindUint:
		return wr.emit(wr.encodeUint(v.Uint))
	case ev.KindBigInt:
		return wr.emit(wr.encodeBigInt(v.BigInt))
	case ev.KindFloat:
		return wr.emit(wr.encodeFloat64(v.Float))
	case ev.KindDecimal:
		// No native decimal type: fall back to the shortest round-trip
		// text form as a string.
		return wr.emit(append(wr.encodeStrBinHeader(true, uint64(len(v.Decimal.String()))), []byte(v.Decimal.String())...))
	case ev.KindString:
		b := []byte(v.Str)
		return wr.emit(append(wr.encodeStrBinHeader(true, uint64(len(b))), b...))
	}
	return ev.NewError(ev.ErrInvalidState, ev.Position{}, "msgpackio: unknown primitive kind %d", v.Kind)
}

func (wr *Writer) encodeInt(v int64) []byte {
	if v >= 0 {
		return wr.encodeUint(uint64(v))
	}
	switch {
	case v >= -32:
		return []byte{byte(v)}
	case v >= math.MinInt8:
		return []byte{0xD0, byte(int8(v))}
	case v >= math.MinInt16:
		u := uint16(int16(v))
		return []byte{0xD1, byte(u >> 8), byte(u)}
	case v >= math.MinInt32:
		u := uint32(int32(v))
		return []byte{0xD2, byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
	default:
		u := uint64(v)
		out := make([]byte, 9)
		out[0] = 0xD3
		for i := 0; i < 8; i++ {
			out[1+i] = byte(u >> (uint(7-i) * 8))
		}
		return out
	}
}

func (wr *Writer) encodeUint(v uint64) []byte {
	switch {
	case v <= 0x7F:
		return []byte{byte(v)}
	case v <= 0xFF:
		return []byte{0xCC, byte(v)}
	case v <= 0xFFFF:
		return []byte{0xCD, byte(v >> 8), byte(v)}
	case v <= 0xFFFFFFFF:
		return []byte{0xCE, byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		out := make([]byte, 9)
		out[0] = 0xCF
		for i := 0; i < 8; i++ {
			out[1+i] = byte(v >> (uint(7-i) * 8))
		}
		return out
	}
}

func (wr *Writer) encodeBigInt(v *big.Int) []byte {
	if v.IsUint64() {
		return wr.encodeUint(v.Uint64())
	}
	if v.IsInt64() {
		return wr.encodeInt(v.Int64())
	}
	// Out of int64/uint64 range with no native bignum type: fall back to
	// decimal text, matching the Decimal fallback above.
	s := v.String()
	return append(wr.encodeStrBinHeader(true, uint64(len(s))), []byte(s)...)
}

func (wr *Writer) encodeFloat64(f float64) []byte {
	out := []byte{0xCB}
	bits := math.Float64bits(f)
	for i := 7; i >= 0; i-- {
		out = append(out, byte(bits>>(uint(i)*8)))
	}
	return out
}
