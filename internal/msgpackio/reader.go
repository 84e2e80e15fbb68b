// Package msgpackio implements a MessagePack reader/writer, built around
// the same resumable mark/reset idiom as internal/cborio and
// internal/jsonio, and on prefix-byte tables cross-checked against
// several independent MessagePack and CBOR implementations (the two wire
// formats share a family of prefix-byte-table decoders). Unlike CBOR,
// MessagePack has no indefinite-length containers: every array/map/str/bin
// header carries an explicit count, so the reader never needs break-byte
// handling.
package msgpackio

import (
	"math"
	"math/big"

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
	kind      frameKind
	remaining uint64
	// started is false only for a frameBuffer pushed by readExt, whose
	// BufferStart event is deferred to the first nextChunk call (the Tag
	// event for the ext type must be returned on its own first).
	started bool
}

const maxChunk = 1 << 16

// Reader is a resumable MessagePack reader.
type Reader struct {
	bs       *source.ByteSource
	opts     ev.ReaderOptions
	stack    []frame
	rootSeen bool
	done     bool
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
	if f.kind == frameString || f.kind == frameBuffer {
		return r.nextChunk(f)
	}
	if (f.kind == frameList || f.kind == frameMap) && f.remaining == 0 {
		return r.closeContainer(f)
	}
	if f.kind == frameRoot && r.rootSeen {
		r.done = true
		return ev.Event{}, false, nil
	}
	b, ok := r.peek(0)
	if !ok {
		if r.bs.IsFinal() {
			return ev.Event{}, false, r.errf(ev.ErrUnexpectedEOF, "truncated MessagePack input")
		}
		return ev.Event{}, false, nil
	}
	return r.decodeItem(b)
}

func (r *Reader) closeContainer(f *frame) (ev.Event, bool, error) {
	evType := ev.ListEnd
	if f.kind == frameMap {
		evType = ev.MapEnd
	}
	r.stack = r.stack[:len(r.stack)-1]
	return ev.Event{Type: evType}, true, nil
}

func (r *Reader) peek(ahead int) (byte, bool) { return r.bs.PeekAt(ahead) }

func (r *Reader) peekN(offset, n int) ([]byte, bool) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, ok := r.peek(offset + i)
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

func (r *Reader) advance(n int) {
	for i := 0; i < n; i++ {
		r.bs.Get()
	}
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

func (r *Reader) decChildAndMaybeRoot() {
	f := r.top()
	switch f.kind {
	case frameList, frameMap:
		if f.remaining > 0 {
			f.remaining--
		}
	case frameRoot:
		r.rootSeen = true
	}
}

func (r *Reader) produceValue(v ev.Primitive) (ev.Event, bool, error) {
	r.decChildAndMaybeRoot()
	return ev.PrimitiveEvent(v), true, nil
}

func (r *Reader) pushList(n uint64) (ev.Event, bool, error) {
	r.decChildAndMaybeRoot()
	r.stack = append(r.stack, frame{kind: frameList, remaining: n})
	return ev.Event{Type: ev.ListStart, Size: ev.SizeOf(n)}, true, nil
}

func (r *Reader) pushMap(n uint64) (ev.Event, bool, error) {
	r.decChildAndMaybeRoot()
	r.stack = append(r.stack, frame{kind: frameMap, remaining: n * 2})
	return ev.Event{Type: ev.MapStart, Size: ev.SizeOf(n)}, true, nil
}

func (r *Reader) startChunked(isText bool, n uint64) (ev.Event, bool, error) {
	r.decChildAndMaybeRoot()
	kind := frameBuffer
	evType := ev.BufferStart
	if isText {
		kind = frameString
		evType = ev.StringStart
	}
	r.stack = append(r.stack, frame{kind: kind, remaining: n, started: true})
	return ev.Event{Type: evType, Size: ev.SizeOf(n)}, true, nil
}

func (r *Reader) nextChunk(f *frame) (ev.Event, bool, error) {
	endType := ev.BufferEnd
	startType := ev.BufferStart
	if f.kind == frameString {
		endType = ev.StringEnd
		startType = ev.StringStart
	}
	if !f.started {
		f.started = true
		return ev.Event{Type: startType, Size: ev.SizeOf(f.remaining)}, true, nil
	}
	if f.remaining == 0 {
		r.stack = r.stack[:len(r.stack)-1]
		return ev.Event{Type: endType}, true, nil
	}
	n := f.remaining
	if n > maxChunk {
		n = maxChunk
	}
	chunk, ok := r.peekN(0, int(n))
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
	}
	return ev.Event{Type: dataType, Chunk: append([]byte(nil), chunk...)}, true, nil
}

func (r *Reader) decodeItem(b0 byte) (ev.Event, bool, error) {
	switch {
	case b0 <= 0x7F: // positive fixint
		r.advance(1)
		return r.produceValue(ev.Uint(uint64(b0)))
	case b0 >= 0xE0: // negative fixint
		r.advance(1)
		return r.produceValue(ev.Int(int64(int8(b0))))
	case b0 >= 0x80 && b0 <= 0x8F: // fixmap
		r.advance(1)
		return r.pushMap(uint64(b0 & 0x0F))
	case b0 >= 0x90 && b0 <= 0x9F: // fixarray
		r.advance(1)
		return r.pushList(uint64(b0 & 0x0F))
	case b0 >= 0xA0 && b0 <= 0xBF: // fixstr
		r.advance(1)
		return r.startChunked(true, uint64(b0&0x1F))
	}

	switch b0 {
	case 0xC0:
		r.advance(1)
		return r.produceValue(ev.Null())
	case 0xC2:
		r.advance(1)
		return r.produceValue(ev.Bool(false))
	case 0xC3:
		r.advance(1)
		return r.produceValue(ev.Bool(true))
	case 0xC1:
		return ev.Event{}, false, r.errf(ev.ErrSyntax, "reserved MessagePack byte 0xC1")

	case 0xCA: // float32
		bs, ok := r.peekN(1, 4)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(5)
		return r.produceValue(ev.Float(float64(math.Float32frombits(be32(bs)))))
	case 0xCB: // float64
		bs, ok := r.peekN(1, 8)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(9)
		return r.produceValue(ev.Float(math.Float64frombits(be64(bs))))

	case 0xCC: // uint8
		bs, ok := r.peekN(1, 1)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(2)
		return r.produceValue(ev.Uint(uint64(bs[0])))
	case 0xCD: // uint16
		bs, ok := r.peekN(1, 2)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(3)
		return r.produceValue(ev.Uint(uint64(be16(bs))))
	case 0xCE: // uint32
		bs, ok := r.peekN(1, 4)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(5)
		return r.produceValue(ev.Uint(uint64(be32(bs))))
	case 0xCF: // uint64
		bs, ok := r.peekN(1, 8)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(9)
		v := be64(bs)
		if v > math.MaxInt64 {
			return r.produceValue(ev.BigInt(new(big.Int).SetUint64(v)))
		}
		return r.produceValue(ev.Uint(v))

	case 0xD0: // int8
		bs, ok := r.peekN(1, 1)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(2)
		return r.produceValue(ev.Int(int64(int8(bs[0]))))
	case 0xD1: // int16
		bs, ok := r.peekN(1, 2)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(3)
		return r.produceValue(ev.Int(int64(int16(be16(bs)))))
	case 0xD2: // int32
		bs, ok := r.peekN(1, 4)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(5)
		return r.produceValue(ev.Int(int64(int32(be32(bs)))))
	case 0xD3: // int64
		bs, ok := r.peekN(1, 8)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(9)
		return r.produceValue(ev.Int(int64(be64(bs))))

	case 0xD9: // str8
		bs, ok := r.peekN(1, 1)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(2)
		return r.startChunked(true, uint64(bs[0]))
	case 0xDA: // str16
		bs, ok := r.peekN(1, 2)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(3)
		return r.startChunked(true, uint64(be16(bs)))
	case 0xDB: // str32
		bs, ok := r.peekN(1, 4)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(5)
		return r.startChunked(true, uint64(be32(bs)))

	case 0xC4: // bin8
		bs, ok := r.peekN(1, 1)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(2)
		return r.startChunked(false, uint64(bs[0]))
	case 0xC5: // bin16
		bs, ok := r.peekN(1, 2)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(3)
		return r.startChunked(false, uint64(be16(bs)))
	case 0xC6: // bin32
		bs, ok := r.peekN(1, 4)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(5)
		return r.startChunked(false, uint64(be32(bs)))

	case 0xDC: // array16
		bs, ok := r.peekN(1, 2)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(3)
		return r.pushList(uint64(be16(bs)))
	case 0xDD: // array32
		bs, ok := r.peekN(1, 4)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(5)
		return r.pushList(uint64(be32(bs)))

	case 0xDE: // map16
		bs, ok := r.peekN(1, 2)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(3)
		return r.pushMap(uint64(be16(bs)))
	case 0xDF: // map32
		bs, ok := r.peekN(1, 4)
		if !ok {
			return ev.Event{}, false, nil
		}
		r.advance(5)
		return r.pushMap(uint64(be32(bs)))

	case 0xD4, 0xD5, 0xD6, 0xD7, 0xD8: // fixext 1/2/4/8/16
		lens := map[byte]int{0xD4: 1, 0xD5: 2, 0xD6: 4, 0xD7: 8, 0xD8: 16}
		return r.readExt(1, lens[b0])
	case 0xC7: // ext8
		bs, ok := r.peekN(1, 1)
		if !ok {
			return ev.Event{}, false, nil
		}
		return r.readExt(2, int(bs[0]))
	case 0xC8: // ext16
		bs, ok := r.peekN(1, 2)
		if !ok {
			return ev.Event{}, false, nil
		}
		return r.readExt(3, int(be16(bs)))
	case 0xC9: // ext32
		bs, ok := r.peekN(1, 4)
		if !ok {
			return ev.Event{}, false, nil
		}
		return r.readExt(5, int(be32(bs)))
	}
	return ev.Event{}, false, r.errf(ev.ErrSyntax, "invalid MessagePack lead byte 0x%02X", b0)
}

// readExt reads an ext header and emits it as Tag(type) + a Buffer
// carrying the ext payload, surfacing MessagePack extension types the same
// way CBOR tags wrap buffers. typeOffset is the byte offset of the type
// byte from the start of the
// header (1 for fixext, which has no explicit length field; 2/3/5 for
// ext8/16/32's 1/2/4-byte length fields).
func (r *Reader) readExt(typeOffset int, dataLen int) (ev.Event, bool, error) {
	typeByte, ok := r.peek(typeOffset)
	if !ok {
		return ev.Event{}, false, nil
	}
	r.advance(typeOffset + 1) // header through and including the type byte
	extType := int8(typeByte)
	r.decChildAndMaybeRoot()
	r.stack = append(r.stack, frame{kind: frameBuffer, remaining: uint64(dataLen)})
	n := uint64(extType)
	if extType < 0 {
		n = uint64(0x100 + int(extType))
	}
	return ev.TagEvent(n), true, nil
}
