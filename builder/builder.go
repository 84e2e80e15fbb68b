// Package builder reconstructs a docval.Value tree from an evcodec.Event
// stream, the inverse of package emitter. It is built around a
// node-building loop (a stack of in-progress containers, closed off by the
// matching *End event) generalized from YAML's scalar/sequence/mapping
// kinds to this codec's richer value set.
package builder

import (
	"bytes"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/docval"
)

type frameKind int8

const (
	frameRoot frameKind = iota
	frameList
	frameMap
)

type frame struct {
	kind        frameKind
	capturedTag *uint64
	list        []*docval.Value
	entries     []docval.MapEntry
	keyIndex    map[string]int
	pendingKey  string
	haveKey     bool
}

// Options configures Builder construction behavior not already captured by
// evcodec.ReaderOptions (which governs the upstream reader instead).
type Options struct {
	MaxDepth            int
	StrictDuplicateKeys bool
}

// Builder consumes one evcodec.Event at a time via Write and exposes the
// finished tree via Result once the stream's single root value has closed.
type Builder struct {
	opts       Options
	stack      []*frame
	pendingTag *uint64
	root       *docval.Value
	done       bool
	err        error

	// Scalar-in-progress state for StringStart/BufferStart..End runs.
	assembling     bool
	assemblingText bool // true for a string, false for a buffer
	buf            bytes.Buffer
	scalarTag      *uint64
}

func New(opts Options) *Builder {
	return &Builder{opts: opts, stack: []*frame{{kind: frameRoot}}}
}

// Done reports whether the stream's single root value has been fully built.
func (b *Builder) Done() bool { return b.done }

// Result returns the completed root value. It returns an *evcodec.Error of
// kind InvalidState if the stream ended with unclosed containers or an
// in-progress scalar.
func (b *Builder) Result() (*docval.Value, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.done {
		return nil, ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: incomplete document (%d frame(s), assembling=%v)", len(b.stack)-1, b.assembling)
	}
	return b.root, nil
}

func (b *Builder) top() *frame { return b.stack[len(b.stack)-1] }

// Write feeds one event into the builder.
func (b *Builder) Write(e ev.Event) error {
	if b.err != nil {
		return b.err
	}
	err := b.write(e)
	if err != nil {
		b.err = err
	}
	return err
}

func (b *Builder) write(e ev.Event) error {
	if b.done {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: event received after root value closed")
	}
	switch e.Type {
	case ev.EventTag:
		n := e.Value.Uint
		b.pendingTag = &n
		return nil
	case ev.MapStart:
		return b.pushContainer(frameMap)
	case ev.MapEnd:
		return b.popContainer(frameMap)
	case ev.ListStart:
		return b.pushContainer(frameList)
	case ev.ListEnd:
		return b.popContainer(frameList)
	case ev.StringStart:
		return b.startScalar(true)
	case ev.StringData:
		return b.scalarData(true, e.Chunk)
	case ev.StringEnd:
		return b.endScalar(true)
	case ev.BufferStart:
		return b.startScalar(false)
	case ev.BufferData:
		return b.scalarData(false, e.Chunk)
	case ev.BufferEnd:
		return b.endScalar(false)
	case ev.EventPrimitive:
		return b.deliver(valueFromPrimitive(e.Value))
	case ev.EventSimple:
		return b.deliver(docval.Simple(uint8(e.Value.Uint)))
	}
	return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: unexpected event %s", e.Type)
}

func valueFromPrimitive(p ev.Primitive) *docval.Value {
	switch p.Kind {
	case ev.KindNull:
		return docval.Null()
	case ev.KindUndefined:
		return docval.Undefined()
	case ev.KindBool:
		return docval.Bool(p.Bool)
	case ev.KindInt:
		return docval.Int(p.Int)
	case ev.KindUint:
		return docval.Uint(p.Uint)
	case ev.KindBigInt:
		return docval.BigInt(p.BigInt)
	case ev.KindFloat:
		return docval.Float(p.Float)
	case ev.KindDecimal:
		return docval.DecimalValue(p.Decimal)
	case ev.KindString:
		return docval.String(p.Str)
	}
	return docval.Null()
}

func (b *Builder) pushContainer(kind frameKind) error {
	if b.opts.MaxDepth > 0 && len(b.stack) > b.opts.MaxDepth {
		return ev.NewError(ev.ErrDepthLimit, ev.Position{}, "builder: max depth %d exceeded", b.opts.MaxDepth)
	}
	f := &frame{kind: kind, capturedTag: b.pendingTag}
	b.pendingTag = nil
	if kind == frameMap {
		f.keyIndex = make(map[string]int)
	}
	b.stack = append(b.stack, f)
	return nil
}

func (b *Builder) popContainer(kind frameKind) error {
	if len(b.stack) < 2 || b.top().kind != kind {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: unmatched container end")
	}
	f := b.stack[len(b.stack)-1]
	if kind == frameMap && f.haveKey {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: map closed with a dangling key")
	}
	b.stack = b.stack[:len(b.stack)-1]
	var v *docval.Value
	if kind == frameMap {
		v = docval.Map(f.entries...)
	} else {
		v = docval.List(f.list...)
	}
	v.Tag = f.capturedTag
	return b.deliver(v)
}

func (b *Builder) startScalar(isText bool) error {
	if b.assembling {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: nested string/buffer start")
	}
	b.assembling = true
	b.assemblingText = isText
	b.buf.Reset()
	b.scalarTag = b.pendingTag
	b.pendingTag = nil
	return nil
}

func (b *Builder) scalarData(isText bool, chunk []byte) error {
	if !b.assembling || b.assemblingText != isText {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: data event without matching start")
	}
	b.buf.Write(chunk)
	return nil
}

func (b *Builder) endScalar(isText bool) error {
	if !b.assembling || b.assemblingText != isText {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: end event without matching start")
	}
	b.assembling = false
	var v *docval.Value
	if isText {
		v = docval.String(b.buf.String())
	} else {
		v = docval.Buffer(append([]byte(nil), b.buf.Bytes()...))
	}
	v.Tag = b.scalarTag
	b.scalarTag = nil
	return b.deliver(v)
}

// deliver places a completed value (scalar, or just-closed container) into
// its parent frame, or finishes the document if the parent is the root.
func (b *Builder) deliver(v *docval.Value) error {
	if v.Tag == nil && b.pendingTag != nil {
		v.Tag = b.pendingTag
	}
	b.pendingTag = nil

	f := b.top()
	switch f.kind {
	case frameRoot:
		b.root = v
		b.done = true
		return nil
	case frameList:
		f.list = append(f.list, v)
		return nil
	case frameMap:
		if !f.haveKey {
			if v.Kind != docval.KindString {
				return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: map keys must be strings, got %s", v.Kind)
			}
			f.pendingKey = v.Str
			f.haveKey = true
			return nil
		}
		key := f.pendingKey
		f.haveKey = false
		if idx, dup := f.keyIndex[key]; dup {
			if b.opts.StrictDuplicateKeys {
				return ev.NewError(ev.ErrDuplicateKey, ev.Position{}, "builder: duplicate map key %q", key)
			}
			f.entries[idx].Value = v
			return nil
		}
		f.keyIndex[key] = len(f.entries)
		f.entries = append(f.entries, docval.MapEntry{Key: key, Value: v})
		return nil
	}
	return ev.NewError(ev.ErrInvalidState, ev.Position{}, "builder: invalid internal frame state")
}
