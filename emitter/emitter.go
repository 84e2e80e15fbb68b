// Package emitter walks a docval.Value tree depth-first and emits the
// corresponding evcodec.Event sequence, the inverse of package builder.
// It plays the role a YAML encoder's emitter plays for a Node tree,
// generalized to this codec's richer value kinds.
package emitter

import (
	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/docval"
)

// Sink receives events one at a time; jsonio.Writer, cborio.Writer and
// msgpackio.Writer all satisfy it.
type Sink interface {
	Write(e ev.Event) error
}

// Emit writes v's full event sequence to sink.
func Emit(v *docval.Value, sink Sink) error {
	if v == nil {
		return sink.Write(ev.PrimitiveEvent(ev.Null()))
	}
	if v.Tag != nil {
		if err := sink.Write(ev.TagEvent(*v.Tag)); err != nil {
			return err
		}
	}
	switch v.Kind {
	case docval.KindList:
		return emitList(v, sink)
	case docval.KindMap:
		return emitMap(v, sink)
	case docval.KindString:
		return emitString(v.Str, sink)
	case docval.KindBuffer:
		return emitBuffer(v.Buffer, sink)
	case docval.KindSimple:
		return sink.Write(ev.SimpleEvent(uint8(v.Uint)))
	default:
		return sink.Write(ev.PrimitiveEvent(v.Primitive()))
	}
}

func emitList(v *docval.Value, sink Sink) error {
	size := ev.SizeOf(uint64(len(v.List)))
	if err := sink.Write(ev.Event{Type: ev.ListStart, Size: size}); err != nil {
		return err
	}
	for _, item := range v.List {
		if err := Emit(item, sink); err != nil {
			return err
		}
	}
	return sink.Write(ev.Event{Type: ev.ListEnd})
}

func emitMap(v *docval.Value, sink Sink) error {
	size := ev.SizeOf(uint64(len(v.Map)))
	if err := sink.Write(ev.Event{Type: ev.MapStart, Size: size}); err != nil {
		return err
	}
	for _, entry := range v.Map {
		if err := sink.Write(ev.PrimitiveEvent(ev.String(entry.Key))); err != nil {
			return err
		}
		if err := Emit(entry.Value, sink); err != nil {
			return err
		}
	}
	return sink.Write(ev.Event{Type: ev.MapEnd})
}

func emitString(s string, sink Sink) error {
	size := ev.SizeOf(uint64(len(s)))
	if err := sink.Write(ev.Event{Type: ev.StringStart, Size: size}); err != nil {
		return err
	}
	if len(s) > 0 {
		if err := sink.Write(ev.Event{Type: ev.StringData, Chunk: []byte(s)}); err != nil {
			return err
		}
	}
	return sink.Write(ev.Event{Type: ev.StringEnd})
}

func emitBuffer(b []byte, sink Sink) error {
	size := ev.SizeOf(uint64(len(b)))
	if err := sink.Write(ev.Event{Type: ev.BufferStart, Size: size}); err != nil {
		return err
	}
	if len(b) > 0 {
		if err := sink.Write(ev.Event{Type: ev.BufferData, Chunk: b}); err != nil {
			return err
		}
	}
	return sink.Write(ev.Event{Type: ev.BufferEnd})
}
