package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/docval"
)

type recordingSink struct {
	events []ev.Event
}

func (s *recordingSink) Write(e ev.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []ev.EventType {
	out := make([]ev.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func TestEmitNestedValueScenario(t *testing.T) {
	v := docval.Map(
		docval.MapEntry{Key: "a", Value: docval.List(docval.Int(1), docval.Bool(true))},
	)
	sink := &recordingSink{}
	require.NoError(t, Emit(v, sink))
	want := []ev.EventType{
		ev.MapStart, ev.EventPrimitive, ev.ListStart, ev.EventPrimitive, ev.EventPrimitive, ev.ListEnd, ev.MapEnd,
	}
	assert.Equal(t, want, sink.types())
}

func TestEmitNilValueBecomesNull(t *testing.T) {
	sink := &recordingSink{}
	require.NoError(t, Emit(nil, sink))
	require.Len(t, sink.events, 1)
	assert.Equal(t, ev.KindNull, sink.events[0].Value.Kind)
}

func TestEmitEmptyStringStillEmitsStartAndEnd(t *testing.T) {
	sink := &recordingSink{}
	require.NoError(t, Emit(docval.String(""), sink))
	want := []ev.EventType{ev.StringStart, ev.StringEnd}
	assert.Equal(t, want, sink.types())
}

func TestEmitTaggedValueEmitsTagEventFirst(t *testing.T) {
	v := docval.Int(5).WithTag(1)
	sink := &recordingSink{}
	require.NoError(t, Emit(v, sink))
	want := []ev.EventType{ev.EventTag, ev.EventPrimitive}
	assert.Equal(t, want, sink.types())
	assert.Equal(t, uint64(1), sink.events[0].Uint64())
}

func TestEmitBufferNonEmpty(t *testing.T) {
	sink := &recordingSink{}
	require.NoError(t, Emit(docval.Buffer([]byte{0x01, 0x02}), sink))
	want := []ev.EventType{ev.BufferStart, ev.BufferData, ev.BufferEnd}
	assert.Equal(t, want, sink.types())
	assert.Equal(t, []byte{0x01, 0x02}, sink.events[1].Chunk)
}

func TestEmitSimpleValue(t *testing.T) {
	sink := &recordingSink{}
	require.NoError(t, Emit(docval.Simple(20), sink))
	require.Len(t, sink.events, 1)
	assert.Equal(t, ev.EventSimple, sink.events[0].Type)
	assert.Equal(t, uint64(20), sink.events[0].Uint64())
}
