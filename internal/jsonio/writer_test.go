package jsonio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ev "github.com/faceless2/evcodec"
)

func writeEvents(t *testing.T, opts ev.WriterOptions, events []ev.Event) string {
	t.Helper()
	var buf bytes.Buffer
	w := New(&buf, opts)
	for _, e := range events {
		require.NoError(t, w.Write(e))
	}
	return buf.String()
}

func nestedValueEvents() []ev.Event {
	return []ev.Event{
		{Type: ev.MapStart, Size: ev.SizeOf(2)},
		ev.PrimitiveEvent(ev.String("a")),
		{Type: ev.ListStart, Size: ev.SizeOf(5)},
		ev.PrimitiveEvent(ev.Int(1)),
		ev.PrimitiveEvent(ev.Float(2.5)),
		ev.PrimitiveEvent(ev.Bool(true)),
		ev.PrimitiveEvent(ev.Null()),
		ev.PrimitiveEvent(ev.String("s")),
		{Type: ev.ListEnd},
		ev.PrimitiveEvent(ev.String("b")),
		{Type: ev.MapStart, Size: ev.SizeOf(0)},
		{Type: ev.MapEnd},
		{Type: ev.MapEnd},
	}
}

func TestJSONWriterNestedValueScenario(t *testing.T) {
	// a nested object/array value round-trips byte-for-byte in compact form.
	got := writeEvents(t, ev.DefaultWriterOptions(), nestedValueEvents())
	assert.Equal(t, `{"a":[1,2.5,true,null,"s"],"b":{}}`, got)
}

func TestJSONWriterSortedKeys(t *testing.T) {
	// sorted-key mode reorders map entries lexicographically by encoded key.
	events := []ev.Event{
		{Type: ev.MapStart, Size: ev.SizeOf(2)},
		ev.PrimitiveEvent(ev.String("b")),
		ev.PrimitiveEvent(ev.Int(1)),
		ev.PrimitiveEvent(ev.String("a")),
		ev.PrimitiveEvent(ev.Int(2)),
		{Type: ev.MapEnd},
	}
	unsorted := writeEvents(t, ev.DefaultWriterOptions(), events)
	assert.Equal(t, `{"b":1,"a":2}`, unsorted)

	opts := ev.DefaultWriterOptions()
	opts.Sorted = true
	sorted := writeEvents(t, opts, events)
	assert.Equal(t, `{"a":2,"b":1}`, sorted)
}

func TestJSONWriterIndent(t *testing.T) {
	opts := ev.DefaultWriterOptions()
	opts.Indent = 2
	events := []ev.Event{
		{Type: ev.ListStart, Size: ev.SizeOf(2)},
		ev.PrimitiveEvent(ev.Int(1)),
		ev.PrimitiveEvent(ev.Int(2)),
		{Type: ev.ListEnd},
	}
	got := writeEvents(t, opts, events)
	assert.Equal(t, "[\n  1,\n  2\n]", got)
}

func TestJSONWriterChunkedString(t *testing.T) {
	events := []ev.Event{
		{Type: ev.StringStart, Size: ev.SizeOf(5)},
		{Type: ev.StringData, Chunk: []byte("he")},
		{Type: ev.StringData, Chunk: []byte("llo")},
		{Type: ev.StringEnd},
	}
	got := writeEvents(t, ev.DefaultWriterOptions(), events)
	assert.Equal(t, `"hello"`, got)
}

func TestJSONWriterBufferAsBase64URL(t *testing.T) {
	events := []ev.Event{
		{Type: ev.BufferStart, Size: ev.SizeOf(3)},
		{Type: ev.BufferData, Chunk: []byte{0xFF, 0xEE, 0x01}},
		{Type: ev.BufferEnd},
	}
	got := writeEvents(t, ev.DefaultWriterOptions(), events)
	assert.Equal(t, `"_-4B"`, got)
}

func TestJSONWriterNaNAndInfinity(t *testing.T) {
	events := []ev.Event{ev.PrimitiveEvent(ev.Float(nan()))}
	assert.Equal(t, "null", writeEvents(t, ev.DefaultWriterOptions(), events))

	opts := ev.DefaultWriterOptions()
	opts.AllowNaN = true
	assert.Equal(t, "NaN", writeEvents(t, opts, events))
}

func TestJSONWriterRejectsUnmatchedEnd(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, ev.DefaultWriterOptions())
	err := w.Write(ev.Event{Type: ev.MapEnd})
	assert.Error(t, err)
}

func TestJSONWriterFilterRedacts(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, ev.DefaultWriterOptions())
	w.SetFilter(func(path []PathStep, e ev.Event) (ev.Event, bool) {
		if len(path) > 0 && path[len(path)-1].Key == "password" && e.Type == ev.EventPrimitive {
			return ev.PrimitiveEvent(ev.String("***")), true
		}
		return e, true
	})
	events := []ev.Event{
		{Type: ev.MapStart, Size: ev.SizeOf(1)},
		ev.PrimitiveEvent(ev.String("password")),
		ev.PrimitiveEvent(ev.String("hunter2")),
		{Type: ev.MapEnd},
	}
	for _, e := range events {
		require.NoError(t, w.Write(e))
	}
	assert.Equal(t, `{"password":"***"}`, buf.String())
}
