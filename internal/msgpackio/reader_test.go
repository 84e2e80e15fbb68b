package msgpackio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/internal/source"
)

func readAllMsgpack(t *testing.T, data []byte, opts ev.ReaderOptions) []ev.Event {
	t.Helper()
	bs := source.NewByteSource(data, true)
	r := New(bs, opts)
	var out []ev.Event
	for {
		e, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			require.True(t, r.Done())
			break
		}
		out = append(out, e)
	}
	return out
}

func TestMsgpackReaderFixintAndFixstr(t *testing.T) {
	data := []byte{0x92, 0x2A, 0xA3, 'f', 'o', 'o'} // [42, "foo"]
	events := readAllMsgpack(t, data, ev.DefaultReaderOptions())
	want := []ev.EventType{ev.ListStart, ev.EventPrimitive, ev.StringStart, ev.StringData, ev.StringEnd, ev.ListEnd}
	types := make([]ev.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, want, types)
	assert.Equal(t, uint64(42), events[1].Value.Uint)
}

func TestMsgpackReaderNegativeFixint(t *testing.T) {
	events := readAllMsgpack(t, []byte{0xFF}, ev.DefaultReaderOptions()) // -1
	require.Len(t, events, 1)
	assert.Equal(t, int64(-1), events[0].Value.Int)
}

func TestMsgpackReaderFixmapAndFixarray(t *testing.T) {
	// {"a": [1]}
	data := []byte{0x81, 0xA1, 'a', 0x91, 0x01}
	events := readAllMsgpack(t, data, ev.DefaultReaderOptions())
	want := []ev.EventType{ev.MapStart, ev.StringStart, ev.StringData, ev.StringEnd, ev.ListStart, ev.EventPrimitive, ev.ListEnd, ev.MapEnd}
	types := make([]ev.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, want, types)
}

func TestMsgpackReaderUint64PromotesToBigIntWhenNeeded(t *testing.T) {
	data := []byte{0xCF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF} // max uint64
	events := readAllMsgpack(t, data, ev.DefaultReaderOptions())
	require.Len(t, events, 1)
	assert.Equal(t, ev.KindBigInt, events[0].Value.Kind)
}

func TestMsgpackReaderFloat64(t *testing.T) {
	data := []byte{0xCB, 0x3F, 0xF8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00} // 1.5
	events := readAllMsgpack(t, data, ev.DefaultReaderOptions())
	require.Len(t, events, 1)
	assert.Equal(t, 1.5, events[0].Value.Float)
}

func TestMsgpackReaderExtType(t *testing.T) {
	// fixext1 with type 5, one payload byte 0x7F.
	data := []byte{0xD4, 0x05, 0x7F}
	events := readAllMsgpack(t, data, ev.DefaultReaderOptions())
	want := []ev.EventType{ev.EventTag, ev.BufferStart, ev.BufferData, ev.BufferEnd}
	types := make([]ev.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, want, types)
	assert.Equal(t, uint64(5), events[0].Uint64())
	assert.Equal(t, []byte{0x7F}, events[2].Chunk)
}

func TestMsgpackReaderNegativeExtType(t *testing.T) {
	data := []byte{0xD4, 0xFF, 0x01} // fixext1, ext type -1
	events := readAllMsgpack(t, data, ev.DefaultReaderOptions())
	require.Len(t, events, 4)
	assert.Equal(t, uint64(0xFF), events[0].Uint64())
}

func TestMsgpackReaderReservedByteIsError(t *testing.T) {
	bs := source.NewByteSource([]byte{0xC1}, true)
	r := New(bs, ev.DefaultReaderOptions())
	_, _, err := r.Next()
	assert.Error(t, err)
}

func TestMsgpackReaderStr8Chunking(t *testing.T) {
	data := append([]byte{0xD9, 0x03}, []byte("abc")...)
	events := readAllMsgpack(t, data, ev.DefaultReaderOptions())
	want := []ev.EventType{ev.StringStart, ev.StringData, ev.StringEnd}
	types := make([]ev.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, want, types)
	assert.Equal(t, "abc", string(events[1].Chunk))
}

func TestMsgpackReaderResumptionAcrossByteChunks(t *testing.T) {
	data := []byte{0x81, 0xA1, 'a', 0x91, 0x01}
	bs := source.NewByteSource(nil, false)
	r := New(bs, ev.DefaultReaderOptions())
	var out []ev.Event
	for i := 0; i < len(data); i++ {
		bs.Feed([]byte{data[i]})
		if i == len(data)-1 {
			bs.Close()
		}
		for {
			e, ok, err := r.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			out = append(out, e)
		}
	}
	require.True(t, r.Done())
	require.Len(t, out, 8)
}
