package cborio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/internal/source"
)

func readAllCBOR(t *testing.T, data []byte, opts ev.ReaderOptions) []ev.Event {
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

func TestCBORReaderIntegerSizing(t *testing.T) {
	// 18 64 -> Primitive(100).
	events := readAllCBOR(t, []byte{0x18, 0x64}, ev.DefaultReaderOptions())
	require.Len(t, events, 1)
	assert.Equal(t, uint64(100), events[0].Value.Uint)
}

func TestCBORReaderIndefiniteStringSplitUTF8(t *testing.T) {
	// an indefinite-length text string of two chunks, each one complete "é".
	data := []byte{0x7F, 0x62, 0xC3, 0xA9, 0x62, 0xC3, 0xA9, 0xFF}
	events := readAllCBOR(t, data, ev.DefaultReaderOptions())
	want := []ev.EventType{ev.StringStart, ev.StringData, ev.StringData, ev.StringEnd}
	types := make([]ev.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, want, types)
	_, definite := events[0].Size64()
	assert.False(t, definite)
	var joined []byte
	joined = append(joined, events[1].Chunk...)
	joined = append(joined, events[2].Chunk...)
	assert.Equal(t, "éé", string(joined))
}

func TestCBORReaderNegativeInteger(t *testing.T) {
	events := readAllCBOR(t, []byte{0x29}, ev.DefaultReaderOptions()) // -10
	require.Len(t, events, 1)
	assert.Equal(t, int64(-10), events[0].Value.Int)
}

func TestCBORReaderDefiniteMapAndArray(t *testing.T) {
	// {"a": [1]}
	data := []byte{0xA1, 0x61, 'a', 0x81, 0x01}
	events := readAllCBOR(t, data, ev.DefaultReaderOptions())
	want := []ev.EventType{ev.MapStart, ev.StringStart, ev.StringData, ev.StringEnd, ev.ListStart, ev.EventPrimitive, ev.ListEnd, ev.MapEnd}
	types := make([]ev.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, want, types)
}

func TestCBORReaderTagThenValue(t *testing.T) {
	data := []byte{0xC1, 0x1A, 0x5C, 0x9B, 0xC0, 0x7B} // tag 1 (epoch), uint32
	events := readAllCBOR(t, data, ev.DefaultReaderOptions())
	require.Len(t, events, 2)
	assert.Equal(t, ev.EventTag, events[0].Type)
	assert.Equal(t, uint64(1), events[0].Uint64())
	assert.Equal(t, ev.EventPrimitive, events[1].Type)
}

func TestCBORReaderHalfFloat(t *testing.T) {
	// 1.5 in binary16: 0x3E00
	data := []byte{0xF9, 0x3E, 0x00}
	events := readAllCBOR(t, data, ev.DefaultReaderOptions())
	require.Len(t, events, 1)
	assert.InDelta(t, 1.5, events[0].Value.Float, 0.0001)
}

func TestCBORReaderBreakByteOutsideIndefiniteIsError(t *testing.T) {
	bs := source.NewByteSource([]byte{0xFF}, true)
	r := New(bs, ev.DefaultReaderOptions())
	_, _, err := r.Next()
	assert.Error(t, err)
}

func TestCBORReaderSimpleValue(t *testing.T) {
	events := readAllCBOR(t, []byte{0xF8, 0x20}, ev.DefaultReaderOptions()) // simple(32)
	require.Len(t, events, 1)
	assert.Equal(t, ev.EventSimple, events[0].Type)
	assert.Equal(t, uint64(32), events[0].Uint64())
}

func TestCBORReaderBignumTagPassedThrough(t *testing.T) {
	// tag 2 (positive bignum) over a 2-byte string "\x01\x00" = 256
	data := []byte{0xC2, 0x42, 0x01, 0x00}
	events := readAllCBOR(t, data, ev.DefaultReaderOptions())
	want := []ev.EventType{ev.EventTag, ev.BufferStart, ev.BufferData, ev.BufferEnd}
	types := make([]ev.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, want, types)
	assert.Equal(t, uint64(TagPosBignum), events[0].Uint64())
}

func TestCBORReaderResumptionAcrossByteChunks(t *testing.T) {
	data := []byte{0xA1, 0x61, 'a', 0x81, 0x01}
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
