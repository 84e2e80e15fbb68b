package jsonio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/internal/source"
)

// readAllEvents drains a Reader built over a fully-buffered, final source,
// asserting every Next() call either produces an event or signals Done.
func readAllEvents(t *testing.T, input string, opts ev.ReaderOptions) []ev.Event {
	t.Helper()
	bs := source.NewByteSource([]byte(input), true)
	r := New(bs, opts)
	var out []ev.Event
	for {
		e, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			require.True(t, r.Done(), "reader suspended without being done on fully-buffered final input")
			break
		}
		out = append(out, e)
	}
	return out
}

func eventTypes(events []ev.Event) []ev.EventType {
	out := make([]ev.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestJSONReaderNestedValueScenario(t *testing.T) {
	// a nested object/array value decodes to the expected event sequence.
	input := `{"a":[1,2.5,true,null,"s"],"b":{}}`
	events := readAllEvents(t, input, ev.DefaultReaderOptions())
	want := []ev.EventType{
		ev.MapStart, ev.EventPrimitive, ev.ListStart,
		ev.EventPrimitive, ev.EventPrimitive, ev.EventPrimitive, ev.EventPrimitive, ev.EventPrimitive,
		ev.ListEnd, ev.EventPrimitive, ev.MapStart, ev.MapEnd, ev.MapEnd,
	}
	assert.Equal(t, want, eventTypes(events))
	assert.Equal(t, "a", events[1].Value.Str)
	assert.Equal(t, int64(1), events[3].Value.Int)
	assert.Equal(t, 2.5, events[4].Value.Float)
	assert.True(t, events[5].Value.Bool)
	assert.Equal(t, ev.KindNull, events[6].Value.Kind)
	assert.Equal(t, "s", events[7].Value.Str)
}

func TestJSONReaderPartialInputResumption(t *testing.T) {
	// feeding "{"x":12" then "345}" across two chunks must yield one number.
	bs := source.NewByteSource([]byte(`{"x":12`), false)
	r := New(bs, ev.DefaultReaderOptions())

	var got []ev.Event
	for {
		e, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, e)
	}
	require.Len(t, got, 2) // MapStart, "x"

	bs.Feed([]byte(`345}`))
	bs.Close()
	for {
		e, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, e)
	}
	require.True(t, r.Done())
	want := []ev.EventType{ev.MapStart, ev.EventPrimitive, ev.EventPrimitive, ev.MapEnd}
	assert.Equal(t, want, eventTypes(got))
	assert.Equal(t, int64(12345), got[2].Value.Int)
}

func TestJSONReaderTrailingCommaRejectedByDefault(t *testing.T) {
	bs := source.NewByteSource([]byte(`[1,2,]`), true)
	r := New(bs, ev.DefaultReaderOptions())
	var err error
	for {
		var ok bool
		_, ok, err = r.Next()
		if !ok {
			break
		}
	}
	assert.Error(t, err)
}

func TestJSONReaderTrailingCommaAllowedByOption(t *testing.T) {
	opts := ev.DefaultReaderOptions()
	opts.AllowTrailingComma = true
	events := readAllEvents(t, `[1,2,]`, opts)
	want := []ev.EventType{ev.ListStart, ev.EventPrimitive, ev.EventPrimitive, ev.ListEnd}
	assert.Equal(t, want, eventTypes(events))
}

func TestJSONReaderCommentsRequireOption(t *testing.T) {
	bs := source.NewByteSource([]byte("// hi\n[1]"), true)
	r := New(bs, ev.DefaultReaderOptions())
	_, _, err := r.Next()
	assert.Error(t, err)

	opts := ev.DefaultReaderOptions()
	opts.AllowComments = true
	events := readAllEvents(t, "// hi\n[1, /* inline */ 2]", opts)
	want := []ev.EventType{ev.ListStart, ev.EventPrimitive, ev.EventPrimitive, ev.ListEnd}
	assert.Equal(t, want, eventTypes(events))
}

func TestJSONReaderUnquotedKeys(t *testing.T) {
	opts := ev.DefaultReaderOptions()
	opts.AllowUnquotedKeys = true
	events := readAllEvents(t, `{foo:1}`, opts)
	require.Len(t, events, 4)
	assert.Equal(t, "foo", events[1].Value.Str)
}

func TestJSONReaderHexIntegerExtension(t *testing.T) {
	events := readAllEvents(t, `0x1F`, ev.DefaultReaderOptions())
	require.Len(t, events, 1)
	assert.Equal(t, "31", events[0].Value.String())

	big := readAllEvents(t, `0xFFFFFFFFFFFFFFFFFF`, ev.DefaultReaderOptions())
	require.Len(t, big, 1)
	assert.Equal(t, ev.KindBigInt, big[0].Value.Kind)
}

func TestJSONReaderBigDecimalDialect(t *testing.T) {
	opts := ev.DefaultReaderOptions()
	opts.BigDecimal = true
	lit := "1." + stringsRepeat("1", 20)
	events := readAllEvents(t, lit, opts)
	require.Len(t, events, 1)
	assert.Equal(t, ev.KindDecimal, events[0].Value.Kind)
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestJSONReaderChunkedStringAboveThreshold(t *testing.T) {
	opts := ev.DefaultReaderOptions()
	opts.FastStringLength = 4
	events := readAllEvents(t, `"hello world"`, opts)
	types := eventTypes(events)
	assert.Equal(t, ev.StringStart, types[0])
	assert.Equal(t, ev.StringEnd, types[len(types)-1])
	var data []byte
	for _, e := range events {
		if e.Type == ev.StringData {
			data = append(data, e.Chunk...)
		}
	}
	assert.Equal(t, "hello world", string(data))
}

func TestJSONReaderSurrogatePairEscape(t *testing.T) {
	events := readAllEvents(t, "\"\\ud83d\\ude00\"", ev.DefaultReaderOptions())
	require.Len(t, events, 1)
	assert.Equal(t, "😀", events[0].Value.Str)
}

func TestJSONReaderUnterminatedStringIsUnexpectedEOF(t *testing.T) {
	bs := source.NewByteSource([]byte(`"abc`), true)
	r := New(bs, ev.DefaultReaderOptions())
	_, _, err := r.Next()
	require.Error(t, err)
	var cerr *ev.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ev.ErrUnexpectedEOF, cerr.K)
}

func TestJSONReaderDepthLimit(t *testing.T) {
	opts := ev.DefaultReaderOptions()
	opts.MaxDepth = 2
	bs := source.NewByteSource([]byte(`[[[1]]]`), true)
	r := New(bs, opts)
	var err error
	for {
		var ok bool
		_, ok, err = r.Next()
		if !ok {
			break
		}
	}
	require.Error(t, err)
	var cerr *ev.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ev.ErrDepthLimit, cerr.K)
}
