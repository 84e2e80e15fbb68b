package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainRunes(t *testing.T, cs *CharSource) []rune {
	t.Helper()
	var out []rune
	for {
		r, ok, err := cs.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}

func TestCharSourceSniffUTF8BOM(t *testing.T) {
	bs := NewByteSource(append([]byte{0xEF, 0xBB, 0xBF}, []byte("hi")...), true)
	cs := NewCharSource(bs, AnyEncoding, false)
	assert.Equal(t, []rune("hi"), drainRunes(t, cs))
	assert.Equal(t, UTF8, cs.encoding)
}

func TestCharSourceSniffUTF16BEBOM(t *testing.T) {
	// "hi" in UTF-16BE with a BOM.
	data := []byte{0xFE, 0xFF, 0x00, 'h', 0x00, 'i'}
	bs := NewByteSource(data, true)
	cs := NewCharSource(bs, AnyEncoding, false)
	assert.Equal(t, []rune("hi"), drainRunes(t, cs))
	assert.Equal(t, UTF16BE, cs.encoding)
}

func TestCharSourceSniffUTF16LENoBOM(t *testing.T) {
	data := []byte{'h', 0x00, 'i', 0x00}
	bs := NewByteSource(data, true)
	cs := NewCharSource(bs, AnyEncoding, false)
	assert.Equal(t, []rune("hi"), drainRunes(t, cs))
	assert.Equal(t, UTF16LE, cs.encoding)
}

func TestCharSourceDefaultsToUTF8(t *testing.T) {
	bs := NewByteSource([]byte("plain ascii text"), true)
	cs := NewCharSource(bs, AnyEncoding, false)
	assert.Equal(t, []rune("plain ascii text"), drainRunes(t, cs))
	assert.Equal(t, UTF8, cs.encoding)
}

func TestCharSourceMultibyteUTF8(t *testing.T) {
	bs := NewByteSource([]byte("café 中文"), true)
	cs := NewCharSource(bs, AnyEncoding, false)
	assert.Equal(t, []rune("café 中文"), drainRunes(t, cs))
}

func TestCharSourceSplitMultibyteAcrossFeed(t *testing.T) {
	full := []byte("café") // 'é' is 0xC3 0xA9 in UTF-8
	bs := NewByteSource(full[:len(full)-1], false)
	cs := NewCharSource(bs, AnyEncoding, false)
	var out []rune
	for {
		r, ok, err := cs.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, r)
	}
	assert.Equal(t, []rune("caf"), out)

	bs.Feed(full[len(full)-1:])
	bs.Close()
	r, ok, err := cs.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 'é', r)
}

func TestCharSourcePositionTracksLineColumn(t *testing.T) {
	bs := NewByteSource([]byte("ab\ncd"), true)
	cs := NewCharSource(bs, AnyEncoding, true)
	for i := 0; i < 3; i++ {
		_, ok, err := cs.Next()
		require.NoError(t, err)
		require.True(t, ok)
	}
	pos := cs.Position()
	assert.Equal(t, 2, pos.Line)
	assert.Equal(t, 1, pos.Column)
}

func TestCharSourceInvalidUTF8ContinuationByte(t *testing.T) {
	bs := NewByteSource([]byte{0xC3, 0x28}, true)
	cs := NewCharSource(bs, AnyEncoding, false)
	_, _, err := cs.Next()
	assert.Error(t, err)
}
