package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSourceGetAndAvailable(t *testing.T) {
	s := NewByteSource([]byte("abc"), true)
	assert.Equal(t, 3, s.Available())
	b, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, byte('a'), b)
	assert.Equal(t, 2, s.Available())
	assert.Equal(t, int64(1), s.ByteNumber())
}

func TestByteSourcePeekDoesNotConsume(t *testing.T) {
	s := NewByteSource([]byte("xyz"), true)
	b, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, byte('x'), b)
	assert.Equal(t, 3, s.Available())

	b2, ok2 := s.PeekAt(2)
	require.True(t, ok2)
	assert.Equal(t, byte('z'), b2)

	_, ok3 := s.PeekAt(5)
	assert.False(t, ok3)
}

func TestByteSourceFeedResumption(t *testing.T) {
	s := NewByteSource([]byte("ab"), false)
	assert.Equal(t, 2, s.Available())
	_, ok := s.GetSlice(10)
	require.True(t, ok)
	assert.Equal(t, 0, s.Available())
	assert.False(t, s.IsFinal())

	s.Feed([]byte("cd"))
	assert.Equal(t, 2, s.Available())
	slice, ok2 := s.GetSlice(2)
	require.True(t, ok2)
	assert.Equal(t, []byte("cd"), slice)

	s.Close()
	assert.True(t, s.IsFinal())
	_, ok3 := s.GetSlice(1)
	assert.False(t, ok3)
}

func TestByteSourceMarkReset(t *testing.T) {
	s := NewByteSource([]byte("hello"), true)
	s.Get()
	s.Get()
	s.Mark()
	s.Get()
	s.Get()
	s.Reset()
	b, _ := s.Get()
	assert.Equal(t, byte('l'), b)
	s.Unmark()
}

func TestByteSourceResetWithoutMarkPanics(t *testing.T) {
	s := NewByteSource([]byte("x"), true)
	assert.Panics(t, func() { s.Reset() })
}

func TestByteSourceCompactRespectsMark(t *testing.T) {
	s := NewByteSource([]byte("abcdef"), false)
	s.Get()
	s.Get()
	s.Mark()
	// Feed triggers compact(); bytes at/after the mark must survive.
	s.Feed([]byte("ghi"))
	s.Reset()
	b, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, byte('c'), b)
}
