package evcodec

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "map-start", MapStart.String())
	assert.Equal(t, "string-data", StringData.String())
	assert.Contains(t, EventType(99).String(), "EventType(99)")
}

func TestSizeOfAndSize64(t *testing.T) {
	e := MapStartEvent(SizeOf(3))
	n, ok := e.Size64()
	require.True(t, ok)
	assert.Equal(t, uint64(3), n)

	e2 := ListStartEvent(nil)
	_, ok2 := e2.Size64()
	assert.False(t, ok2)
}

func TestTagAndSimpleEventCarryUint(t *testing.T) {
	assert.Equal(t, uint64(5), TagEvent(5).Uint64())
	assert.Equal(t, uint64(200), SimpleEvent(200).Uint64())
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "offset 42", Position{Offset: 42}.String())
	assert.Equal(t, "line 2, column 3", Position{Offset: 10, Line: 2, Column: 3}.String())
}

func TestPrimitiveConstructorsAndString(t *testing.T) {
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, "undefined", Undefined().String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "false", Bool(false).String())
	assert.Equal(t, "-7", Int(-7).String())
	assert.Equal(t, "7", Uint(7).String())
	assert.Equal(t, "hi", String("hi").String())
	assert.True(t, Int(1).IsNumeric())
	assert.False(t, String("x").IsNumeric())
}

func TestBigIntDemotesToInt64WhenItFits(t *testing.T) {
	small := BigInt(big.NewInt(41))
	assert.Equal(t, KindInt, small.Kind)
	assert.Equal(t, int64(41), small.Int)
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrSyntax, Position{Line: 1, Column: 2}, "bad token %q", "x")
	assert.Contains(t, err.Error(), "syntax")
	assert.Contains(t, err.Error(), "bad token")
	assert.Contains(t, err.Error(), "line 1, column 2")

	err2 := NewError(ErrOverflow, Position{}, "too big")
	assert.Equal(t, "overflow: too big", err2.Error())
}
