package cmd

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	ev "github.com/faceless2/evcodec"
)

func TestToInspectLinePrimitive(t *testing.T) {
	line := toInspectLine(ev.PrimitiveEvent(ev.Int(42)))
	assert.Equal(t, "primitive", line.Event)
	assert.Equal(t, int64(42), line.Value)
}

func TestToInspectLineTag(t *testing.T) {
	line := toInspectLine(ev.TagEvent(7))
	assert.Equal(t, "tag", line.Event)
	assert.Equal(t, uint64(7), line.Value)
}

func TestToInspectLineStringData(t *testing.T) {
	line := toInspectLine(ev.StringDataEvent([]byte("hi")))
	assert.Equal(t, "string-data", line.Event)
	assert.Equal(t, `"hi"`, line.Chunk)
}

func TestToInspectLineMapStart(t *testing.T) {
	size := ev.SizeOf(3)
	line := toInspectLine(ev.MapStartEvent(size))
	assert.Equal(t, "map-start", line.Event)
	assert.Equal(t, uint64(3), *line.Size)
}

func TestPrimitiveToAny(t *testing.T) {
	assert.Nil(t, primitiveToAny(ev.Null()))
	assert.Equal(t, "undefined", primitiveToAny(ev.Undefined()))
	assert.Equal(t, true, primitiveToAny(ev.Bool(true)))
	assert.Equal(t, int64(5), primitiveToAny(ev.Int(5)))
	assert.Equal(t, uint64(5), primitiveToAny(ev.Uint(5)))
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, huge.String(), primitiveToAny(ev.BigInt(huge)))
	assert.Equal(t, 1.5, primitiveToAny(ev.Float(1.5)))
	assert.Equal(t, "s", primitiveToAny(ev.Primitive{Kind: ev.KindString, Str: "s"}))
}
