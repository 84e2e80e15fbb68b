package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/internal/cli/config"
)

func TestConvertOnceJSONToCBORToJSON(t *testing.T) {
	cfg := config.DefaultConfig()
	input := []byte(`{"a":[1,2.5,true,null,"s"],"b":{}}`)

	var cbor bytes.Buffer
	n, err := convertOnce(input, "json", "cbor", &cbor, &cfg)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.NotEmpty(t, cbor.Bytes())

	var roundTripped bytes.Buffer
	_, err = convertOnce(cbor.Bytes(), "cbor", "json", &roundTripped, &cfg)
	require.NoError(t, err)
	assert.JSONEq(t, string(input), roundTripped.String())
}

func TestConvertOnceJSONToMsgpackToJSON(t *testing.T) {
	cfg := config.DefaultConfig()
	input := []byte(`{"x":12345,"y":[1,2,3]}`)

	var packed bytes.Buffer
	_, err := convertOnce(input, "json", "msgpack", &packed, &cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = convertOnce(packed.Bytes(), "msgpack", "json", &out, &cfg)
	require.NoError(t, err)
	assert.JSONEq(t, string(input), out.String())
}

func TestConvertOnceUnknownFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	var out bytes.Buffer
	_, err := convertOnce([]byte(`{}`), "yaml", "json", &out, &cfg)
	assert.Error(t, err)
}

func TestCborDiagFlagSetAndString(t *testing.T) {
	var f cborDiagFlag
	require.NoError(t, f.Set("base64-std-pad"))
	assert.Equal(t, ev.DiagBase64StdPad, f.mode)
	assert.Equal(t, "base64-std-pad", f.String())

	err := f.Set("not-a-mode")
	assert.Error(t, err)
}
