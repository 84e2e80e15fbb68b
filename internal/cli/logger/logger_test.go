package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitRespectsDebugFlag(t *testing.T) {
	Init(false)
	assert.Equal(t, zerolog.InfoLevel, Log.GetLevel())

	Init(true)
	assert.Equal(t, zerolog.DebugLevel, Log.GetLevel())
}

func TestWithRunIDTagsOutput(t *testing.T) {
	var buf bytes.Buffer
	Log = zerolog.New(&buf)
	WithRunID("run-123").Info().Msg("hello")
	assert.Contains(t, buf.String(), `"run_id":"run-123"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}
