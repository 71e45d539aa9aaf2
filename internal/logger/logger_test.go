package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"":        zerolog.InfoLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestZerologAdapterFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.DebugLevel)

	log.Error("Evaluator", errors.New("grid mismatch"), map[string]interface{}{"node": "n3"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Evaluator", entry["component"])
	assert.Equal(t, "grid mismatch", entry["error"])
	assert.Equal(t, "n3", entry["node"])
	assert.Equal(t, "error", entry["level"])
}

func TestZerologAdapterLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.WarnLevel)

	log.Info("Server", "listening", nil)
	assert.Zero(t, buf.Len())

	log.Warning("Server", "slow tile", nil)
	assert.NotZero(t, buf.Len())
}
