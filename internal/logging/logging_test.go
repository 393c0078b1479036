package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/freight-session/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"chatty":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		require.Equal(t, want, logging.ParseLevel(in), in)
	}
}

func TestNewWritesJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "PROD", "info")
	logger.Debug().Msg("hidden")
	logger.Info().Str("user", "alice").Msg("logged in")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "logged in", line["message"])
	require.Equal(t, "alice", line["user"])
}

func TestNewUsesConsoleWriterInDev(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "DEV", "debug")
	logger.Debug().Msg("refreshing")
	require.Contains(t, buf.String(), "refreshing")
	require.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
