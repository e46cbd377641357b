package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetup_WritesToFile(t *testing.T) {
	previous := log.Logger
	previousLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	})

	path := filepath.Join(t.TempDir(), "churn.log")
	closer := Setup(Options{Level: "info", File: path})

	log.Info().Str("component", "test").Msg("written to file")
	log.Debug().Msg("filtered out")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.Contains(content, "written to file"))
	assert.True(t, strings.Contains(content, `"component":"test"`))
	assert.False(t, strings.Contains(content, "filtered out"))
}

func TestSetup_WithoutFile(t *testing.T) {
	previous := log.Logger
	t.Cleanup(func() { log.Logger = previous })

	closer := Setup(Options{Level: "warn", Console: true})
	assert.NoError(t, closer.Close())
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
