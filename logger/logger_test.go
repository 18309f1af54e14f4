package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{" WARN ", WarnLevel},
		{"error", ErrorLevel},
		{"info", InfoLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestHelpersWithoutInitDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Debug("debug", String("k", "v"))
		Info("info", Int("n", 1))
		Warn("warn", Bool("b", true))
		Error("error", Float64("f", 1.5), Uint64("u", 2), Duration("d", 0))
		Sync()
	})
}
