package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSetupWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: LevelDebug, Output: &buf})

	logger.Info().Str("tier", "static-v1").Msg("tier ready")

	out := buf.String()
	if !strings.Contains(out, `"tier":"static-v1"`) {
		t.Errorf("expected structured tier field in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"tier ready"`) {
		t.Errorf("expected message field in output, got %q", out)
	}
}

func TestNewLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: LevelDebug, Output: &buf})

	logger := NewLogger("lifecycle")
	logger.Info().Msg("activated")

	if !strings.Contains(buf.String(), `"component":"lifecycle"`) {
		t.Errorf("expected component field, got %q", buf.String())
	}
}
