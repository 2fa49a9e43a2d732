package logger

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/evairo/aqmon/backend/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{name: "debug level", level: "debug", want: zerolog.DebugLevel},
		{name: "info level", level: "info", want: zerolog.InfoLevel},
		{name: "warn level", level: "warn", want: zerolog.WarnLevel},
		{name: "warning alias", level: "warning", want: zerolog.WarnLevel},
		{name: "error level", level: "error", want: zerolog.ErrorLevel},
		{name: "unknown falls back to info", level: "whatever", want: zerolog.InfoLevel},
		{name: "case insensitive", level: "DEBUG", want: zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLogLevel(tt.level); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "debug",
		LogFormat: "json",
	}

	log := New(cfg)
	if log == nil {
		t.Fatal("Expected logger to be created")
	}

	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("Expected global level debug, got %v", zerolog.GlobalLevel())
	}
}

func TestWithField(t *testing.T) {
	log := NewNop()

	child := log.WithField("module", "test")
	if child == nil {
		t.Fatal("Expected child logger")
	}

	// Chaining must not panic and must return usable loggers.
	child.WithFields(map[string]interface{}{"a": 1, "b": "two"}).Debug("chained")
}
