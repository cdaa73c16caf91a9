package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerFiltersBelowMinLevel(t *testing.T) {
	out := &bytes.Buffer{}
	logger := NewLogger(out, LevelWarning)

	logger.Info("quiet", nil)
	logger.Warn("loud", nil)

	text := out.String()
	if strings.Contains(text, "quiet") {
		t.Fatalf("info entry should have been filtered, got %q", text)
	}
	if !strings.Contains(text, "loud") {
		t.Fatalf("warning entry missing, got %q", text)
	}
}

func TestLoggerFormatsSortedFields(t *testing.T) {
	out := &bytes.Buffer{}
	logger := NewLogger(out, LevelDebug)

	logger.Info("session started", map[string]string{
		"pid":     "42",
		"session": "alpha",
	})

	text := out.String()
	if !strings.Contains(text, `level=info msg="session started" pid="42" session="alpha"`) {
		t.Fatalf("unexpected format: %q", text)
	}
}

func TestLoggerWithMergesBaseContext(t *testing.T) {
	out := &bytes.Buffer{}
	logger := NewLogger(out, LevelDebug).With(map[string]string{"session": "beta"})

	logger.Error("send failed", map[string]string{"error": "closed"})

	text := out.String()
	if !strings.Contains(text, `session="beta"`) || !strings.Contains(text, `error="closed"`) {
		t.Fatalf("expected merged fields, got %q", text)
	}
}

func TestLoggerBuffersEntries(t *testing.T) {
	logger := NewLogger(nil, LevelInfo)

	logger.Info("first", nil)
	logger.Info("second", nil)

	entries := logger.Buffer().List()
	if len(entries) != 2 || entries[0].Message != "first" || entries[1].Message != "second" {
		t.Fatalf("unexpected buffered entries: %+v", entries)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warn", LevelWarning, true},
		{" warning ", LevelWarning, true},
		{"error", LevelError, true},
		{"verbose", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLevel(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}
