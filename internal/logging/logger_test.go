package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerWithFields(t *testing.T) {
	SetLevel("info")
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "Test").With("jobId", "abc")

	l.Info("region scored", "label", "full", "score", 120)

	out := buf.String()
	for _, want := range []string{"[Test]", "[INFO] region scored", "jobId=abc", "label=full", "score=120"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLoggerLevelThreshold(t *testing.T) {
	defer SetLevel("info")
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "Test")

	SetLevel("warn")
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("entries below threshold were written: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn entry missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
