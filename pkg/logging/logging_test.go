package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.SlogLevel(); got != tt.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, want %v", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("DEBUG"); err != nil || l != LevelDebug {
		t.Fatalf("ParseLevel(DEBUG) = %v, %v", l, err)
	}
	if l, err := ParseLevel(""); err != nil || l != LevelInfo {
		t.Fatalf("ParseLevel(\"\") = %v, %v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestInitForCLI_FiltersAndTagsSubsystem(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)
	t.Cleanup(func() { InitForCLI(LevelError, &bytes.Buffer{}) })

	Debug("Runner", "hidden %d", 1)
	Info("Runner", "step %d ok", 2)
	Error("HTTP", errors.New("boom"), "call failed")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry leaked at info level: %s", out)
	}
	if !strings.Contains(out, "step 2 ok") || !strings.Contains(out, "subsystem=Runner") {
		t.Fatalf("info entry missing: %s", out)
	}
	if !strings.Contains(out, "error=boom") {
		t.Fatalf("error attribute missing: %s", out)
	}
}
