package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_ShouldLog(t *testing.T) {
	tests := []struct {
		name     string
		minLevel Level
		logLevel Level
		want     bool
	}{
		{"debug logs when min is debug", LevelDebug, LevelDebug, true},
		{"error logs when min is debug", LevelDebug, LevelError, true},
		{"debug does not log when min is info", LevelInfo, LevelDebug, false},
		{"info logs when min is info", LevelInfo, LevelInfo, true},
		{"info does not log when min is error", LevelError, LevelInfo, false},
		{"error logs when min is error", LevelError, LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.minLevel)
			if got := logger.shouldLog(tt.logLevel); got != tt.want {
				t.Errorf("shouldLog() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":  LevelDebug,
		" WARN ": LevelWarn,
		"error":  LevelError,
		"":       LevelInfo,
		"loud":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelInfo, &buf)

	logger.Log(LevelInfo, "install.copy.completed", "Copied", map[string]interface{}{
		"model": "m1",
		"files": 2,
	})

	var event Event
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("Failed to parse log output as JSON: %v\nOutput: %s", err, buf.String())
	}

	if event.Level != LevelInfo {
		t.Errorf("Expected level %s, got %s", LevelInfo, event.Level)
	}
	if event.Type != "install.copy.completed" {
		t.Errorf("Expected type 'install.copy.completed', got %s", event.Type)
	}
	if event.Payload["model"] != "m1" {
		t.Errorf("Expected payload model 'm1', got %v", event.Payload["model"])
	}
	if event.Timestamp == "" {
		t.Error("Expected timestamp to be set")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelWarn, &buf)

	logger.Debug("test.debug", "Debug message", nil)
	logger.Info("test.info", "Info message", nil)
	logger.Warn("test.warn", "Warn message", nil)
	logger.Error("test.error", "Error message", nil)

	out := buf.String()
	if strings.Contains(out, "test.debug") || strings.Contains(out, "test.info") {
		t.Errorf("Expected debug/info to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "test.warn") || !strings.Contains(out, "test.error") {
		t.Errorf("Expected warn and error events, got: %s", out)
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	var logger *Logger
	logger.Info("test.nil", "nothing happens", nil)
}

func TestFileLogger_CreatesDirectoryAndAppends(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "app", "cookia.log")

	first, err := NewFileLogger(LevelInfo, logPath)
	if err != nil {
		t.Fatalf("Failed to create file logger: %v", err)
	}
	first.Info("test.first", "First message", nil)
	if err := first.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	second, err := NewFileLogger(LevelInfo, logPath)
	if err != nil {
		t.Fatalf("Failed to reopen file logger: %v", err)
	}
	second.Info("test.second", "Second message", nil)
	if err := second.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d: %s", len(lines), content)
	}
	if !strings.Contains(lines[0], "test.first") || !strings.Contains(lines[1], "test.second") {
		t.Errorf("Events not appended in order: %s", content)
	}
}
