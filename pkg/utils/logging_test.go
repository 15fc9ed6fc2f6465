package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"DEBUG", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"WARNING", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"debug", slog.LevelDebug, false},
		{"error", slog.LevelError, false},
		{"TRACE", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.LevelInfo, "json", &buf)

	logger.Info("value migrated", "key", "photo-1")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "value migrated" {
		t.Errorf("Expected msg to be recorded, got %v", entry["msg"])
	}
	if entry["key"] != "photo-1" {
		t.Errorf("Expected key attribute to be recorded, got %v", entry["key"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("Expected level INFO, got %v", entry["level"])
	}
}

func TestNewLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.LevelInfo, "text", &buf)

	logger.Warn("upload failed")

	out := buf.String()
	if !strings.Contains(out, "msg=") {
		t.Errorf("Expected text format output, got %q", out)
	}
	if !strings.Contains(out, "upload failed") {
		t.Errorf("Expected message in output, got %q", out)
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.LevelWarn, "json", &buf)

	logger.Info("should be suppressed")
	if buf.Len() != 0 {
		t.Errorf("Expected info output to be suppressed at WARN level, got %q", buf.String())
	}

	logger.Error("should appear")
	if buf.Len() == 0 {
		t.Error("Expected error output to pass the WARN level")
	}
}

func TestSetupLoggingInvalidLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	_, err := SetupLogging(LogOptions{Level: "LOUD", Format: "json"})
	if err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestSetupLoggingToFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logFile := filepath.Join(t.TempDir(), "logs", "driftcache.log")
	logger, err := SetupLogging(LogOptions{
		Level:      "INFO",
		Format:     "json",
		File:       logFile,
		MaxSizeMB:  10,
		MaxBackups: 1,
	})
	if err != nil {
		t.Fatalf("SetupLogging() error = %v", err)
	}

	logger.Info("stack opened")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Expected log file to exist: %v", err)
	}
	if !strings.Contains(string(data), "stack opened") {
		t.Errorf("Expected log entry in file, got %q", string(data))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := FormatBytes(tt.bytes); got != tt.expected {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.expected)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"2GB", 2147483648, false},
		{"512MB", 536870912, false},
		{"100KB", 102400, false},
		{"1024B", 1024, false},
		{"1gb", 1073741824, false},
		{"256mb", 268435456, false},
		{"  4GB  ", 4294967296, false},
		{"1024", 1024, false},
		{"1.5KB", 1536, false},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}
