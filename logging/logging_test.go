package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	for _, tt := range []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	} {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailtrust.log")
	logger, err := New(Config{Level: "warn", Format: FormatJSON, Outputs: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", zap.String("session_id", "s1"))
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var line map[string]any
	if err := json.Unmarshal(data, &line); err != nil {
		t.Fatalf("output is not one JSON line: %v\n%s", err, data)
	}
	if line["msg"] != "kept" || line["session_id"] != "s1" {
		t.Errorf("logged %v", line)
	}

	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("unknown format accepted")
	}
	if _, err := New(Config{Format: FormatConsole, Level: "debug"}); err != nil {
		t.Errorf("console logger: %v", err)
	}
}
