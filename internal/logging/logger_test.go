package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be a no-op when no level is configured")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
	SetLogger(nil)
}

func TestLogHTTPExchange(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{"success", 200, zapcore.DebugLevel, "HTTP exchange"},
		{"rejected", 503, zapcore.WarnLevel, "HTTP exchange rejected"},
		{"no response", 0, zapcore.WarnLevel, "HTTP request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observe(t)

			LogHTTPExchange("ping", "POST", "http://example.test/stillhere", tt.status, time.Millisecond, "req-1")

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("got %d entries, want 1", len(entries))
			}
			if entries[0].Level != tt.wantLevel {
				t.Errorf("level = %v, want %v", entries[0].Level, tt.wantLevel)
			}
			if entries[0].Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", entries[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestLogHTTPExchange_RedactsQuery(t *testing.T) {
	logs := observe(t)

	LogHTTPExchange("params", "GET", "http://example.test/sensorparams/d3s_X?token=secret", 200, 0, "")

	got := logs.All()[0].ContextMap()["url"]
	if got != "http://example.test/sensorparams/d3s_X?<redacted>" {
		t.Errorf("url = %v, token should not be logged", got)
	}
}

func TestLogOverride(t *testing.T) {
	logs := observe(t)

	LogOverride("remote", "interval", 30)

	entry := logs.All()[0]
	fields := entry.ContextMap()
	if fields["source"] != "remote" || fields["key"] != "interval" {
		t.Errorf("unexpected fields: %v", fields)
	}
}
