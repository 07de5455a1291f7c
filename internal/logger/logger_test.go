package logger

import (
	"testing"

	"chained-datasource/config"
)

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(nil); err == nil {
		t.Error("expected error for nil config")
	}

	log, err := NewLogger(&config.LogConfig{Level: "debug", Encoding: "json", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("NewLogger() unexpected error: %v", err)
	}
	if !log.Core().Enabled(parseLevel("debug")) {
		t.Error("debug level should be enabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"", "info"},
		{"verbose", "info"},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestArgsToFields(t *testing.T) {
	fields := argsToFields("clientId", "abc", 42, "skipped", "scope")
	if len(fields) != 1 {
		t.Fatalf("len(fields) = %d, want 1", len(fields))
	}
	if fields[0].Key != "clientId" {
		t.Errorf("fields[0].Key = %s, want clientId", fields[0].Key)
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	// Should not panic
	log.Info("message", "key", "value")
	log.With("component", "test").Debug("child")
}
