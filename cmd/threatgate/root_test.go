package main

import (
	"context"
	"log/slog"
	"testing"
)

func TestServeCommandRegistered(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Use == "serve" {
			found = true
			if cmd.Flags().Lookup("config") == nil {
				t.Error("serve command missing --config flag")
			}
		}
	}
	if !found {
		t.Error("serve command not registered on root")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		logger := newLogger(tt.level)
		if !logger.Enabled(context.Background(), tt.enabled) {
			t.Errorf("newLogger(%q) should enable level %v", tt.level, tt.enabled)
		}
		if logger.Enabled(context.Background(), tt.enabled-1) {
			t.Errorf("newLogger(%q) should not enable level %v", tt.level, tt.enabled-1)
		}
	}
}
