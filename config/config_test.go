// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package config_test

import (
	"flag"
	"log/slog"
	"os"
	"testing"

	"github.com/tensorlane/tensorlane/config"
)

func TestApplyEnvFillsUnsetFlags(t *testing.T) {
	os.Setenv("TENSORLANE_LOG_LEVEL", "debug")
	defer os.Unsetenv("TENSORLANE_LOG_LEVEL")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := &config.Config{}
	config.Bind(fs, c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	config.ApplyEnv(fs, c)

	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", c.LogLevel, "debug")
	}
}

func TestApplyEnvDoesNotOverrideExplicitFlag(t *testing.T) {
	os.Setenv("TENSORLANE_LOG_LEVEL", "debug")
	defer os.Unsetenv("TENSORLANE_LOG_LEVEL")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := &config.Config{}
	config.Bind(fs, c)
	if err := fs.Parse([]string{"-log-level=warn"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	config.ApplyEnv(fs, c)

	if c.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want %q (explicit flag must win)", c.LogLevel, "warn")
	}
}

func TestNewLoggerHandlesUnrecognizedLevel(t *testing.T) {
	c := config.Default()
	c.LogLevel = "not-a-level"
	logger := config.NewLogger(c)

	if !logger.Enabled(nil, slog.LevelInfo) {
		t.Error("NewLogger: an unrecognized LogLevel should fall back to Info, not disable Info")
	}
	if logger.Enabled(nil, slog.LevelDebug) {
		t.Error("NewLogger: an unrecognized LogLevel should not enable Debug")
	}
}

func TestNewLoggerJSONFormat(t *testing.T) {
	c := config.Default()
	c.LogFormat = "json"
	c.LogLevel = "warn"
	logger := config.NewLogger(c)

	if logger.Enabled(nil, slog.LevelInfo) {
		t.Error("NewLogger: LogLevel warn should disable Info")
	}
	if !logger.Enabled(nil, slog.LevelWarn) {
		t.Error("NewLogger: LogLevel warn should enable Warn")
	}
}
