package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() { log.Logger = zerolog.Nop() })

	var buf bytes.Buffer
	if err := setupLogger("warn", "json", &buf); err != nil {
		t.Fatalf("setupLogger() error = %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Str("topic", "shell").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info to be filtered, got %s", out)
	}
	if !strings.Contains(out, `"topic":"shell"`) {
		t.Fatalf("expected structured warn line, got %s", out)
	}
}

func TestSetupLoggerRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	if err := setupLogger("loud", "json", &buf); err == nil {
		t.Fatal("expected bad level to fail")
	}
	if err := setupLogger("info", "xml", &buf); err == nil {
		t.Fatal("expected bad format to fail")
	}
}

func TestLogSettingsComeFromFlagsAndEnv(t *testing.T) {
	t.Cleanup(func() { log.Logger = zerolog.Nop() })
	t.Setenv("DEEPDIVE_LOG_LEVEL", "warn")
	t.Setenv("DEEPDIVE_LOG_FORMAT", "console")

	f := &flags{}
	cmd := newRootCmd(f)
	var out bytes.Buffer
	cmd.Writer = &out

	if err := cmd.Run(context.Background(), []string{"deepdive-api", "hash-password", "secret-pass"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.LogLevel != "warn" || f.LogFormat != "console" {
		t.Fatalf("expected env to reach the log flags, got level=%q format=%q", f.LogLevel, f.LogFormat)
	}
	if !strings.HasPrefix(out.String(), "$2a$") {
		t.Fatalf("expected a bcrypt hash, got %q", out.String())
	}
	if log.Logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level logger, got %s", log.Logger.GetLevel())
	}
}
