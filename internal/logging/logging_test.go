package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tg_group_admin_bot/internal/config"
)

func withBase(t *testing.T, entry *logrus.Entry) {
	t.Helper()

	prev := base
	base = entry
	t.Cleanup(func() { base = prev })
}

func TestSetupPicksFormatterByEnv(t *testing.T) {
	withBase(t, nil)

	prod, err := Setup(config.Config{AppEnv: config.EnvProduction, LogLevel: "info"})
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	jsonFormatter, ok := prod.Logger.Formatter.(*logrus.JSONFormatter)
	if !ok {
		t.Fatalf("expected JSON formatter in production, got %T", prod.Logger.Formatter)
	}
	if jsonFormatter.FieldMap[logrus.FieldKeyTime] != "ts" {
		t.Fatalf("expected ts as the time key, got %q", jsonFormatter.FieldMap[logrus.FieldKeyTime])
	}
	if prod.Data["service"] != serviceName || prod.Data["env"] != config.EnvProduction {
		t.Fatalf("expected service and env fields, got %v", prod.Data)
	}

	dev, err := Setup(config.Config{AppEnv: config.EnvDevelopment, LogLevel: " DEBUG "})
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	if _, ok := dev.Logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter in development, got %T", dev.Logger.Formatter)
	}
	if dev.Logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", dev.Logger.GetLevel())
	}
	if Logger() != dev {
		t.Fatalf("expected Logger to return the last installed logger")
	}
}

func TestSetupRejectsInvalidLevelAndKeepsLogger(t *testing.T) {
	withBase(t, nil)

	installed, err := Setup(config.Config{AppEnv: config.EnvProduction, LogLevel: "warn"})
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}

	if _, err := Setup(config.Config{AppEnv: config.EnvDevelopment, LogLevel: "loud"}); err == nil {
		t.Fatalf("expected error for invalid log level")
	}
	if Logger() != installed {
		t.Fatalf("expected the previous logger to stay installed")
	}
}

func TestLoggerFallsBackBeforeSetup(t *testing.T) {
	withBase(t, nil)

	entry := Logger()
	if entry.Logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level fallback, got %s", entry.Logger.GetLevel())
	}
	if entry.Data["env"] != config.DefaultAppEnv {
		t.Fatalf("expected default env %q, got %v", config.DefaultAppEnv, entry.Data["env"])
	}
}

func TestInfoAndErrorUseBaseLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	withBase(t, logger.WithField("service", serviceName))

	Info("configuration check", Fields{"event": "config_only"})
	Error("configuration error", nil)

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != logrus.InfoLevel || entries[0].Data["event"] != "config_only" {
		t.Fatalf("unexpected info entry: level=%s data=%v", entries[0].Level, entries[0].Data)
	}
	if entries[1].Level != logrus.ErrorLevel || entries[1].Data["service"] != serviceName {
		t.Fatalf("unexpected error entry: level=%s data=%v", entries[1].Level, entries[1].Data)
	}
}

func TestContextApply(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := logger.WithField("component", "router")

	Context{ChatID: -100555, Event: " command_denied ", Command: "mute", UpdateID: "abc-123"}.Apply(entry).Warn("denied")

	last := hook.LastEntry()
	if last == nil {
		t.Fatalf("expected a log entry")
	}
	want := map[string]interface{}{
		"chat_id":   int64(-100555),
		"event":     "command_denied",
		"command":   "mute",
		"update_id": "abc-123",
		"component": "router",
	}
	for key, value := range want {
		if last.Data[key] != value {
			t.Fatalf("expected %s=%v, got %v", key, value, last.Data[key])
		}
	}
	if _, ok := last.Data["user_id"]; ok {
		t.Fatalf("expected zero user id to be omitted, got %v", last.Data)
	}

	if got := (Context{}).Apply(entry); got != entry {
		t.Fatalf("expected an empty context to return the entry unchanged")
	}
}

func TestContextApplyDefaultsToBaseLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	withBase(t, logger.WithField("service", serviceName))

	Context{UserID: 42}.Apply(nil).Info("hello")

	last := hook.LastEntry()
	if last == nil || last.Data["user_id"] != int64(42) || last.Data["service"] != serviceName {
		t.Fatalf("expected base logger fields with user id, got %+v", last)
	}
}
