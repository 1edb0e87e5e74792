// Package logging builds the bot's logrus logger. Every entry carries the
// service and env fields; router entries add the chat, command and update id
// through Context.
package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_group_admin_bot/internal/config"
)

const serviceName = "group-admin-bot"

// Fields is logrus.Fields under a shorter name.
type Fields = logrus.Fields

var fieldNames = logrus.FieldMap{
	logrus.FieldKeyTime:  "ts",
	logrus.FieldKeyMsg:   "msg",
	logrus.FieldKeyLevel: "level",
}

var base *logrus.Entry

// Context is the set of per-update fields. Zero values are left out.
type Context struct {
	UserID   int64
	ChatID   int64
	Event    string
	Command  string
	UpdateID string
}

// Setup installs the logger for cfg: JSON in production, text in development.
// An invalid LOG_LEVEL leaves the previous logger in place.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	base = build(cfg.AppEnv, level)
	return base, nil
}

// Logger returns the installed logger. Before Setup it falls back to a
// production logger at info level so startup errors are still structured.
func Logger() *logrus.Entry {
	if base == nil {
		base = build(config.DefaultAppEnv, logrus.InfoLevel)
	}
	return base
}

// Apply adds the non-zero fields of c to entry, or to the base logger when
// entry is nil.
func (c Context) Apply(entry *logrus.Entry) *logrus.Entry {
	if entry == nil {
		entry = Logger()
	}

	fields := Fields{}
	if c.UserID != 0 {
		fields["user_id"] = c.UserID
	}
	if c.ChatID != 0 {
		fields["chat_id"] = c.ChatID
	}
	if event := strings.TrimSpace(c.Event); event != "" {
		fields["event"] = event
	}
	if c.Command != "" {
		fields["command"] = c.Command
	}
	if c.UpdateID != "" {
		fields["update_id"] = c.UpdateID
	}

	if len(fields) == 0 {
		return entry
	}
	return entry.WithFields(fields)
}

// Info logs through the base logger. The entrypoint uses it around Setup.
func Info(msg string, fields Fields) {
	Logger().WithFields(fields).Info(msg)
}

// Error logs through the base logger.
func Error(msg string, fields Fields) {
	Logger().WithFields(fields).Error(msg)
}

func build(appEnv string, level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatter(appEnv))

	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     appEnv,
	})
}

func formatter(appEnv string) logrus.Formatter {
	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldNames,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldNames,
	}
}
