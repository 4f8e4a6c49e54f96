// Package logging builds the process-wide logrus logger. Entries carry a
// service and env field; call sites add an "event" field naming what
// happened.
package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_airtime_bot/internal/config"
)

const serviceName = "airtime-bot"

var baseLogger *logrus.Entry

// Fields aliases logrus.Fields so callers need not import logrus.
type Fields = logrus.Fields

// Context is the per-update identity attached to log entries.
type Context struct {
	UserID   int64
	ChatID   int64
	UpdateID int64
	Event    string
}

// Fields drops zero values and blank events.
func (c Context) Fields() Fields {
	out := make(Fields, 4)
	for key, id := range map[string]int64{
		"user_id":   c.UserID,
		"chat_id":   c.ChatID,
		"update_id": c.UpdateID,
	} {
		if id != 0 {
			out[key] = id
		}
	}
	if event := strings.TrimSpace(c.Event); event != "" {
		out["event"] = event
	}
	return out
}

// Setup replaces the base logger using cfg. On error the previous logger,
// if any, stays in place.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	baseLogger = build(cfg.AppEnv, level)
	return baseLogger, nil
}

// Logger returns the base logger, building a default one before Setup runs.
func Logger() *logrus.Entry {
	if baseLogger == nil {
		baseLogger = build(config.DefaultAppEnv, logrus.InfoLevel)
	}
	return baseLogger
}

// WithContext is Logger plus ctx.
func WithContext(ctx Context) *logrus.Entry {
	return with(ctx.Fields())
}

// Scoped adds ctx to an injected entry; a nil entry means the base logger.
func Scoped(entry *logrus.Entry, ctx Context) *logrus.Entry {
	if entry == nil {
		return WithContext(ctx)
	}
	return entry.WithFields(ctx.Fields())
}

func Info(msg string, fields Fields)  { with(fields).Info(msg) }
func Warn(msg string, fields Fields)  { with(fields).Warn(msg) }
func Error(msg string, fields Fields) { with(fields).Error(msg) }

func with(fields Fields) *logrus.Entry {
	if len(fields) == 0 {
		return Logger()
	}
	return Logger().WithFields(fields)
}

func build(appEnv string, level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterFor(appEnv))

	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     appEnv,
	})
}

// formatterFor renders text for local development and JSON elsewhere, with
// the timestamp under "ts".
func formatterFor(appEnv string) logrus.Formatter {
	keys := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			DisableLevelTruncation: true,
			FieldMap:               keys,
		}
	}
	return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano, FieldMap: keys}
}
