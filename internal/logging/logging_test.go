package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tg_airtime_bot/internal/config"
)

// captureBase installs a null logger as the base logger for one test.
func captureBase(t *testing.T, fields Fields) *test.Hook {
	t.Helper()

	prev := baseLogger
	logger, hook := test.NewNullLogger()
	baseLogger = logrus.NewEntry(logger).WithFields(fields)
	t.Cleanup(func() { baseLogger = prev })
	return hook
}

func TestSetupPerEnvironment(t *testing.T) {
	t.Cleanup(func() { baseLogger = nil })

	cases := []struct {
		env       string
		level     string
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{env: config.EnvProduction, level: "info", wantLevel: logrus.InfoLevel, wantJSON: true},
		{env: config.EnvDevelopment, level: " DEBUG ", wantLevel: logrus.DebugLevel, wantJSON: false},
	}

	for _, tc := range cases {
		t.Run(tc.env, func(t *testing.T) {
			entry, err := Setup(config.Config{AppEnv: tc.env, LogLevel: tc.level})
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			if entry != Logger() {
				t.Fatalf("expected Setup to replace the base logger")
			}
			if entry.Logger.GetLevel() != tc.wantLevel {
				t.Fatalf("expected level %s, got %s", tc.wantLevel, entry.Logger.GetLevel())
			}

			switch f := entry.Logger.Formatter.(type) {
			case *logrus.JSONFormatter:
				if !tc.wantJSON {
					t.Fatalf("expected text formatter")
				}
				if f.FieldMap[logrus.FieldKeyTime] != "ts" {
					t.Fatalf("expected ts time key, got %q", f.FieldMap[logrus.FieldKeyTime])
				}
			case *logrus.TextFormatter:
				if tc.wantJSON {
					t.Fatalf("expected JSON formatter")
				}
			default:
				t.Fatalf("unexpected formatter %T", f)
			}

			if entry.Data["service"] != serviceName || entry.Data["env"] != tc.env {
				t.Fatalf("expected service and env fields, got %v", entry.Data)
			}
		})
	}
}

func TestSetupKeepsPreviousLoggerOnBadLevel(t *testing.T) {
	captureBase(t, Fields{"marker": true})
	before := baseLogger

	if _, err := Setup(config.Config{AppEnv: config.EnvDevelopment, LogLevel: "loud"}); err == nil {
		t.Fatalf("expected error for invalid log level")
	}
	if baseLogger != before {
		t.Fatalf("expected base logger to be untouched")
	}
}

func TestLoggerDefaultsBeforeSetup(t *testing.T) {
	prev := baseLogger
	baseLogger = nil
	t.Cleanup(func() { baseLogger = prev })

	entry := Logger()
	if entry.Data["env"] != config.DefaultAppEnv {
		t.Fatalf("expected default env, got %v", entry.Data["env"])
	}
	if Logger() != entry {
		t.Fatalf("expected the default logger to be cached")
	}
}

func TestPackageHelpersLogAtTheirLevel(t *testing.T) {
	hook := captureBase(t, Fields{"service": serviceName})

	Info("listening", Fields{"event": "startup"})
	Warn("webhook not cleared", nil)
	Error("mongo down", Fields{"error": "timeout"})

	want := []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}
	entries := hook.AllEntries()
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, level := range want {
		if entries[i].Level != level {
			t.Fatalf("entry %d: expected %s, got %s", i, level, entries[i].Level)
		}
		if entries[i].Data["service"] != serviceName {
			t.Fatalf("entry %d: expected base fields, got %v", i, entries[i].Data)
		}
	}
	if entries[0].Data["event"] != "startup" || entries[2].Data["error"] != "timeout" {
		t.Fatalf("expected call-site fields to survive")
	}
}

func TestContextFields(t *testing.T) {
	full := Context{UserID: 42, ChatID: -1001, UpdateID: 7, Event: "ping"}.Fields()
	if len(full) != 4 || full["user_id"] != int64(42) || full["chat_id"] != int64(-1001) || full["update_id"] != int64(7) || full["event"] != "ping" {
		t.Fatalf("unexpected fields %v", full)
	}

	partial := Context{Event: "  verify  "}.Fields()
	if len(partial) != 1 || partial["event"] != "verify" {
		t.Fatalf("expected only a trimmed event, got %v", partial)
	}

	if blank := (Context{Event: "   "}).Fields(); len(blank) != 0 {
		t.Fatalf("expected no fields, got %v", blank)
	}
}

func TestWithContextAndScoped(t *testing.T) {
	hook := captureBase(t, Fields{"service": serviceName})

	WithContext(Context{UserID: 9}).Info("base")
	if last := hook.LastEntry(); last.Data["user_id"] != int64(9) || last.Data["service"] != serviceName {
		t.Fatalf("expected base logger with context, got %v", last.Data)
	}

	injected, injectedHook := test.NewNullLogger()
	entry := logrus.NewEntry(injected).WithField("component", "router")
	Scoped(entry, Context{UserID: 5, ChatID: 6}).Warn("scoped")

	last := injectedHook.LastEntry()
	if last == nil || last.Data["component"] != "router" || last.Data["chat_id"] != int64(6) {
		t.Fatalf("expected injected entry with context, got %v", last)
	}
	if _, ok := last.Data["service"]; ok {
		t.Fatalf("expected injected entry, not base logger")
	}

	Scoped(nil, Context{ChatID: 3}).Info("fallback")
	if hook.LastEntry().Data["chat_id"] != int64(3) {
		t.Fatalf("expected nil entry to fall back to base logger")
	}
}
