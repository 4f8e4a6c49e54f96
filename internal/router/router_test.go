package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_airtime_bot/internal/domain"
	"tg_airtime_bot/internal/feature/admin"
	"tg_airtime_bot/internal/flow"
	"tg_airtime_bot/internal/store"
)

func TestHandleRoutesFlowEvents(t *testing.T) {
	tests := []struct {
		name   string
		update *models.Update
		want   string
	}{
		{"start", messageUpdate(1, "/start"), "start"},
		{"profile", messageUpdate(1, "/profile"), "profile"},
		{"my stats", callbackUpdate(1, 5, "my_stats"), "profile"},
		{"verify", callbackUpdate(1, 5, "verify_membership"), "verify"},
		{"feature", callbackUpdate(1, 5, "airtime_AIRTEL"), "feature:AIRTEL"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			r := New(engine, &fakeAdmin{}, &fakeReplier{}, nil, nullLogger())

			r.Handle(context.Background(), tt.update)

			if calls := engine.recorded(); len(calls) != 1 || calls[0] != tt.want {
				t.Fatalf("expected engine call %q, got %v", tt.want, calls)
			}
		})
	}
}

func TestHandlePassesInteraction(t *testing.T) {
	engine := &fakeEngine{}
	r := New(engine, &fakeAdmin{}, &fakeReplier{}, nil, nullLogger())

	r.Handle(context.Background(), callbackUpdate(555, 12, "verify_membership"))

	in := engine.last
	if in.Profile.UserID != 555 || in.ChatID != 555 || in.MessageID != 12 || in.CallbackID != "cb" {
		t.Fatalf("unexpected interaction %+v", in)
	}
}

func TestHandleIgnoresUnknown(t *testing.T) {
	engine := &fakeEngine{}
	reply := &fakeReplier{}
	r := New(engine, &fakeAdmin{}, reply, nil, nullLogger())

	r.Handle(context.Background(), messageUpdate(1, "just chatting"))

	if len(engine.recorded()) != 0 || len(reply.texts()) != 0 {
		t.Fatalf("expected no action for plain text")
	}
}

func TestHandleSendsGenericFailureOnError(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	engine := &fakeEngine{err: errors.New("mongo down")}
	reply := &fakeReplier{}
	r := New(engine, &fakeAdmin{}, reply, nil, logrus.NewEntry(hookLogger))

	r.Handle(context.Background(), messageUpdate(7, "/start"))

	if texts := reply.texts(); len(texts) != 1 || texts[0] != genericFailureText {
		t.Fatalf("expected generic failure reply, got %v", texts)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "handler_error" || entry.Data["kind"] != "start" {
		t.Fatalf("expected handler_error log, got %v", entry)
	}
}

func TestHandleDoesNotDoubleReportPersistenceFailure(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("record: %w", domain.ErrPersistence)}
	reply := &fakeReplier{}
	r := New(engine, &fakeAdmin{}, reply, nil, nullLogger())

	r.Handle(context.Background(), callbackUpdate(7, 1, "airtime_MTN"))

	if len(reply.texts()) != 0 {
		t.Fatalf("expected no extra reply, got %v", reply.texts())
	}
}

func TestHandleRecoversPanic(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	engine := &fakeEngine{panicWith: "nil map"}
	reply := &fakeReplier{}
	r := New(engine, &fakeAdmin{}, reply, nil, logrus.NewEntry(hookLogger))

	r.Handle(context.Background(), messageUpdate(7, "/start"))

	if texts := reply.texts(); len(texts) != 1 || texts[0] != genericFailureText {
		t.Fatalf("expected generic failure after panic, got %v", texts)
	}
	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "handler_panic" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected handler_panic log")
	}
}

func TestHandleStats(t *testing.T) {
	adm := &fakeAdmin{totals: store.Totals{Users: 3, Requests: 9}}
	reply := &fakeReplier{}
	r := New(&fakeEngine{}, adm, reply, nil, nullLogger())

	r.Handle(context.Background(), messageUpdate(1000, "/stats"))

	sent := reply.sentParams()
	if len(sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(sent))
	}
	if !strings.Contains(sent[0].Text, "Total Users: 3") || !strings.Contains(sent[0].Text, "Total Airtime Requests: 9") {
		t.Fatalf("unexpected stats text %q", sent[0].Text)
	}
	if sent[0].ParseMode != models.ParseModeMarkdownV1 {
		t.Fatalf("expected markdown stats, got %q", sent[0].ParseMode)
	}
}

func TestHandleStatsDenied(t *testing.T) {
	reply := &fakeReplier{}
	r := New(&fakeEngine{}, &fakeAdmin{err: domain.ErrAccessDenied}, reply, nil, nullLogger())

	r.Handle(context.Background(), messageUpdate(2, "/stats"))

	if texts := reply.texts(); len(texts) != 1 || texts[0] != statsDeniedText {
		t.Fatalf("expected not-authorized reply, got %v", texts)
	}
}

func TestHandleBroadcastReplies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"denied", domain.ErrAccessDenied, broadcastDeniedText},
		{"usage", fmt.Errorf("%w: empty", domain.ErrValidation), broadcastUsageText},
		{"delivered", nil, "✅ Broadcast sent to 4 users."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			adm := &fakeAdmin{err: tt.err, report: admin.BroadcastReport{Attempted: 5, Delivered: 4}}
			reply := &fakeReplier{}
			r := New(&fakeEngine{}, adm, reply, nil, nullLogger())

			r.Handle(context.Background(), messageUpdate(1000, "/broadcast hi all"))

			if texts := reply.texts(); len(texts) != 1 || texts[0] != tt.want {
				t.Fatalf("expected %q, got %v", tt.want, texts)
			}
			if adm.message != "hi all" {
				t.Fatalf("expected broadcast text to be forwarded, got %q", adm.message)
			}
		})
	}
}

type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	last      flow.Interaction
	err       error
	panicWith string
}

func (f *fakeEngine) record(call string, in flow.Interaction) (flow.State, error) {
	if f.panicWith != "" {
		panic(f.panicWith)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.last = in
	return flow.StateVerified, f.err
}

func (f *fakeEngine) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Start(ctx context.Context, in flow.Interaction) (flow.State, error) {
	return f.record("start", in)
}

func (f *fakeEngine) Verify(ctx context.Context, in flow.Interaction) (flow.State, error) {
	return f.record("verify", in)
}

func (f *fakeEngine) Profile(ctx context.Context, in flow.Interaction) (flow.State, error) {
	return f.record("profile", in)
}

func (f *fakeEngine) SelectFeature(ctx context.Context, in flow.Interaction, network domain.Network) (flow.State, error) {
	return f.record("feature:"+string(network), in)
}

type fakeAdmin struct {
	totals  store.Totals
	report  admin.BroadcastReport
	err     error
	message string
}

func (f *fakeAdmin) Stats(ctx context.Context, callerID int64) (store.Totals, error) {
	return f.totals, f.err
}

func (f *fakeAdmin) Broadcast(ctx context.Context, callerID int64, message string) (admin.BroadcastReport, error) {
	f.message = message
	return f.report, f.err
}

type fakeReplier struct {
	mu   sync.Mutex
	sent []bot.SendMessageParams
}

func (f *fakeReplier) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *params)
	return &models.Message{ID: len(f.sent)}, nil
}

func (f *fakeReplier) sentParams() []bot.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bot.SendMessageParams(nil), f.sent...)
}

func (f *fakeReplier) texts() []string {
	var out []string
	for _, p := range f.sentParams() {
		out = append(out, p.Text)
	}
	return out
}

func nullLogger() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}
