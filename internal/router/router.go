package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_airtime_bot/internal/domain"
	"tg_airtime_bot/internal/feature/admin"
	"tg_airtime_bot/internal/flow"
	"tg_airtime_bot/internal/logging"
	"tg_airtime_bot/internal/metrics"
	"tg_airtime_bot/internal/store"
)

const (
	replyTimeout = 10 * time.Second

	genericFailureText   = "⚠️ Something went wrong. Please try again later."
	statsDeniedText      = "⚠️ You are not authorized to use this command."
	broadcastDeniedText  = "❌ You don't have permission to use this command."
	broadcastUsageText   = "❌ Please provide a message to broadcast."
	broadcastSummaryText = "✅ Broadcast sent to %d users."
)

// FlowEngine is the gated user flow.
type FlowEngine interface {
	Start(ctx context.Context, in flow.Interaction) (flow.State, error)
	Verify(ctx context.Context, in flow.Interaction) (flow.State, error)
	Profile(ctx context.Context, in flow.Interaction) (flow.State, error)
	SelectFeature(ctx context.Context, in flow.Interaction, network domain.Network) (flow.State, error)
}

// AdminService is the privileged command surface.
type AdminService interface {
	Stats(ctx context.Context, callerID int64) (store.Totals, error)
	Broadcast(ctx context.Context, callerID int64, message string) (admin.BroadcastReport, error)
}

type replier interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Router dispatches decoded events and is the error boundary: handler errors
// and panics end up in the log and, where a chat is known, as a generic reply.
type Router struct {
	engine  FlowEngine
	admin   AdminService
	reply   replier
	metrics metrics.Recorder
	logger  *logrus.Entry
}

// New constructs a Router.
func New(engine FlowEngine, adminService AdminService, reply replier, recorder metrics.Recorder, logger *logrus.Entry) *Router {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Router{
		engine:  engine,
		admin:   adminService,
		reply:   reply,
		metrics: recorder,
		logger:  logger,
	}
}

// Handle decodes and dispatches one update.
func (r *Router) Handle(ctx context.Context, update *models.Update) {
	event := Decode(update)
	origin := event.Source()
	r.metrics.IncUpdate(event.Kind())

	log := logging.Scoped(r.logger, logging.Context{
		UserID:   origin.Profile.UserID,
		ChatID:   origin.ChatID,
		UpdateID: origin.UpdateID,
	})

	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(logging.Fields{
				"event": "handler_panic",
				"kind":  event.Kind(),
				"panic": fmt.Sprint(rec),
			}).Error("recovered from handler panic")
			r.fail(ctx, origin)
		}
	}()

	err := r.dispatch(ctx, event)
	if err == nil {
		return
	}

	entry := log.WithFields(logging.Fields{
		"event": "handler_error",
		"kind":  event.Kind(),
	}).WithError(err)

	switch {
	case errors.Is(err, context.Canceled):
		entry.Info("handler cancelled")
	case errors.Is(err, domain.ErrPersistence):
		// The engine already told the user.
		entry.Error("airtime request not persisted")
	default:
		entry.Error("failed to handle update")
		r.fail(ctx, origin)
	}
}

func (r *Router) dispatch(ctx context.Context, event Event) error {
	switch ev := event.(type) {
	case StartCommand:
		_, err := r.engine.Start(ctx, interaction(ev.Origin))
		return err
	case ProfileCommand:
		_, err := r.engine.Profile(ctx, interaction(ev.Origin))
		return err
	case StatsRequested:
		_, err := r.engine.Profile(ctx, interaction(ev.Origin))
		return err
	case VerifyRequested:
		_, err := r.engine.Verify(ctx, interaction(ev.Origin))
		return err
	case FeatureSelected:
		_, err := r.engine.SelectFeature(ctx, interaction(ev.Origin), ev.Network)
		return err
	case StatsCommand:
		return r.stats(ctx, ev)
	case BroadcastCommand:
		return r.broadcast(ctx, ev)
	case Ignored:
		r.logger.WithFields(logging.Fields{
			"event":     "update_ignored",
			"update_id": ev.UpdateID,
			"reason":    ev.Reason,
		}).Debug("ignoring update")
		return nil
	default:
		return fmt.Errorf("unhandled event %T", event)
	}
}

func (r *Router) stats(ctx context.Context, ev StatsCommand) error {
	totals, err := r.admin.Stats(ctx, ev.Profile.UserID)
	if errors.Is(err, domain.ErrAccessDenied) {
		return r.send(ctx, ev.ChatID, statsDeniedText, "")
	}
	if err != nil {
		return err
	}

	text := fmt.Sprintf("📊 *Bot Statistics*\n\n👥 Total Users: %d\n📱 Total Airtime Requests: %d\n\n", totals.Users, totals.Requests)
	return r.send(ctx, ev.ChatID, text, models.ParseModeMarkdownV1)
}

func (r *Router) broadcast(ctx context.Context, ev BroadcastCommand) error {
	report, err := r.admin.Broadcast(ctx, ev.Profile.UserID, ev.Message)
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		return r.send(ctx, ev.ChatID, broadcastDeniedText, "")
	case errors.Is(err, domain.ErrValidation):
		return r.send(ctx, ev.ChatID, broadcastUsageText, "")
	case err != nil:
		return err
	}

	return r.send(ctx, ev.ChatID, fmt.Sprintf(broadcastSummaryText, report.Delivered), "")
}

func (r *Router) send(ctx context.Context, chatID int64, text string, parseMode models.ParseMode) error {
	sendCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	if _, err := r.reply.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
	}); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (r *Router) fail(ctx context.Context, origin Origin) {
	if origin.ChatID == 0 || r.reply == nil {
		return
	}

	if err := r.send(context.WithoutCancel(ctx), origin.ChatID, genericFailureText, ""); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "failure_reply_error",
			"chat_id": origin.ChatID,
		}).WithError(err).Warn("failed to send failure reply")
	}
}

func interaction(o Origin) flow.Interaction {
	return flow.Interaction{
		Profile:    o.Profile,
		ChatID:     o.ChatID,
		CallbackID: o.CallbackID,
		MessageID:  o.MessageID,
	}
}
