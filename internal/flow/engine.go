// Package flow implements the membership-gated interaction flow: verification
// prompt, feature menu, the animated airtime request and the profile view.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_airtime_bot/internal/config"
	"tg_airtime_bot/internal/domain"
	"tg_airtime_bot/internal/logging"
	"tg_airtime_bot/internal/metrics"
)

const (
	sendTimeout    = 10 * time.Second
	persistTimeout = 10 * time.Second
)

// Messenger is the subset of the Bot API the flow talks to.
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// MembershipChecker answers whether a user satisfies every join requirement.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID int64) bool
	Channels() []config.Channel
}

// UserRegistrar upserts the user observed on an interaction.
type UserRegistrar interface {
	EnsureUser(ctx context.Context, profile domain.Profile) (bool, error)
}

// UserReader loads a stored user.
type UserReader interface {
	GetByID(ctx context.Context, userID int64) (domain.User, error)
}

// Ledger persists and counts airtime requests.
type Ledger interface {
	RecordAirtime(ctx context.Context, userID int64, network domain.Network, amount int64) (domain.AirtimeRequest, error)
	CountRequests(ctx context.Context, userID int64) (int64, error)
}

// Interaction identifies who acted and where to reply.
type Interaction struct {
	Profile domain.Profile
	ChatID  int64

	// Set for button presses only.
	CallbackID string
	MessageID  int
}

// Deps groups the collaborators of an Engine.
type Deps struct {
	Messenger  Messenger
	Membership MembershipChecker
	Registrar  UserRegistrar
	Users      UserReader
	Ledger     Ledger
	Amounts    AmountPolicy
	Animation  Animation
	Metrics    metrics.Recorder
	Logger     *logrus.Entry
}

// Engine enforces "verify membership before serving features".
type Engine struct {
	messenger  Messenger
	membership MembershipChecker
	registrar  UserRegistrar
	users      UserReader
	ledger     Ledger
	amounts    AmountPolicy
	animation  Animation
	sessions   *Sessions
	metrics    metrics.Recorder
	logger     *logrus.Entry
	now        func() time.Time
}

// NewEngine validates deps and constructs an Engine.
func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.Messenger == nil:
		return nil, errors.New("messenger is required")
	case deps.Membership == nil:
		return nil, errors.New("membership checker is required")
	case deps.Registrar == nil:
		return nil, errors.New("user registrar is required")
	case deps.Users == nil:
		return nil, errors.New("user reader is required")
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	case deps.Amounts.Step <= 0:
		return nil, errors.New("amount policy is required")
	}

	if len(deps.Animation.Frames) == 0 {
		deps.Animation.Frames = DefaultFrames()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Logger()
	}

	return &Engine{
		messenger:  deps.Messenger,
		membership: deps.Membership,
		registrar:  deps.Registrar,
		users:      deps.Users,
		ledger:     deps.Ledger,
		amounts:    deps.Amounts,
		animation:  deps.Animation,
		sessions:   NewSessions(),
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
	}, nil
}

// Sessions exposes the in-memory session table.
func (e *Engine) Sessions() *Sessions {
	return e.sessions
}

// Start handles the entry command: prompt when not a member, menu otherwise.
func (e *Engine) Start(ctx context.Context, in Interaction) (State, error) {
	e.ack(ctx, in)

	ok, err := e.gate(ctx, in)
	if err != nil || !ok {
		return e.sessions.Get(in.Profile.UserID), err
	}

	if err := e.sendMenu(ctx, in.ChatID); err != nil {
		return e.sessions.Get(in.Profile.UserID), err
	}

	return e.sessions.set(in.Profile.UserID, StateVerified), nil
}

// Verify re-checks membership after the user pressed the verify button.
// Failure answers with an alert and writes nothing, so repeated presses
// leave the prompt and the stored user untouched. The user is upserted only
// once verification passes.
func (e *Engine) Verify(ctx context.Context, in Interaction) (State, error) {
	if !e.membership.IsMember(ctx, in.Profile.UserID) {
		e.answer(ctx, in, notJoinedAlert, true)
		e.log(in, "verify_denied").Info("verification failed, user has not joined")
		return e.sessions.set(in.Profile.UserID, StateUnverified), nil
	}

	if _, err := e.registrar.EnsureUser(ctx, in.Profile); err != nil {
		e.answer(ctx, in, "", false)
		return e.sessions.Get(in.Profile.UserID), fmt.Errorf("upsert user: %w", err)
	}

	e.answer(ctx, in, "", false)
	e.edit(ctx, in.ChatID, in.MessageID, verifiedText, nil)
	e.log(in, "verify_passed").Info("user verified channel membership")

	state := e.sessions.set(in.Profile.UserID, StateVerified)
	return state, e.sendMenu(ctx, in.ChatID)
}

// Profile renders the user's stored details and request count.
func (e *Engine) Profile(ctx context.Context, in Interaction) (State, error) {
	e.ack(ctx, in)

	ok, err := e.gate(ctx, in)
	if err != nil || !ok {
		return e.sessions.Get(in.Profile.UserID), err
	}
	e.sessions.set(in.Profile.UserID, StateVerified)

	user, err := e.users.GetByID(ctx, in.Profile.UserID)
	if err != nil {
		return StateVerified, fmt.Errorf("load profile: %w", err)
	}

	count, err := e.ledger.CountRequests(ctx, in.Profile.UserID)
	if err != nil {
		return StateVerified, fmt.Errorf("count requests: %w", err)
	}

	if _, err := e.send(ctx, &bot.SendMessageParams{
		ChatID: in.ChatID,
		Text:   profileText(user, count),
	}); err != nil {
		return StateVerified, err
	}

	return StateVerified, nil
}

// SelectFeature runs the airtime flow for network: progress animation, then
// one request and one transaction, then the result summary. Nothing is
// persisted when ctx is cancelled before the animation finishes.
func (e *Engine) SelectFeature(ctx context.Context, in Interaction, network domain.Network) (State, error) {
	e.ack(ctx, in)

	ok, err := e.gate(ctx, in)
	if err != nil || !ok {
		return e.sessions.Get(in.Profile.UserID), err
	}

	userID := in.Profile.UserID
	started := e.now()
	e.sessions.set(userID, StateProcessing)

	var progress *models.Message
	err = e.animation.Run(ctx, func(ctx context.Context, step int, frame Frame) error {
		if step == 0 {
			msg, sendErr := e.send(ctx, &bot.SendMessageParams{ChatID: in.ChatID, Text: frame.Text})
			if sendErr != nil {
				return sendErr
			}
			progress = msg
			return nil
		}
		e.edit(ctx, in.ChatID, progress.ID, frame.Text, nil)
		return nil
	})
	if err != nil {
		e.sessions.set(userID, StateVerified)
		if progress != nil {
			e.remove(context.WithoutCancel(ctx), in.ChatID, progress.ID)
		}
		if ctx.Err() != nil {
			e.metrics.IncFlow(metrics.FlowAborted)
			e.log(in, "airtime_aborted").WithError(err).Warn("airtime flow aborted before completion")
			return StateVerified, fmt.Errorf("airtime flow aborted: %w", err)
		}
		e.metrics.IncFlow(metrics.FlowFailed)
		return StateVerified, fmt.Errorf("start progress: %w", err)
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	amount := e.amounts.Draw()
	req, err := e.ledger.RecordAirtime(persistCtx, userID, network, amount)
	e.remove(persistCtx, in.ChatID, progress.ID)
	if err != nil {
		e.metrics.IncFlow(metrics.FlowFailed)
		e.sessions.set(userID, StateVerified)
		if _, sendErr := e.send(persistCtx, &bot.SendMessageParams{ChatID: in.ChatID, Text: requestFailedText}); sendErr != nil {
			e.log(in, "airtime_failure_notice_error").WithError(sendErr).Warn("failed to send failure notice")
		}
		return StateVerified, fmt.Errorf("record airtime request: %w", err)
	}

	if _, err := e.send(persistCtx, &bot.SendMessageParams{
		ChatID:      in.ChatID,
		Text:        resultText(req),
		ReplyMarkup: resultKeyboard(network),
	}); err != nil {
		// The request is stored; the summary is lost but the flow is complete.
		e.log(in, "airtime_result_error").WithError(err).Warn("failed to send airtime result")
	}

	e.metrics.IncFlow(metrics.FlowCompleted)
	e.metrics.ObserveFlowDuration(e.now().Sub(started))
	e.log(in, "airtime_requested").WithFields(logging.Fields{
		"network":   network,
		"amount":    req.Amount,
		"reference": req.Reference,
	}).Info("recorded airtime request")

	return e.sessions.set(userID, StateComplete), nil
}

// gate upserts the user and checks membership. When the user is not a member
// the verification prompt is sent and ok is false.
func (e *Engine) gate(ctx context.Context, in Interaction) (bool, error) {
	if _, err := e.registrar.EnsureUser(ctx, in.Profile); err != nil {
		return false, fmt.Errorf("upsert user: %w", err)
	}

	if e.membership.IsMember(ctx, in.Profile.UserID) {
		return true, nil
	}

	e.sessions.set(in.Profile.UserID, StateUnverified)
	if _, err := e.send(ctx, &bot.SendMessageParams{
		ChatID:      in.ChatID,
		Text:        joinPromptText,
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: joinPromptKeyboard(e.membership.Channels()),
	}); err != nil {
		return false, err
	}

	e.log(in, "verification_prompt").Debug("sent verification prompt")
	return false, nil
}

func (e *Engine) sendMenu(ctx context.Context, chatID int64) error {
	_, err := e.send(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        menuText,
		ReplyMarkup: menuKeyboard(),
	})
	return err
}

func (e *Engine) send(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg, err := e.messenger.SendMessage(sendCtx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: send message: %w", domain.ErrLookupFailed, err)
	}
	if msg == nil {
		msg = &models.Message{}
	}
	return msg, nil
}

// edit is display-only; failures are logged and swallowed.
func (e *Engine) edit(ctx context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) {
	if messageID == 0 {
		return
	}

	editCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := e.messenger.EditMessageText(editCtx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: markup,
	}); err != nil {
		e.logger.WithFields(logging.Fields{
			"event":      "edit_message_error",
			"chat_id":    chatID,
			"message_id": messageID,
		}).WithError(err).Warn("failed to edit message")
	}
}

func (e *Engine) remove(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := e.messenger.DeleteMessage(deleteCtx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	}); err != nil {
		e.logger.WithFields(logging.Fields{
			"event":      "delete_message_error",
			"chat_id":    chatID,
			"message_id": messageID,
		}).WithError(err).Warn("failed to delete message")
	}
}

// ack stops the button spinner for callback interactions.
func (e *Engine) ack(ctx context.Context, in Interaction) {
	e.answer(ctx, in, "", false)
}

func (e *Engine) answer(ctx context.Context, in Interaction, text string, alert bool) {
	if in.CallbackID == "" {
		return
	}

	answerCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := e.messenger.AnswerCallbackQuery(answerCtx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: in.CallbackID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		e.log(in, "answer_callback_error").WithError(err).Warn("failed to answer callback query")
	}
}

func (e *Engine) log(in Interaction, event string) *logrus.Entry {
	return logging.Scoped(e.logger, logging.Context{
		UserID: in.Profile.UserID,
		ChatID: in.ChatID,
		Event:  event,
	})
}
