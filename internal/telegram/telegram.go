// Package telegram hosts the Telegram client and the update intake paths
// (long polling and webhook).
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_airtime_bot/internal/config"
	"tg_airtime_bot/internal/logging"
)

// API is the subset of *bot.Bot the application uses.
type API interface {
	Start(ctx context.Context)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Sink accepts decoded updates for processing.
type Sink interface {
	Submit(update *models.Update) error
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (API, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and forwards every update to a Sink.
type Client struct {
	api    API
	logger *logrus.Entry

	mu   sync.RWMutex
	sink Sink
}

// NewClient initializes the Telegram bot. Updates received before Route is
// called are logged and discarded.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{logger: logger}

	api, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	c.api = api

	return c, nil
}

// API returns the underlying Bot API client.
func (c *Client) API() API {
	return c.api
}

// Route directs incoming updates to sink.
func (c *Client) Route(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.api.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// RegisterWebhook points Telegram at url. secret, when set, is echoed back
// by Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if strings.TrimSpace(url) == "" {
		return errors.New("webhook url is required")
	}

	if _, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: defaultAllowedUpdates,
	}); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	c.logger.WithFields(logging.Fields{
		"event": "telegram_webhook_set",
		"url":   url,
	}).Info("registered telegram webhook")
	return nil
}

// DeleteWebhook removes any webhook so long polling can receive updates.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	if _, err := c.api.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	logUpdate(c.logger, update)
	c.forward(update)
}

func (c *Client) forward(update *models.Update) error {
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()

	if sink == nil {
		c.logger.WithFields(logging.Fields{
			"event":     "telegram_update_unrouted",
			"update_id": update.ID,
		}).Warn("no sink registered, discarding update")
		return errors.New("no update sink registered")
	}

	if err := sink.Submit(update); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":     "telegram_update_rejected",
			"update_id": update.ID,
		}).WithError(err).Warn("update was not accepted")
		return err
	}

	return nil
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func logUpdate(logger *logrus.Entry, update *models.Update) {
	meta := extractUpdateMeta(update)

	fields := logging.Fields{
		"event":       "telegram_update",
		"update_id":   update.ID,
		"update_type": meta.updateType,
	}

	if meta.text != "" {
		fields["text"] = meta.text
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}

	logger.WithFields(fields).Debug("telegram update received")
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     update.Message.Chat.ID,
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     update.CallbackQuery.From.ID,
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.Chat.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}
