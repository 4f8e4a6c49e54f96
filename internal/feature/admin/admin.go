// Package admin implements the privileged operations reserved for the single
// configured administrator: totals and broadcast.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tg_airtime_bot/internal/domain"
	"tg_airtime_bot/internal/logging"
	"tg_airtime_bot/internal/metrics"
	"tg_airtime_bot/internal/store"
)

const (
	defaultConcurrency = 8
	defaultSendTimeout = 10 * time.Second
)

type totalsReader interface {
	Totals(ctx context.Context) (store.Totals, error)
}

type userLister interface {
	ListIDs(ctx context.Context) ([]int64, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// BroadcastReport summarizes a fan-out. Delivered <= Attempted.
type BroadcastReport struct {
	Attempted int
	Delivered int
}

// Failed returns the number of recipients that did not receive the message.
func (r BroadcastReport) Failed() int {
	return r.Attempted - r.Delivered
}

// Service guards admin operations behind the configured admin id.
type Service struct {
	adminID     int64
	totals      totalsReader
	users       userLister
	sender      messageSender
	concurrency int
	sendTimeout time.Duration
	metrics     metrics.Recorder
	logger      *logrus.Entry
}

// Option customizes a Service.
type Option func(*Service)

// WithConcurrency caps in-flight broadcast sends.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSendTimeout bounds each broadcast send.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithMetrics records one delivery event per recipient.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// NewService constructs a Service.
func NewService(adminID int64, totals totalsReader, users userLister, sender messageSender, logger *logrus.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Logger()
	}

	s := &Service{
		adminID:     adminID,
		totals:      totals,
		users:       users,
		sender:      sender,
		concurrency: defaultConcurrency,
		sendTimeout: defaultSendTimeout,
		metrics:     metrics.NewNoop(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsAdmin reports whether callerID is the configured admin.
func (s *Service) IsAdmin(callerID int64) bool {
	return s != nil && s.adminID != 0 && callerID == s.adminID
}

// Stats returns user and request totals. Non-admin callers get
// domain.ErrAccessDenied and no reads are performed.
func (s *Service) Stats(ctx context.Context, callerID int64) (store.Totals, error) {
	if s == nil || s.totals == nil {
		return store.Totals{}, errors.New("admin service is not initialized")
	}
	if ctx == nil {
		return store.Totals{}, errors.New("context is required")
	}
	if !s.IsAdmin(callerID) {
		s.denied(callerID, "stats")
		return store.Totals{}, domain.ErrAccessDenied
	}

	totals, err := s.totals.Totals(ctx)
	if err != nil {
		return store.Totals{}, fmt.Errorf("load totals: %w", err)
	}

	return totals, nil
}

// Broadcast sends message to every known user. Individual failures are
// logged and counted; they never abort the fan-out.
func (s *Service) Broadcast(ctx context.Context, callerID int64, message string) (BroadcastReport, error) {
	if s == nil || s.users == nil || s.sender == nil {
		return BroadcastReport{}, errors.New("admin service is not initialized")
	}
	if ctx == nil {
		return BroadcastReport{}, errors.New("context is required")
	}
	if !s.IsAdmin(callerID) {
		s.denied(callerID, "broadcast")
		return BroadcastReport{}, domain.ErrAccessDenied
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return BroadcastReport{}, fmt.Errorf("%w: broadcast message is empty", domain.ErrValidation)
	}

	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return BroadcastReport{}, fmt.Errorf("list users: %w", err)
	}

	var delivered atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if s.deliver(gctx, id, message) {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := BroadcastReport{Attempted: len(ids), Delivered: int(delivered.Load())}
	s.logger.WithFields(logging.Fields{
		"event":     "broadcast_complete",
		"attempted": report.Attempted,
		"delivered": report.Delivered,
	}).Info("broadcast finished")

	return report, nil
}

func (s *Service) deliver(ctx context.Context, userID int64, message string) bool {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if _, err := s.sender.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: userID, Text: message}); err != nil {
		s.metrics.IncBroadcastDelivery(metrics.DeliveryFailed)
		s.logger.WithFields(logging.Fields{
			"event":   "broadcast_send_error",
			"user_id": userID,
		}).WithError(err).Warn("failed to deliver broadcast")
		return false
	}

	s.metrics.IncBroadcastDelivery(metrics.DeliveryDelivered)
	return true
}

func (s *Service) denied(callerID int64, op string) {
	s.logger.WithFields(logging.Fields{
		"event":     "admin_denied",
		"user_id":   callerID,
		"operation": op,
	}).Warn("non-admin attempted admin operation")
}
