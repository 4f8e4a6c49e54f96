// Package membership answers whether a user has joined every required channel.
package membership

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

// DefaultLookupTimeout bounds a single getChatMember call.
const DefaultLookupTimeout = 5 * time.Second

type memberLookup interface {
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
}

// Oracle checks channel membership through the Bot API. It fails closed: any
// lookup error counts as "not a member".
type Oracle struct {
	lookup   memberLookup
	channels []config.Channel
	timeout  time.Duration
	logger   *logrus.Entry
	metrics  metrics.Recorder
}

// Option customizes an Oracle.
type Option func(*Oracle)

// WithLookupTimeout overrides DefaultLookupTimeout.
func WithLookupTimeout(timeout time.Duration) Option {
	return func(o *Oracle) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMetrics records one event per channel lookup.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(o *Oracle) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// NewOracle constructs an Oracle for the configured channels.
func NewOracle(lookup memberLookup, channels []config.Channel, logger *logrus.Entry, opts ...Option) *Oracle {
	if logger == nil {
		logger = logging.Logger()
	}

	o := &Oracle{
		lookup:   lookup,
		channels: append([]config.Channel(nil), channels...),
		timeout:  DefaultLookupTimeout,
		logger:   logger,
		metrics:  metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Channels returns the channels a user must join, in prompt order.
func (o *Oracle) Channels() []config.Channel {
	return append([]config.Channel(nil), o.channels...)
}

// IsMember reports whether userID is a member, administrator or owner of
// every required channel. It stops at the first channel that fails.
func (o *Oracle) IsMember(ctx context.Context, userID int64) bool {
	if o == nil || o.lookup == nil {
		return false
	}

	for _, channel := range o.channels {
		if err := o.check(ctx, channel, userID); err != nil {
			fields := logging.Fields{
				"event":   "membership_denied",
				"user_id": userID,
				"channel": channel.Username,
			}
			if errors.Is(err, domain.ErrLookupFailed) {
				o.logger.WithFields(fields).WithError(err).Warn("membership lookup failed")
			} else {
				o.logger.WithFields(fields).WithError(err).Debug("user is not a channel member")
			}
			return false
		}
	}

	return true
}

func (o *Oracle) check(ctx context.Context, channel config.Channel, userID int64) error {
	if ctx == nil {
		ctx = context.Background()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	member, err := o.lookup.GetChatMember(lookupCtx, &bot.GetChatMemberParams{
		ChatID: channel.ChatRef(),
		UserID: userID,
	})
	if err != nil {
		o.metrics.IncMembershipCheck(metrics.MembershipError)
		return fmt.Errorf("%w: get chat member %s: %w", domain.ErrLookupFailed, channel.ChatRef(), err)
	}
	if member == nil {
		o.metrics.IncMembershipCheck(metrics.MembershipError)
		return fmt.Errorf("%w: empty chat member for %s", domain.ErrLookupFailed, channel.ChatRef())
	}

	if !isActiveStatus(member.Type) {
		o.metrics.IncMembershipCheck(metrics.MembershipNotMember)
		return fmt.Errorf("%w: status %q in %s", domain.ErrAccessDenied, member.Type, channel.ChatRef())
	}

	o.metrics.IncMembershipCheck(metrics.MembershipMember)
	return nil
}

func isActiveStatus(status models.ChatMemberType) bool {
	switch status {
	case models.ChatMemberTypeMember, models.ChatMemberTypeAdministrator, models.ChatMemberTypeOwner:
		return true
	default:
		return false
	}
}
