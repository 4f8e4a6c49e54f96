// Package user keeps the users collection in step with the people talking to the bot.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_airtime_bot/internal/domain"
	"tg_airtime_bot/internal/logging"
)

type userCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar upserts a user record on every interaction.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar over the users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Registrar{users: users, logger: logger}
}

// EnsureUser upserts the user keyed by user_id and reports whether the record
// was created. Names are refreshed on every call; balance, request counter and
// join date are only written on insert.
func (r *Registrar) EnsureUser(ctx context.Context, profile domain.Profile) (bool, error) {
	if r == nil || r.users == nil {
		return false, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if profile.UserID == 0 {
		return false, errors.New("user id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": profile.UserID},
		upsertDocument(normalize(profile), now),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("ensure user %d: %w", profile.UserID, err)
	}

	log := logging.Scoped(r.logger, logging.Context{UserID: profile.UserID})
	if result != nil && result.UpsertedCount > 0 {
		log.WithFields(logging.Fields{
			"event":    "user_registered",
			"username": profile.Username,
		}).Info("registered new user")
		return true, nil
	}

	log.WithField("event", "user_seen").Debug("refreshed user profile")
	return false, nil
}

func upsertDocument(profile domain.Profile, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"first_name":   profile.FirstName,
			"last_name":    profile.LastName,
			"username":     profile.Username,
			"updated_at":   now,
			"last_seen_at": now,
		},
		"$setOnInsert": bson.M{
			"user_id":   profile.UserID,
			"balance":   int64(0),
			"requests":  int64(0),
			"join_date": now,
		},
	}
}

// normalize trims names and drops a leading @ from the username.
func normalize(profile domain.Profile) domain.Profile {
	profile.FirstName = strings.TrimSpace(profile.FirstName)
	profile.LastName = strings.TrimSpace(profile.LastName)
	profile.Username = strings.TrimPrefix(strings.TrimSpace(profile.Username), "@")
	return profile
}
