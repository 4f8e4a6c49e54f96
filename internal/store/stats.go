package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// Totals is the snapshot behind the admin /stats reply.
type Totals struct {
	Users    int64
	Requests int64
}

// StatsProvider counts whole collections. Counts are exact, not estimated.
type StatsProvider struct {
	users    countCollection
	requests countCollection
}

// NewStatsProvider counts over the users and airtime_requests collections.
func NewStatsProvider(users, requests countCollection) *StatsProvider {
	return &StatsProvider{users: users, requests: requests}
}

// CountUsers counts registered users.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	if p == nil {
		return 0, errors.New("stats provider is not initialized")
	}
	return countAll(ctx, p.users, "users")
}

// CountRequests counts airtime requests across all users.
func (p *StatsProvider) CountRequests(ctx context.Context) (int64, error) {
	if p == nil {
		return 0, errors.New("stats provider is not initialized")
	}
	return countAll(ctx, p.requests, "airtime requests")
}

// Totals reads users first and skips the request count if that fails.
func (p *StatsProvider) Totals(ctx context.Context) (Totals, error) {
	var (
		totals Totals
		err    error
	)
	if totals.Users, err = p.CountUsers(ctx); err != nil {
		return Totals{}, err
	}
	if totals.Requests, err = p.CountRequests(ctx); err != nil {
		return Totals{}, err
	}
	return totals, nil
}

func countAll(ctx context.Context, coll countCollection, label string) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if coll == nil {
		return 0, fmt.Errorf("count %s: collection is not configured", label)
	}

	n, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", label, err)
	}
	return n, nil
}
