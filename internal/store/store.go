// Package store owns the MongoDB connection and the collections the bot
// writes to: users, airtime_requests and transactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_airtime_bot/internal/config"
)

// Collection names.
const (
	CollectionUsers           = "users"
	CollectionAirtimeRequests = "airtime_requests"
	CollectionTransactions    = "transactions"
)

const (
	dialTimeout   = 30 * time.Second
	selectTimeout = 30 * time.Second
	appName       = "tg_airtime_bot"
)

var errNotInitialized = errors.New("store manager is not initialized")

type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// collectionIndexes is the index set one collection must carry.
type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

// indexPlan lists indexes in creation order. users.user_id is the upsert key,
// airtime_requests.reference is the public receipt id; both must be unique.
func indexPlan() []collectionIndexes {
	byUserNewestFirst := func() mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("user_id_created_at"),
		}
	}

	return []collectionIndexes{
		{
			collection: CollectionUsers,
			models:     []mongo.IndexModel{uniqueOn("user_id")},
		},
		{
			collection: CollectionAirtimeRequests,
			models:     []mongo.IndexModel{byUserNewestFirst(), uniqueOn("reference")},
		},
		{
			collection: CollectionTransactions,
			models:     []mongo.IndexModel{byUserNewestFirst()},
		},
	}
}

func uniqueOn(field string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetName(field + "_unique").SetUnique(true),
	}
}

// Manager holds the client and the database handle for the bot's data.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

func clientOptions(cfg config.Config) *options.ClientOptions {
	return options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName(appName).
		SetRetryWrites(true).
		SetConnectTimeout(dialTimeout).
		SetServerSelectionTimeout(selectTimeout)
}

// NewManager connects and pings the primary. A failed ping disconnects
// before returning.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, clientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{client: client, db: client.Database(cfg.MongoDB)}, nil
}

func (m *Manager) collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Users is the registered user collection.
func (m *Manager) Users() *mongo.Collection { return m.collection(CollectionUsers) }

// AirtimeRequests is the append-only request log.
func (m *Manager) AirtimeRequests() *mongo.Collection {
	return m.collection(CollectionAirtimeRequests)
}

// Transactions is the append-only transaction log.
func (m *Manager) Transactions() *mongo.Collection { return m.collection(CollectionTransactions) }

// Stats returns a count reader over users and airtime_requests.
func (m *Manager) Stats() *StatsProvider {
	return NewStatsProvider(m.Users(), m.AirtimeRequests())
}

// Ping satisfies the readiness probe.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errNotInitialized
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// EnsureBaseIndexes applies indexPlan, stopping at the first failure.
// Missing collections are created implicitly by the server.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errNotInitialized
	}

	for _, plan := range indexPlan() {
		if _, err := createIndexes(ctx, m.collection(plan.collection), plan.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", plan.collection, err)
		}
	}
	return nil
}

// Close disconnects. A nil manager is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return m.client.Disconnect(ctx)
}
