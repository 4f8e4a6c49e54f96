package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userReadCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type userCounterCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type insertCountCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// ErrUserNotFound is returned when no user matches the requested id.
var ErrUserNotFound = errors.New("user not found")

// newReference is overridable for tests.
var newReference = func() string {
	return uuid.NewString()
}

// stamp rounds t up to the next whole millisecond in UTC, so a stored
// timestamp never sorts before an unrounded instant taken earlier.
func stamp(t time.Time) time.Time {
	t = t.UTC()
	if rounded := t.Truncate(time.Millisecond); rounded.Before(t) {
		return rounded.Add(time.Millisecond)
	}
	return t
}

// UserRepository reads users from MongoDB. Writes go through the user registrar.
type UserRepository struct {
	collection userReadCollection
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(collection userReadCollection) *UserRepository {
	return &UserRepository{collection: collection}
}

// GetByID fetches a user by Telegram user_id.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}
	if userID == 0 {
		return User{}, errors.New("user_id is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return User{}, errors.New("find user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, fmt.Errorf("find user %d: %w", userID, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	var user User
	if err := result.Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}

	return user, nil
}

// ListIDs returns the user_id of every known user.
func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.D{}, options.Find().SetProjection(bson.M{"user_id": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	ids := make([]int64, 0)
	for cursor.Next(ctx) {
		var row struct {
			UserID int64 `bson:"user_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode user id: %w", err)
		}
		if row.UserID != 0 {
			ids = append(ids, row.UserID)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return ids, nil
}

// RequestRepository appends airtime requests and counts them per user.
type RequestRepository struct {
	collection insertCountCollection
}

// NewRequestRepository constructs a RequestRepository.
func NewRequestRepository(collection insertCountCollection) *RequestRepository {
	return &RequestRepository{collection: collection}
}

// Create inserts a request, assigning its reference, pending status and
// creation time when omitted.
func (r *RequestRepository) Create(ctx context.Context, req AirtimeRequest) (AirtimeRequest, error) {
	if r == nil || r.collection == nil {
		return AirtimeRequest{}, errors.New("request repository is not initialized")
	}
	if ctx == nil {
		return AirtimeRequest{}, errors.New("context is required")
	}
	if req.UserID == 0 {
		return AirtimeRequest{}, errors.New("user_id is required")
	}
	if req.Amount <= 0 {
		return AirtimeRequest{}, fmt.Errorf("amount must be positive, got %d", req.Amount)
	}

	if req.Reference == "" {
		req.Reference = newReference()
	}
	if req.Status == "" {
		req.Status = RequestStatusPending
	}
	if req.PhoneNumber == "" {
		req.PhoneNumber = DemoPhoneNumber
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = stamp(time.Now())
	}

	if _, err := r.collection.InsertOne(ctx, req); err != nil {
		return AirtimeRequest{}, fmt.Errorf("insert airtime request: %w", err)
	}

	return req, nil
}

// CountByUser returns how many requests the user has made.
func (r *RequestRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	if r == nil || r.collection == nil {
		return 0, errors.New("request repository is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("count user requests: %w", err)
	}

	return count, nil
}

// TransactionRepository appends transactions.
type TransactionRepository struct {
	collection insertCountCollection
}

// NewTransactionRepository constructs a TransactionRepository.
func NewTransactionRepository(collection insertCountCollection) *TransactionRepository {
	return &TransactionRepository{collection: collection}
}

// Create inserts a transaction, defaulting status to completed.
func (r *TransactionRepository) Create(ctx context.Context, tx Transaction) (Transaction, error) {
	if r == nil || r.collection == nil {
		return Transaction{}, errors.New("transaction repository is not initialized")
	}
	if ctx == nil {
		return Transaction{}, errors.New("context is required")
	}
	if tx.UserID == 0 {
		return Transaction{}, errors.New("user_id is required")
	}
	if tx.Amount <= 0 {
		return Transaction{}, fmt.Errorf("amount must be positive, got %d", tx.Amount)
	}

	if tx.Status == "" {
		tx.Status = TransactionStatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = stamp(time.Now())
	}

	if _, err := r.collection.InsertOne(ctx, tx); err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	return tx, nil
}

// Ledger records the request/transaction pair produced by a completed flow
// and bumps the user's requests counter. The writes are independent; a
// failure after the first leaves the earlier ones in place.
type Ledger struct {
	requests     *RequestRepository
	transactions *TransactionRepository
	users        userCounterCollection
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithUserCounter increments users.requests on every recorded request.
func WithUserCounter(users userCounterCollection) LedgerOption {
	return func(l *Ledger) {
		l.users = users
	}
}

// NewLedger constructs a Ledger.
func NewLedger(requests *RequestRepository, transactions *TransactionRepository, opts ...LedgerOption) *Ledger {
	l := &Ledger{requests: requests, transactions: transactions}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordAirtime persists one pending request and one completed airtime
// transaction. Any failure is wrapped with ErrPersistence.
func (l *Ledger) RecordAirtime(ctx context.Context, userID int64, network Network, amount int64) (AirtimeRequest, error) {
	if l == nil || l.requests == nil || l.transactions == nil {
		return AirtimeRequest{}, fmt.Errorf("%w: ledger is not initialized", ErrPersistence)
	}

	now := stamp(time.Now())

	req, err := l.requests.Create(ctx, AirtimeRequest{
		UserID:    userID,
		Network:   network,
		Amount:    amount,
		CreatedAt: now,
	})
	if err != nil {
		return AirtimeRequest{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if _, err := l.transactions.Create(ctx, Transaction{
		UserID:    userID,
		Type:      TransactionTypeAirtime,
		Amount:    amount,
		CreatedAt: now,
	}); err != nil {
		return AirtimeRequest{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if l.users != nil {
		if _, err := l.users.UpdateOne(ctx,
			bson.M{"user_id": userID},
			bson.M{"$inc": bson.M{"requests": int64(1)}},
		); err != nil {
			return AirtimeRequest{}, fmt.Errorf("%w: increment user requests: %w", ErrPersistence, err)
		}
	}

	return req, nil
}

// CountRequests returns the user's request count.
func (l *Ledger) CountRequests(ctx context.Context, userID int64) (int64, error) {
	if l == nil {
		return 0, errors.New("ledger is not initialized")
	}
	return l.requests.CountByUser(ctx, userID)
}
