package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fraudwallet-api/internal/models"
)

// TransactionFilter narrows ListByAccount queries. Zero values mean "no
// constraint" for every field.
type TransactionFilter struct {
	Status    string
	RiskLevel string
	Direction string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByTxnID(ctx context.Context, txnID string) (*models.Transaction, error)
	Update(ctx context.Context, txn *models.Transaction) error
	ListByAccount(ctx context.Context, accountID int64, filter TransactionFilter) ([]*models.Transaction, error)
	CountCompletedInRange(ctx context.Context, accountID int64, from, to time.Time) (int, error)
	LastCompletedWithLocation(ctx context.Context, accountID int64) (*models.Transaction, error)
	ListCompletedDebits(ctx context.Context, accountID int64) ([]*models.Transaction, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Transaction, error)
	CountByStatus(ctx context.Context, accountID int64) (map[string]int, error)
	CountByRiskLevel(ctx context.Context, accountID int64) (map[string]int, error)
}

type transactionRepository struct {
	collection *mongo.Collection
}

func NewTransactionRepository(db *mongo.Database) TransactionRepository {
	return &transactionRepository{
		collection: db.Collection("transactions"),
	}
}

func (r *transactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, txn)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	txn.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *transactionRepository) GetByTxnID(ctx context.Context, txnID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"txn_id": txnID}).Decode(&txn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", txnID, err)
	}
	return &txn, nil
}

func (r *transactionRepository) Update(ctx context.Context, txn *models.Transaction) error {
	txn.UpdatedAt = time.Now()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"txn_id": txn.TxnID},
		bson.M{"$set": txn})
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", txn.TxnID, err)
	}

	if result.MatchedCount == 0 {
		return models.ErrTransactionNotFound
	}

	return nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID int64, filter TransactionFilter) ([]*models.Transaction, error) {
	query := bson.M{"account_id": accountID}

	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.RiskLevel != "" {
		query["risk_level"] = filter.RiskLevel
	}
	if filter.Direction != "" {
		query["direction"] = filter.Direction
	}
	if filter.From != nil || filter.To != nil {
		timeRange := bson.M{}
		if filter.From != nil {
			timeRange["$gte"] = *filter.From
		}
		if filter.To != nil {
			timeRange["$lte"] = *filter.To
		}
		query["created_at"] = timeRange
	}

	opts := findOptions(filter.Limit, filter.Offset, bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %d: %w", accountID, err)
	}
	defer cursor.Close(ctx)

	var txns []*models.Transaction
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	return txns, nil
}

// CountCompletedInRange counts completed transactions with created_at in
// [from, to]. It drives the trailing velocity window.
func (r *transactionRepository) CountCompletedInRange(ctx context.Context, accountID int64, from, to time.Time) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"account_id": accountID,
		"status":     models.TxnStatusCompleted,
		"created_at": bson.M{"$gte": from, "$lte": to},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions for account %d: %w", accountID, err)
	}

	return int(count), nil
}

// LastCompletedWithLocation returns the most recent completed transaction
// that carries a location, or nil when none exists.
func (r *transactionRepository) LastCompletedWithLocation(ctx context.Context, accountID int64) (*models.Transaction, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var txn models.Transaction
	err := r.collection.FindOne(ctx, bson.M{
		"account_id":    accountID,
		"status":        models.TxnStatusCompleted,
		"location_name": bson.M{"$nin": bson.A{nil, ""}},
	}, opts).Decode(&txn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last located transaction for account %d: %w", accountID, err)
	}

	return &txn, nil
}

func (r *transactionRepository) ListCompletedDebits(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{
		"account_id": accountID,
		"status":     models.TxnStatusCompleted,
		"direction":  models.TxnDirectionDebit,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed debits for account %d: %w", accountID, err)
	}
	defer cursor.Close(ctx)

	var txns []*models.Transaction
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode completed debits: %w", err)
	}

	return txns, nil
}

// ListPendingOlderThan returns pending transactions created before cutoff,
// oldest first. The confirmation sweeper feeds these to the timeout path.
func (r *transactionRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{
		"status":     models.TxnStatusPending,
		"created_at": bson.M{"$lt": cutoff},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var txns []*models.Transaction
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode stale pending transactions: %w", err)
	}

	return txns, nil
}

func (r *transactionRepository) CountByStatus(ctx context.Context, accountID int64) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": accountID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transaction counts for account %d: %w", accountID, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode transaction counts: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

func (r *transactionRepository) CountByRiskLevel(ctx context.Context, accountID int64) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"account_id": accountID,
			"risk_level": bson.M{"$nin": bson.A{nil, ""}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$risk_level",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate risk levels for account %d: %w", accountID, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Level string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode risk level counts: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Level] = row.Count
	}

	return counts, nil
}

// findOptions builds shared Find options with pagination and sorting.
func findOptions(limit, offset int, sort bson.D) *options.FindOptions {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	return opts
}
