package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fraudwallet-api/internal/models"
)

type BaselineRepository interface {
	Get(ctx context.Context, accountID int64) (*models.BehaviorBaseline, error)
	Upsert(ctx context.Context, baseline *models.BehaviorBaseline) error
	ListAccountIDs(ctx context.Context) ([]int64, error)
}

type baselineRepository struct {
	collection *mongo.Collection
}

func NewBaselineRepository(db *mongo.Database) BaselineRepository {
	return &baselineRepository{
		collection: db.Collection("behavior_baselines"),
	}
}

// Get returns the stored baseline or nil when the account has none yet.
func (r *baselineRepository) Get(ctx context.Context, accountID int64) (*models.BehaviorBaseline, error) {
	var baseline models.BehaviorBaseline
	err := r.collection.FindOne(ctx, bson.M{"account_id": accountID}).Decode(&baseline)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get baseline for account %d: %w", accountID, err)
	}
	return &baseline, nil
}

func (r *baselineRepository) Upsert(ctx context.Context, baseline *models.BehaviorBaseline) error {
	filter := bson.M{"account_id": baseline.AccountID}
	update := bson.M{
		"$set": bson.M{
			"avg_amount":             baseline.AvgAmount,
			"max_amount":             baseline.MaxAmount,
			"typical_daily_count":    baseline.TypicalDailyCount,
			"active_hour_start":      baseline.ActiveHourStart,
			"active_hour_end":        baseline.ActiveHourEnd,
			"avg_velocity_per_10min": baseline.AvgVelocityPer10Min,
			"sample_count":           baseline.SampleCount,
			"computed_at":            baseline.ComputedAt,
		},
		"$setOnInsert": bson.M{
			"account_id": baseline.AccountID,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert baseline for account %d: %w", baseline.AccountID, err)
	}

	return nil
}

// ListAccountIDs returns every account that has a stored baseline. The
// nightly recompute job iterates these.
func (r *baselineRepository) ListAccountIDs(ctx context.Context) ([]int64, error) {
	cursor, err := r.collection.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"account_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list baseline accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		AccountID int64 `bson:"account_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode baseline accounts: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.AccountID)
	}

	return ids, nil
}
