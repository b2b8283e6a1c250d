package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"fraudwallet-api/internal/models"
)

// AlertFilter narrows List queries. Zero values mean "no constraint".
type AlertFilter struct {
	Severity       string
	AlertType      string
	UnresolvedOnly bool
	Limit          int
	Offset         int
}

type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	List(ctx context.Context, accountID int64, filter AlertFilter) ([]*models.Alert, error)
	Resolve(ctx context.Context, accountID int64, alertID primitive.ObjectID, note string) error
	ResolveAll(ctx context.Context, accountID int64, note string) (int, error)
}

type alertRepository struct {
	collection *mongo.Collection
}

func NewAlertRepository(db *mongo.Database) AlertRepository {
	return &alertRepository{
		collection: db.Collection("alerts"),
	}
}

func (r *alertRepository) Create(ctx context.Context, alert *models.Alert) error {
	alert.CreatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, alert)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	alert.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *alertRepository) List(ctx context.Context, accountID int64, filter AlertFilter) ([]*models.Alert, error) {
	query := bson.M{"account_id": accountID}

	if filter.Severity != "" {
		query["severity"] = filter.Severity
	}
	if filter.AlertType != "" {
		query["alert_type"] = filter.AlertType
	}
	if filter.UnresolvedOnly {
		query["resolved"] = false
	}

	opts := findOptions(filter.Limit, filter.Offset, bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for account %d: %w", accountID, err)
	}
	defer cursor.Close(ctx)

	var alerts []*models.Alert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}

	return alerts, nil
}

func (r *alertRepository) Resolve(ctx context.Context, accountID int64, alertID primitive.ObjectID, note string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": alertID, "account_id": accountID, "resolved": false},
		bson.M{"$set": bson.M{
			"resolved":        true,
			"resolved_at":     time.Now(),
			"resolution_note": note,
		}})
	if err != nil {
		return fmt.Errorf("failed to resolve alert %s: %w", alertID.Hex(), err)
	}

	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func (r *alertRepository) ResolveAll(ctx context.Context, accountID int64, note string) (int, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"account_id": accountID, "resolved": false},
		bson.M{"$set": bson.M{
			"resolved":        true,
			"resolved_at":     time.Now(),
			"resolution_note": note,
		}})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve alerts for account %d: %w", accountID, err)
	}

	return int(result.ModifiedCount), nil
}
