package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"fraudwallet-api/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByAccountID(ctx context.Context, accountID int64) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	UpdateBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	SetFreezeState(ctx context.Context, accountID int64, state string, frozenUntil *time.Time) error
	UpdateLimits(ctx context.Context, accountID int64, limits models.PolicyLimits, freezeDurationMinutes int) error
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
}

type accountRepository struct {
	collection *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) AccountRepository {
	return &accountRepository{
		collection: db.Collection("accounts"),
	}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, account)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrAccountAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *accountRepository) GetByAccountID(ctx context.Context, accountID int64) (*models.Account, error) {
	var account models.Account
	err := r.collection.FindOne(ctx, bson.M{"account_id": accountID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %d: %w", accountID, err)
	}
	return &account, nil
}

func (r *accountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"account_id": account.AccountID},
		bson.M{"$set": account})
	if err != nil {
		return fmt.Errorf("failed to update account %d: %w", account.AccountID, err)
	}

	if result.MatchedCount == 0 {
		return models.ErrAccountNotFound
	}

	return nil
}

func (r *accountRepository) UpdateBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"account_id": accountID},
		bson.M{"$set": bson.M{
			"balance":    balance,
			"updated_at": time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("failed to update balance for account %d: %w", accountID, err)
	}

	if result.MatchedCount == 0 {
		return models.ErrAccountNotFound
	}

	return nil
}

func (r *accountRepository) SetFreezeState(ctx context.Context, accountID int64, state string, frozenUntil *time.Time) error {
	set := bson.M{
		"freeze_state": state,
		"updated_at":   time.Now(),
	}
	update := bson.M{"$set": set}
	// A retained frozen_until after a lapsed freeze feeds the velocity window
	// reset; a nil value clears the anchor (manual unfreeze).
	if frozenUntil != nil {
		set["frozen_until"] = *frozenUntil
	} else {
		update["$unset"] = bson.M{"frozen_until": ""}
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"account_id": accountID},
		update)
	if err != nil {
		return fmt.Errorf("failed to set freeze state for account %d: %w", accountID, err)
	}

	if result.MatchedCount == 0 {
		return models.ErrAccountNotFound
	}

	return nil
}

func (r *accountRepository) UpdateLimits(ctx context.Context, accountID int64, limits models.PolicyLimits, freezeDurationMinutes int) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"account_id": accountID},
		bson.M{"$set": bson.M{
			"limits":                  limits,
			"freeze_duration_minutes": freezeDurationMinutes,
			"updated_at":              time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("failed to update limits for account %d: %w", accountID, err)
	}

	if result.MatchedCount == 0 {
		return models.ErrAccountNotFound
	}

	return nil
}

func (r *accountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	opts := findOptions(limit, offset, bson.D{{Key: "account_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var accounts []*models.Account
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}

	return accounts, nil
}
