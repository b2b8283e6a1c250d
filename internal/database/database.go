package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"fraudwallet-api/internal/config"
	"fraudwallet-api/internal/repository"
)

type Database struct {
	MongoDB      *mongo.Database
	RedisDB      *redis.Client
	Repositories *Repositories
}

type Repositories struct {
	Accounts     repository.AccountRepository
	Transactions repository.TransactionRepository
	Devices      repository.DeviceRepository
	Locations    repository.LocationRepository
	Baselines    repository.BaselineRepository
	Alerts       repository.AlertRepository
	Locks        repository.LockRepository
	LockManager  repository.AccountLockManager
}

func Initialize(ctx context.Context, cfg *config.Config) (*Database, error) {
	mongoDB, err := initializeMongoDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
	}

	redisDB, err := initializeRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	locks := repository.NewLockRepository(redisDB)
	repos := &Repositories{
		Accounts:     repository.NewAccountRepository(mongoDB),
		Transactions: repository.NewTransactionRepository(mongoDB),
		Devices:      repository.NewDeviceRepository(mongoDB),
		Locations:    repository.NewLocationRepository(mongoDB),
		Baselines:    repository.NewBaselineRepository(mongoDB),
		Alerts:       repository.NewAlertRepository(mongoDB),
		Locks:        locks,
		LockManager:  repository.NewAccountLockManager(locks, cfg.Redis.LockTTL),
	}

	if err := createIndexes(ctx, mongoDB); err != nil {
		return nil, fmt.Errorf("failed to create database indexes: %w", err)
	}

	return &Database{
		MongoDB:      mongoDB,
		RedisDB:      redisDB,
		Repositories: repos,
	}, nil
}

func initializeMongoDB(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Database, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(uint64(cfg.MaxPoolSize)).
		SetMinPoolSize(uint64(cfg.MinPoolSize)).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.SelectionTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.SelectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(cfg.Database), nil
}

func initializeRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}

func createIndexes(ctx context.Context, db *mongo.Database) error {
	accountIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "freeze_state", Value: 1}, {Key: "frozen_until", Value: 1}},
		},
	}

	transactionIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "txn_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}

	deviceIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "device_fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	locationIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "location_name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	baselineIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	alertIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "resolved", Value: 1}},
		},
	}

	collections := map[string][]mongo.IndexModel{
		"accounts":           accountIndexes,
		"transactions":       transactionIndexes,
		"known_devices":      deviceIndexes,
		"known_locations":    locationIndexes,
		"behavior_baselines": baselineIndexes,
		"alerts":             alertIndexes,
	}

	for name, indexes := range collections {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}

	return nil
}

// Close disconnects Mongo and Redis. Safe to call with a short deadline
// during shutdown.
func (d *Database) Close(ctx context.Context) error {
	var firstErr error
	if err := d.MongoDB.Client().Disconnect(ctx); err != nil {
		firstErr = err
	}
	if err := d.RedisDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
