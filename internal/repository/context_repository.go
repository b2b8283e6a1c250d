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

type DeviceRepository interface {
	Exists(ctx context.Context, accountID int64, fingerprint string) (bool, error)
	Upsert(ctx context.Context, device *models.KnownDevice) error
	List(ctx context.Context, accountID int64) ([]*models.KnownDevice, error)
	Delete(ctx context.Context, accountID int64, fingerprint string) error
}

type LocationRepository interface {
	Exists(ctx context.Context, accountID int64, locationName string) (bool, error)
	GetByName(ctx context.Context, accountID int64, locationName string) (*models.KnownLocation, error)
	Upsert(ctx context.Context, location *models.KnownLocation) error
	List(ctx context.Context, accountID int64) ([]*models.KnownLocation, error)
	Delete(ctx context.Context, accountID int64, locationName string) error
}

type deviceRepository struct {
	collection *mongo.Collection
}

func NewDeviceRepository(db *mongo.Database) DeviceRepository {
	return &deviceRepository{
		collection: db.Collection("known_devices"),
	}
}

func (r *deviceRepository) Exists(ctx context.Context, accountID int64, fingerprint string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"account_id":         accountID,
		"device_fingerprint": fingerprint,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check device for account %d: %w", accountID, err)
	}
	return count > 0, nil
}

func (r *deviceRepository) Upsert(ctx context.Context, device *models.KnownDevice) error {
	filter := bson.M{
		"account_id":         device.AccountID,
		"device_fingerprint": device.DeviceFingerprint,
	}
	update := bson.M{
		"$set": bson.M{
			"last_used": device.LastUsed,
		},
		"$setOnInsert": bson.M{
			"account_id":         device.AccountID,
			"device_fingerprint": device.DeviceFingerprint,
			"device_name":        device.DeviceName,
			"first_seen":         device.FirstSeen,
			"is_trusted":         device.IsTrusted,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert device for account %d: %w", device.AccountID, err)
	}

	return nil
}

func (r *deviceRepository) List(ctx context.Context, accountID int64) ([]*models.KnownDevice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_used", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices for account %d: %w", accountID, err)
	}
	defer cursor.Close(ctx)

	var devices []*models.KnownDevice
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}

	return devices, nil
}

func (r *deviceRepository) Delete(ctx context.Context, accountID int64, fingerprint string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{
		"account_id":         accountID,
		"device_fingerprint": fingerprint,
	})
	if err != nil {
		return fmt.Errorf("failed to delete device for account %d: %w", accountID, err)
	}

	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

type locationRepository struct {
	collection *mongo.Collection
}

func NewLocationRepository(db *mongo.Database) LocationRepository {
	return &locationRepository{
		collection: db.Collection("known_locations"),
	}
}

func (r *locationRepository) Exists(ctx context.Context, accountID int64, locationName string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"account_id":    accountID,
		"location_name": locationName,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check location for account %d: %w", accountID, err)
	}
	return count > 0, nil
}

func (r *locationRepository) GetByName(ctx context.Context, accountID int64, locationName string) (*models.KnownLocation, error) {
	var location models.KnownLocation
	err := r.collection.FindOne(ctx, bson.M{
		"account_id":    accountID,
		"location_name": locationName,
	}).Decode(&location)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get location for account %d: %w", accountID, err)
	}
	return &location, nil
}

func (r *locationRepository) Upsert(ctx context.Context, location *models.KnownLocation) error {
	filter := bson.M{
		"account_id":    location.AccountID,
		"location_name": location.LocationName,
	}
	set := bson.M{
		"last_used": location.LastUsed,
	}
	if location.Latitude != nil && location.Longitude != nil {
		set["latitude"] = *location.Latitude
		set["longitude"] = *location.Longitude
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"account_id":    location.AccountID,
			"location_name": location.LocationName,
			"first_seen":    location.FirstSeen,
			"is_trusted":    location.IsTrusted,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert location for account %d: %w", location.AccountID, err)
	}

	return nil
}

func (r *locationRepository) List(ctx context.Context, accountID int64) ([]*models.KnownLocation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_used", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations for account %d: %w", accountID, err)
	}
	defer cursor.Close(ctx)

	var locations []*models.KnownLocation
	if err := cursor.All(ctx, &locations); err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}

	return locations, nil
}

func (r *locationRepository) Delete(ctx context.Context, accountID int64, locationName string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{
		"account_id":    accountID,
		"location_name": locationName,
	})
	if err != nil {
		return fmt.Errorf("failed to delete location for account %d: %w", accountID, err)
	}

	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}
