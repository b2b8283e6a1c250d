package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KnownDevice is a device fingerprint previously seen for an account.
// The evaluator only does membership lookups; lifecycle is owned by
// account management.
type KnownDevice struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AccountID         int64              `bson:"account_id" json:"account_id"`
	DeviceFingerprint string             `bson:"device_fingerprint" json:"device_fingerprint"`
	DeviceName        string             `bson:"device_name,omitempty" json:"device_name,omitempty"`
	FirstSeen         time.Time          `bson:"first_seen" json:"first_seen"`
	LastUsed          time.Time          `bson:"last_used" json:"last_used"`
	IsTrusted         bool               `bson:"is_trusted" json:"is_trusted"`
}

// KnownLocation is a location name previously seen for an account, with
// optional coordinates used by the travel plausibility check.
type KnownLocation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AccountID    int64              `bson:"account_id" json:"account_id"`
	LocationName string             `bson:"location_name" json:"location_name"`
	Latitude     *float64           `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude    *float64           `bson:"longitude,omitempty" json:"longitude,omitempty"`
	FirstSeen    time.Time          `bson:"first_seen" json:"first_seen"`
	LastUsed     time.Time          `bson:"last_used" json:"last_used"`
	IsTrusted    bool               `bson:"is_trusted" json:"is_trusted"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *KnownLocation) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}
