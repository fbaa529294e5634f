package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

// Stored field names of a coffee use.
const (
	UseFieldBagID     = "bag_id"
	UseFieldDateTime  = "datetime"
	UseFieldTimestamp = "timestamp"
)

// CoffeeUse is one logged brew drawn from a bag.
type CoffeeUse struct {
	Key      string    `json:"key"`
	BagID    string    `json:"bag_id"`
	DateTime time.Time `json:"datetime"`
}

// NewCoffeeUse builds a use with a fresh key.
func NewCoffeeUse(bagID string, at time.Time) (CoffeeUse, error) {
	if bagID == "" {
		return CoffeeUse{}, fmt.Errorf("%w: bag_id is required", ErrValidation)
	}
	return CoffeeUse{
		Key:      uuid.NewString(),
		BagID:    bagID,
		DateTime: NormalizeDateTime(at),
	}, nil
}

// Timestamp is the derived millisecond value used for range queries.
func (u CoffeeUse) Timestamp() int64 {
	return ToMillis(u.DateTime)
}

// EncodeUse converts a use to its stored field mapping.
func EncodeUse(u CoffeeUse) store.Record {
	at := NormalizeDateTime(u.DateTime)
	return store.Record{
		store.KeyField:    u.Key,
		UseFieldBagID:     u.BagID,
		UseFieldDateTime:  at.Format(DateTimeLayout),
		UseFieldTimestamp: ToMillis(at),
	}
}

// DecodeUse builds a use from a stored field mapping. The stored timestamp is
// ignored; it is always derived from datetime.
func DecodeUse(r store.Record) (CoffeeUse, error) {
	bagID, err := requiredString(r, UseFieldBagID)
	if err != nil {
		return CoffeeUse{}, err
	}

	raw, ok := r[UseFieldDateTime]
	if !ok || raw == nil {
		return CoffeeUse{}, fmt.Errorf("%w: %s is required", ErrValidation, UseFieldDateTime)
	}
	at, err := decodeTime(raw, ParseDateTime)
	if err != nil {
		return CoffeeUse{}, fmt.Errorf("%w: %s: %v", ErrValidation, UseFieldDateTime, err)
	}

	key := r.Key()
	if key == "" {
		key = uuid.NewString()
	}

	return CoffeeUse{
		Key:      key,
		BagID:    bagID,
		DateTime: NormalizeDateTime(at),
	}, nil
}
