package models

import (
	"bytes"
	"encoding/json"
)

// Meta-count field names.
const (
	FieldBagCount = "bag_count"
	FieldUseCount = "use_count"
)

// MetaCount holds the cached bag and use totals.
type MetaCount struct {
	BagCount int `json:"bag_count"`
	UseCount int `json:"use_count"`
}

// KeyedBags renders as a JSON object keyed by bag key, preserving slice order.
type KeyedBags []CoffeeBag

// MarshalJSON implements json.Marshaler.
func (k KeyedBags) MarshalJSON() ([]byte, error) {
	return marshalKeyed(k, func(b CoffeeBag) string { return b.Key })
}

// KeyedUses renders as a JSON object keyed by use key, preserving slice order.
type KeyedUses []CoffeeUse

// MarshalJSON implements json.Marshaler.
func (k KeyedUses) MarshalJSON() ([]byte, error) {
	return marshalKeyed(k, func(u CoffeeUse) string { return u.Key })
}

func marshalKeyed[T any](items []T, key func(T) string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key(item))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
