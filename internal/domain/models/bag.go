package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

// DefaultBagWeight is the weight in grams assumed when none is given.
const DefaultBagWeight = 340.0

// ErrValidation marks a record or request that cannot form a valid domain object.
var ErrValidation = errors.New("validation failed")

// CoffeeBag is a tracked bag of coffee. An active bag never has a finish date.
type CoffeeBag struct {
	Key    string  `json:"key"`
	Brand  string  `json:"brand"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Start  *Date   `json:"start"`
	Finish *Date   `json:"finish"`
	Active bool    `json:"active"`
}

// NewCoffeeBag builds an active bag with a fresh key, applying defaults for
// weight and start date.
func NewCoffeeBag(brand, name string, weight float64, start *Date, today Date) (CoffeeBag, error) {
	if weight == 0 {
		weight = DefaultBagWeight
	}
	if start == nil {
		start = today.Ptr()
	}
	bag := CoffeeBag{
		Key:    uuid.NewString(),
		Brand:  brand,
		Name:   name,
		Weight: weight,
		Start:  start,
		Active: true,
	}
	if err := bag.Validate(); err != nil {
		return CoffeeBag{}, err
	}
	return bag, nil
}

// Validate checks the bag's field constraints.
func (b CoffeeBag) Validate() error {
	switch {
	case b.Brand == "":
		return fmt.Errorf("%w: bag brand is required", ErrValidation)
	case b.Name == "":
		return fmt.Errorf("%w: bag name is required", ErrValidation)
	case b.Weight <= 0:
		return fmt.Errorf("%w: bag weight must be positive, got %v", ErrValidation, b.Weight)
	case b.Active && b.Finish != nil:
		return fmt.Errorf("%w: active bag %s has a finish date", ErrValidation, b.Key)
	}
	return nil
}

// EffectiveStart returns the start date, or today when it is unset.
func (b CoffeeBag) EffectiveStart(today Date) Date {
	if b.Start == nil {
		return today
	}
	return *b.Start
}

// EncodeBag converts a bag to its stored field mapping.
func EncodeBag(b CoffeeBag) store.Record {
	return store.Record{
		store.KeyField: b.Key,
		"brand":        b.Brand,
		"name":         b.Name,
		"weight":       b.Weight,
		"start":        encodeDate(b.Start),
		"finish":       encodeDate(b.Finish),
		"active":       b.Active,
	}
}

// DecodeBag builds a bag from a stored field mapping. A missing key is
// replaced by a fresh one; a missing active flag is derived from finish.
func DecodeBag(r store.Record) (CoffeeBag, error) {
	brand, err := requiredString(r, "brand")
	if err != nil {
		return CoffeeBag{}, err
	}
	name, err := requiredString(r, "name")
	if err != nil {
		return CoffeeBag{}, err
	}

	weight := DefaultBagWeight
	if raw, ok := r["weight"]; ok && raw != nil {
		w, ok := toFloat(raw)
		if !ok {
			return CoffeeBag{}, fmt.Errorf("%w: weight has type %T", ErrValidation, raw)
		}
		weight = w
	}

	start, err := optionalDate(r, "start")
	if err != nil {
		return CoffeeBag{}, err
	}
	finish, err := optionalDate(r, "finish")
	if err != nil {
		return CoffeeBag{}, err
	}

	active := finish == nil
	if raw, ok := r["active"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return CoffeeBag{}, fmt.Errorf("%w: active has type %T", ErrValidation, raw)
		}
		active = b
	}

	key := r.Key()
	if key == "" {
		key = uuid.NewString()
	}

	bag := CoffeeBag{
		Key:    key,
		Brand:  brand,
		Name:   name,
		Weight: weight,
		Start:  start,
		Finish: finish,
		Active: active,
	}
	if err := bag.Validate(); err != nil {
		return CoffeeBag{}, err
	}
	return bag, nil
}

func encodeDate(d *Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func requiredString(r store.Record, field string) (string, error) {
	raw, ok := r[field]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s has type %T", ErrValidation, field, raw)
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrValidation, field)
	}
	return s, nil
}

func optionalDate(r store.Record, field string) (*Date, error) {
	raw, ok := r[field]
	if !ok || raw == nil {
		return nil, nil
	}
	t, err := decodeTime(raw, parseDateValue)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, field, err)
	}
	return DateOf(t).Ptr(), nil
}

// timeValue matches driver date types such as BSON datetimes.
type timeValue interface {
	Time() time.Time
}

func decodeTime(raw any, parse func(string) (time.Time, error)) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		return parse(v)
	case time.Time:
		return v.UTC(), nil
	case timeValue:
		return v.Time().UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", raw)
	}
}

func parseDateValue(value string) (time.Time, error) {
	d, err := ParseDate(value)
	return d.Time, err
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
