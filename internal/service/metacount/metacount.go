package metacount

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

// SingletonKey is the key of the only record in the meta collection.
const SingletonKey = "meta"

// Page plan used when recounting a collection from scratch.
const (
	rebuildPageSize = 500
	rebuildMaxPages = 100
)

// ErrUnknownField is returned for a field other than bag_count or use_count.
var ErrUnknownField = errors.New("unknown meta-count field")

// IncrementResult tells how an increment was applied.
type IncrementResult int

const (
	// Incremented means the existing singleton was updated in place.
	Incremented IncrementResult = iota
	// Initialized means the singleton was missing and has been created.
	Initialized
	// Floored means a decrement was dropped because the counter is at zero.
	Floored
)

func (r IncrementResult) String() string {
	switch r {
	case Initialized:
		return "initialized"
	case Floored:
		return "floored"
	default:
		return "incremented"
	}
}

// AnomalyRecorder is notified when a meta-count update is lost.
type AnomalyRecorder interface {
	MetaCountAnomaly(field string)
}

// Store maintains the denormalized bag and use counters.
type Store struct {
	coll      store.Collection
	anomalies AnomalyRecorder
	logger    *zap.Logger
}

// NewStore wires a meta-count store on top of the meta collection.
func NewStore(coll store.Collection, anomalies AnomalyRecorder, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{coll: coll, anomalies: anomalies, logger: logger}
}

// Increment adds delta to field with a server-side increment. A decrement
// that would take the counter below zero is refused and reported as Floored.
// When the singleton does not exist yet it is inserted with field set to delta
// (floored at zero) and the other counter at zero; losing that insert to a
// concurrent writer retries the increment. Failures are logged, reported to
// the anomaly recorder and returned.
func (s *Store) Increment(ctx context.Context, field string, delta int) (IncrementResult, error) {
	if err := checkField(field); err != nil {
		return Incremented, err
	}

	result, err := s.increment(ctx, field, delta)
	if !errors.Is(err, store.ErrNotFound) {
		return result, err
	}

	record := singleton(0, 0)
	record[field] = max(delta, 0)
	err = s.coll.Insert(ctx, record)
	switch {
	case err == nil:
		s.logger.Warn("meta-count singleton was missing and has been initialized",
			zap.String("field", field), zap.Int("delta", delta))
		return Initialized, nil
	case errors.Is(err, store.ErrExists):
		result, err := s.increment(ctx, field, delta)
		if errors.Is(err, store.ErrNotFound) {
			s.reportAnomaly(field, delta, "retry", err)
			return result, fmt.Errorf("increment %s after concurrent initialize: %w", field, err)
		}
		return result, err
	default:
		s.reportAnomaly(field, delta, "initialize", err)
		return Initialized, fmt.Errorf("initialize meta-count after missing %s: %w", field, err)
	}
}

// increment applies the $inc. A missing singleton is returned as
// store.ErrNotFound for the caller to handle.
func (s *Store) increment(ctx context.Context, field string, delta int) (IncrementResult, error) {
	err := s.coll.Update(ctx, SingletonKey, store.Record{field: store.Inc(delta)})
	switch {
	case err == nil:
		return Incremented, nil
	case errors.Is(err, store.ErrNotFound):
		return Incremented, err
	case errors.Is(err, store.ErrNegativeCounter):
		s.logger.Warn("meta-count already at zero, decrement dropped",
			zap.String("field", field), zap.Int("delta", delta))
		if s.anomalies != nil {
			s.anomalies.MetaCountAnomaly(field)
		}
		return Floored, nil
	default:
		s.reportAnomaly(field, delta, "increment", err)
		return Incremented, fmt.Errorf("increment %s: %w", field, err)
	}
}

// Read returns the current value of field, or zero when the singleton is missing.
func (s *Store) Read(ctx context.Context, field string) (int, error) {
	if err := checkField(field); err != nil {
		return 0, err
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		return 0, err
	}
	if field == models.FieldBagCount {
		return counts.BagCount, nil
	}
	return counts.UseCount, nil
}

// Counts returns both counters, zero when the singleton is missing.
func (s *Store) Counts(ctx context.Context) (models.MetaCount, error) {
	record, err := s.coll.Get(ctx, SingletonKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.MetaCount{}, nil
		}
		return models.MetaCount{}, fmt.Errorf("read meta-count: %w", err)
	}

	bags, err := counterValue(record, models.FieldBagCount)
	if err != nil {
		return models.MetaCount{}, err
	}
	uses, err := counterValue(record, models.FieldUseCount)
	if err != nil {
		return models.MetaCount{}, err
	}
	return models.MetaCount{BagCount: bags, UseCount: uses}, nil
}

// Reset sets field to zero, creating the singleton if needed.
func (s *Store) Reset(ctx context.Context, field string) error {
	if err := checkField(field); err != nil {
		return err
	}

	err := s.coll.Update(ctx, SingletonKey, store.Record{field: 0})
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reset %s: %w", field, err)
	}
	err = s.coll.Insert(ctx, singleton(0, 0))
	if errors.Is(err, store.ErrExists) {
		err = s.coll.Update(ctx, SingletonKey, store.Record{field: 0})
	}
	if err != nil {
		return fmt.Errorf("initialize meta-count on reset: %w", err)
	}
	return nil
}

// Rebuild recounts both collections and overwrites the singleton.
func (s *Store) Rebuild(ctx context.Context, bags, uses store.Collection) (models.MetaCount, error) {
	bagCount, err := countRecords(ctx, bags)
	if err != nil {
		return models.MetaCount{}, fmt.Errorf("count bags: %w", err)
	}
	useCount, err := countRecords(ctx, uses)
	if err != nil {
		return models.MetaCount{}, fmt.Errorf("count uses: %w", err)
	}

	if _, err := s.coll.Put(ctx, singleton(bagCount, useCount)); err != nil {
		return models.MetaCount{}, fmt.Errorf("store rebuilt meta-count: %w", err)
	}

	s.logger.Info("meta-count rebuilt", zap.Int("bag_count", bagCount), zap.Int("use_count", useCount))
	return models.MetaCount{BagCount: bagCount, UseCount: useCount}, nil
}

func (s *Store) reportAnomaly(field string, delta int, stage string, err error) {
	s.logger.Error("meta-count update lost",
		zap.String("field", field),
		zap.Int("delta", delta),
		zap.String("stage", stage),
		zap.Error(err))
	if s.anomalies != nil {
		s.anomalies.MetaCountAnomaly(field)
	}
}

func countRecords(ctx context.Context, coll store.Collection) (int, error) {
	total := 0
	for page, err := range coll.Fetch(ctx, nil, rebuildPageSize, rebuildMaxPages) {
		if err != nil {
			return 0, err
		}
		total += len(page)
	}
	return total, nil
}

func singleton(bags, uses int) store.Record {
	return store.Record{
		store.KeyField:       SingletonKey,
		models.FieldBagCount: bags,
		models.FieldUseCount: uses,
	}
}

func checkField(field string) error {
	if field != models.FieldBagCount && field != models.FieldUseCount {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

func counterValue(record store.Record, field string) (int, error) {
	switch v := record[field].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("meta-count %s has type %T", field, v)
	}
}
