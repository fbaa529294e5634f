package coffee

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/repository/store"
	"github.com/mamadbah2/coffee-counter/internal/service/metacount"
)

var (
	// ErrBagNotFound indicates the requested bag key does not exist.
	ErrBagNotFound = errors.New("coffee bag not found")
	// ErrUseNotFound indicates the requested use key does not exist.
	ErrUseNotFound = errors.New("coffee use not found")
	// ErrInvalidState indicates a lifecycle transition that does not apply to the bag.
	ErrInvalidState = errors.New("invalid bag state")
	// ErrInvalidArgument indicates a caller supplied an unusable parameter.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Counter is the meta-count surface the service depends on.
type Counter interface {
	Increment(ctx context.Context, field string, delta int) (metacount.IncrementResult, error)
	Read(ctx context.Context, field string) (int, error)
	Counts(ctx context.Context) (models.MetaCount, error)
	Reset(ctx context.Context, field string) error
	Rebuild(ctx context.Context, bags, uses store.Collection) (models.MetaCount, error)
}

// WriteRecorder is told about every applied mutation.
type WriteRecorder interface {
	RecordWrite(kind, op string)
}

// Service implements bag and use tracking on top of the document store.
type Service struct {
	bags     store.Collection
	uses     store.Collection
	counts   Counter
	recorder WriteRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the coffee service.
func NewService(bags, uses store.Collection, counts Counter, recorder WriteRecorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		bags:     bags,
		uses:     uses,
		counts:   counts,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Counts returns the cached bag and use totals.
func (s *Service) Counts(ctx context.Context) (models.MetaCount, error) {
	return s.counts.Counts(ctx)
}

// RebuildCounts recounts both collections and replaces the cached totals.
func (s *Service) RebuildCounts(ctx context.Context) (models.MetaCount, error) {
	return s.counts.Rebuild(ctx, s.bags, s.uses)
}

func (s *Service) today() models.Date {
	return models.DateOf(s.now())
}

// adjustCount applies a counter delta after a successful write. The write has
// already happened, so a counter failure only leaves the cache stale.
func (s *Service) adjustCount(ctx context.Context, field string, delta int, key string) {
	result, err := s.counts.Increment(ctx, field, delta)
	if err != nil {
		s.logger.Error("meta-count is stale after write",
			zap.String("field", field),
			zap.Int("delta", delta),
			zap.String("key", key),
			zap.Error(err))
		return
	}
	switch result {
	case metacount.Initialized:
		s.logger.Warn("meta-count initialized during write", zap.String("field", field), zap.String("key", key))
	case metacount.Floored:
		s.logger.Warn("meta-count held at zero during write", zap.String("field", field), zap.String("key", key))
	}
}

func (s *Service) recordWrite(kind, op string) {
	if s.recorder != nil {
		s.recorder.RecordWrite(kind, op)
	}
}

// deleteAll removes every record of coll and zeroes its counter.
func (s *Service) deleteAll(ctx context.Context, coll store.Collection, field string, pageSize int) (int, error) {
	expected, err := s.counts.Read(ctx, field)
	if err != nil {
		return 0, err
	}
	records, err := store.FetchAll(ctx, coll, expected, pageSize, nil)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, record := range records {
		if err := coll.Delete(ctx, record.Key()); err != nil {
			return deleted, err
		}
		deleted++
	}

	if err := s.counts.Reset(ctx, field); err != nil {
		s.logger.Error("meta-count reset failed after delete-all", zap.String("field", field), zap.Error(err))
	}
	return deleted, nil
}

func checkLimit(limit *int) error {
	if limit != nil && *limit < 1 {
		return fmt.Errorf("%w: limit must be at least 1, got %d", ErrInvalidArgument, *limit)
	}
	return nil
}

// tail keeps the last n items, or all of them when there are not more than n.
func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// sortBags orders bags by start date, treating a missing start as today. The
// sort is stable.
func sortBags(bags []models.CoffeeBag, today models.Date) {
	slices.SortStableFunc(bags, func(a, b models.CoffeeBag) int {
		return a.EffectiveStart(today).Compare(b.EffectiveStart(today).Time)
	})
}

func sortUses(uses []models.CoffeeUse) {
	slices.SortStableFunc(uses, func(a, b models.CoffeeUse) int {
		return a.DateTime.Compare(b.DateTime)
	})
}
