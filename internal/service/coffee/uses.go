package coffee

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

// UseQuery filters a use listing. Zero values mean "no filter".
type UseQuery struct {
	// Limit keeps only the most recent uses. When nil every matching use is returned.
	Limit *int
	// Since keeps uses strictly after this instant.
	Since *time.Time
	// BagID keeps uses drawn from one bag.
	BagID string
}

func (q UseQuery) storeQuery() store.Query {
	if q.BagID == "" && q.Since == nil {
		return nil
	}
	query := store.Query{}
	if q.BagID != "" {
		query[models.UseFieldBagID] = q.BagID
	}
	if q.Since != nil {
		query[models.UseFieldTimestamp+store.GreaterThanSuffix] = models.ToMillis(*q.Since)
	}
	return query
}

// LogUse records a brew from an existing bag at the given time, or now.
func (s *Service) LogUse(ctx context.Context, bagID string, at *time.Time) (models.CoffeeUse, error) {
	if _, err := s.GetBag(ctx, bagID); err != nil {
		return models.CoffeeUse{}, err
	}

	when := s.now()
	if at != nil {
		when = *at
	}
	use, err := models.NewCoffeeUse(bagID, when)
	if err != nil {
		return models.CoffeeUse{}, err
	}

	if _, err := s.uses.Put(ctx, models.EncodeUse(use)); err != nil {
		return models.CoffeeUse{}, fmt.Errorf("store use: %w", err)
	}
	s.adjustCount(ctx, models.FieldUseCount, 1, use.Key)
	s.recordWrite("use", "create")

	s.logger.Info("use logged", zap.String("key", use.Key), zap.String("bag_id", bagID), zap.Time("datetime", use.DateTime))
	return use, nil
}

// GetUse loads one use.
func (s *Service) GetUse(ctx context.Context, key string) (models.CoffeeUse, error) {
	record, err := s.uses.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.CoffeeUse{}, fmt.Errorf("%w: %s", ErrUseNotFound, key)
		}
		return models.CoffeeUse{}, fmt.Errorf("load use %s: %w", key, err)
	}
	return models.DecodeUse(record)
}

// QueryUses returns the uses matching q in ascending time order. When a limit
// is set the page plan is sized by it and only the last limit uses are kept;
// otherwise the plan is sized by the cached use total.
func (s *Service) QueryUses(ctx context.Context, q UseQuery) ([]models.CoffeeUse, error) {
	if err := checkLimit(q.Limit); err != nil {
		return nil, err
	}

	var expected int
	if q.Limit != nil {
		expected = *q.Limit
	} else {
		total, err := s.counts.Read(ctx, models.FieldUseCount)
		if err != nil {
			return nil, err
		}
		expected = total
	}

	records, err := store.FetchAll(ctx, s.uses, expected, store.UsePageSize, q.storeQuery())
	if err != nil {
		return nil, fmt.Errorf("fetch uses: %w", err)
	}

	uses := make([]models.CoffeeUse, 0, len(records))
	for _, record := range records {
		use, err := models.DecodeUse(record)
		if err != nil {
			return nil, fmt.Errorf("decode use %s: %w", record.Key(), err)
		}
		uses = append(uses, use)
	}

	sortUses(uses)
	if q.Limit != nil {
		uses = tail(uses, *q.Limit)
	}
	return uses, nil
}

// DeleteUse removes a use and decrements the use counter.
func (s *Service) DeleteUse(ctx context.Context, key string) error {
	if _, err := s.uses.Get(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUseNotFound, key)
		}
		return fmt.Errorf("load use %s: %w", key, err)
	}
	if err := s.uses.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete use %s: %w", key, err)
	}
	s.adjustCount(ctx, models.FieldUseCount, -1, key)
	s.recordWrite("use", "delete")

	s.logger.Info("use deleted", zap.String("key", key))
	return nil
}

// DeleteAllUses removes every use and resets the use counter.
func (s *Service) DeleteAllUses(ctx context.Context) (int, error) {
	deleted, err := s.deleteAll(ctx, s.uses, models.FieldUseCount, store.UsePageSize)
	if err != nil {
		return deleted, fmt.Errorf("delete all uses: %w", err)
	}
	s.recordWrite("use", "delete_all")
	s.logger.Warn("all uses deleted", zap.Int("deleted", deleted))
	return deleted, nil
}
