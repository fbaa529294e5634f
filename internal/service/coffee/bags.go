package coffee

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

// NewBag carries the fields accepted when registering a bag.
type NewBag struct {
	Brand  string
	Name   string
	Weight float64
	Start  *models.Date
}

// BagUpdate carries the optional fields of a partial bag update.
type BagUpdate struct {
	Brand  *string
	Name   *string
	Weight *float64
	Start  *models.Date
}

func (u BagUpdate) empty() bool {
	return u.Brand == nil && u.Name == nil && u.Weight == nil && u.Start == nil
}

// CreateBag stores a new active bag and bumps the bag counter.
func (s *Service) CreateBag(ctx context.Context, req NewBag) (models.CoffeeBag, error) {
	bag, err := models.NewCoffeeBag(req.Brand, req.Name, req.Weight, req.Start, s.today())
	if err != nil {
		return models.CoffeeBag{}, err
	}

	if _, err := s.bags.Put(ctx, models.EncodeBag(bag)); err != nil {
		return models.CoffeeBag{}, fmt.Errorf("store bag: %w", err)
	}
	s.adjustCount(ctx, models.FieldBagCount, 1, bag.Key)
	s.recordWrite("bag", "create")

	s.logger.Info("bag created", zap.String("key", bag.Key), zap.String("brand", bag.Brand), zap.String("name", bag.Name))
	return bag, nil
}

// GetBag loads one bag.
func (s *Service) GetBag(ctx context.Context, key string) (models.CoffeeBag, error) {
	record, err := s.bags.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.CoffeeBag{}, fmt.Errorf("%w: %s", ErrBagNotFound, key)
		}
		return models.CoffeeBag{}, fmt.Errorf("load bag %s: %w", key, err)
	}
	return models.DecodeBag(record)
}

// ListBags returns every bag ordered by start date, keeping only the most
// recent limit bags when limit is set.
func (s *Service) ListBags(ctx context.Context, limit *int) ([]models.CoffeeBag, error) {
	return s.queryBags(ctx, nil, limit)
}

// ActiveBags returns the active bags ordered by start date (a missing start
// counts as today), keeping only the most recent limit bags when limit is set.
func (s *Service) ActiveBags(ctx context.Context, limit *int) ([]models.CoffeeBag, error) {
	return s.queryBags(ctx, store.Query{"active": true}, limit)
}

func (s *Service) queryBags(ctx context.Context, query store.Query, limit *int) ([]models.CoffeeBag, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	total, err := s.counts.Read(ctx, models.FieldBagCount)
	if err != nil {
		return nil, err
	}
	records, err := store.FetchAll(ctx, s.bags, total, store.BagPageSize, query)
	if err != nil {
		return nil, fmt.Errorf("fetch bags: %w", err)
	}

	bags := make([]models.CoffeeBag, 0, len(records))
	for _, record := range records {
		bag, err := models.DecodeBag(record)
		if err != nil {
			return nil, fmt.Errorf("decode bag %s: %w", record.Key(), err)
		}
		bags = append(bags, bag)
	}

	sortBags(bags, s.today())
	if limit != nil {
		bags = tail(bags, *limit)
	}
	return bags, nil
}

// UpdateBag applies a partial update of the descriptive fields. Lifecycle
// fields are only changed through ActivateBag and DeactivateBag.
func (s *Service) UpdateBag(ctx context.Context, key string, req BagUpdate) (models.CoffeeBag, error) {
	if req.empty() {
		return models.CoffeeBag{}, fmt.Errorf("%w: no fields to update", ErrInvalidArgument)
	}

	bag, err := s.GetBag(ctx, key)
	if err != nil {
		return models.CoffeeBag{}, err
	}

	fields := store.Record{}
	if req.Brand != nil {
		bag.Brand = *req.Brand
		fields["brand"] = bag.Brand
	}
	if req.Name != nil {
		bag.Name = *req.Name
		fields["name"] = bag.Name
	}
	if req.Weight != nil {
		bag.Weight = *req.Weight
		fields["weight"] = bag.Weight
	}
	if req.Start != nil {
		if bag.Finish != nil && req.Start.After(bag.Finish.Time) {
			return models.CoffeeBag{}, fmt.Errorf("%w: start %s is after finish %s", ErrInvalidArgument, req.Start, bag.Finish)
		}
		bag.Start = req.Start
		fields["start"] = bag.Start.String()
	}
	if err := bag.Validate(); err != nil {
		return models.CoffeeBag{}, err
	}

	if err := s.updateBag(ctx, key, fields); err != nil {
		return models.CoffeeBag{}, err
	}
	s.recordWrite("bag", "update")
	return bag, nil
}

// DeactivateBag marks an active bag as finished on the given date, or today.
func (s *Service) DeactivateBag(ctx context.Context, key string, finish *models.Date) (models.CoffeeBag, error) {
	bag, err := s.GetBag(ctx, key)
	if err != nil {
		return models.CoffeeBag{}, err
	}
	if !bag.Active || bag.Finish != nil {
		return models.CoffeeBag{}, fmt.Errorf("%w: bag %s is already finished", ErrInvalidState, key)
	}

	if finish == nil {
		finish = s.today().Ptr()
	}
	if bag.Start != nil && finish.Before(bag.Start.Time) {
		return models.CoffeeBag{}, fmt.Errorf("%w: finish %s is before start %s", ErrInvalidArgument, finish, bag.Start)
	}

	if err := s.updateBag(ctx, key, store.Record{"finish": finish.String(), "active": false}); err != nil {
		return models.CoffeeBag{}, err
	}
	bag.Finish = finish
	bag.Active = false
	s.recordWrite("bag", "deactivate")
	return bag, nil
}

// ActivateBag reopens a finished bag, clearing its finish date.
func (s *Service) ActivateBag(ctx context.Context, key string) (models.CoffeeBag, error) {
	bag, err := s.GetBag(ctx, key)
	if err != nil {
		return models.CoffeeBag{}, err
	}
	if bag.Active {
		return models.CoffeeBag{}, fmt.Errorf("%w: bag %s is already active", ErrInvalidState, key)
	}

	if err := s.updateBag(ctx, key, store.Record{"finish": nil, "active": true}); err != nil {
		return models.CoffeeBag{}, err
	}
	bag.Finish = nil
	bag.Active = true
	s.recordWrite("bag", "activate")
	return bag, nil
}

// DeleteBag removes a bag and decrements the bag counter. Uses referencing
// the bag are kept.
func (s *Service) DeleteBag(ctx context.Context, key string) error {
	if _, err := s.GetBag(ctx, key); err != nil {
		return err
	}
	if err := s.bags.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete bag %s: %w", key, err)
	}
	s.adjustCount(ctx, models.FieldBagCount, -1, key)
	s.recordWrite("bag", "delete")

	s.logger.Info("bag deleted", zap.String("key", key))
	return nil
}

// DeleteAllBags removes every bag and resets the bag counter.
func (s *Service) DeleteAllBags(ctx context.Context) (int, error) {
	deleted, err := s.deleteAll(ctx, s.bags, models.FieldBagCount, store.BagPageSize)
	if err != nil {
		return deleted, fmt.Errorf("delete all bags: %w", err)
	}
	s.recordWrite("bag", "delete_all")
	s.logger.Warn("all bags deleted", zap.Int("deleted", deleted))
	return deleted, nil
}

// MigrateActive stores an explicit active flag on every bag written before the
// flag existed, deriving it from the finish date. Counts are rebuilt first so
// that legacy bags missing from the counter are still visited. It returns the
// number of bags rewritten.
func (s *Service) MigrateActive(ctx context.Context) (int, error) {
	counts, err := s.RebuildCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("rebuild counts before migration: %w", err)
	}
	records, err := store.FetchAll(ctx, s.bags, counts.BagCount, store.BagPageSize, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch bags: %w", err)
	}

	migrated := 0
	for _, record := range records {
		if raw, ok := record["active"]; ok && raw != nil {
			continue
		}
		bag, err := models.DecodeBag(record)
		if err != nil {
			s.logger.Warn("skipping undecodable bag during migration", zap.String("key", record.Key()), zap.Error(err))
			continue
		}
		if _, err := s.bags.Put(ctx, models.EncodeBag(bag)); err != nil {
			return migrated, fmt.Errorf("store migrated bag %s: %w", bag.Key, err)
		}
		migrated++
	}

	if migrated > 0 {
		s.recordWrite("bag", "migrate")
	}
	s.logger.Info("active flag migration finished", zap.Int("migrated", migrated), zap.Int("bags", len(records)))
	return migrated, nil
}

func (s *Service) updateBag(ctx context.Context, key string, fields store.Record) error {
	if err := s.bags.Update(ctx, key, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBagNotFound, key)
		}
		return fmt.Errorf("update bag %s: %w", key, err)
	}
	return nil
}
