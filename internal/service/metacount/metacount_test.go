package metacount

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/repository/memory"
	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

type anomalyCounter map[string]int

func (a anomalyCounter) MetaCountAnomaly(field string) { a[field]++ }

// failingCollection injects errors into selected operations.
type failingCollection struct {
	store.Collection
	updateErr error
	insertErr error
}

func (f *failingCollection) Update(ctx context.Context, key string, fields store.Record) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Collection.Update(ctx, key, fields)
}

func (f *failingCollection) Insert(ctx context.Context, record store.Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.Collection.Insert(ctx, record)
}

// contendedCollection creates the singleton on behalf of another writer just
// before its own insert runs.
type contendedCollection struct {
	store.Collection
	competitor store.Record
}

func (c *contendedCollection) Insert(ctx context.Context, record store.Record) error {
	if _, err := c.Collection.Put(ctx, c.competitor); err != nil {
		return err
	}
	return c.Collection.Insert(ctx, record)
}

func TestIncrementInitializesMissingSingleton(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.NewCollection(), nil, nil)

	result, err := s.Increment(ctx, models.FieldBagCount, 1)
	require.NoError(t, err)
	assert.Equal(t, Initialized, result)

	result, err = s.Increment(ctx, models.FieldBagCount, 1)
	require.NoError(t, err)
	assert.Equal(t, Incremented, result)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MetaCount{BagCount: 2, UseCount: 0}, counts)
}

func TestIncrementThenDecrementRestoresValue(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.NewCollection(), nil, nil)

	for i := 0; i < 4; i++ {
		_, err := s.Increment(ctx, models.FieldUseCount, 1)
		require.NoError(t, err)
	}
	before, err := s.Read(ctx, models.FieldUseCount)
	require.NoError(t, err)

	_, err = s.Increment(ctx, models.FieldUseCount, 3)
	require.NoError(t, err)
	_, err = s.Increment(ctx, models.FieldUseCount, -3)
	require.NoError(t, err)

	after, err := s.Read(ctx, models.FieldUseCount)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 4, after)
}

func TestInitializationFloorsNegativeDelta(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.NewCollection(), nil, nil)

	result, err := s.Increment(ctx, models.FieldUseCount, -1)
	require.NoError(t, err)
	assert.Equal(t, Initialized, result)

	value, err := s.Read(ctx, models.FieldUseCount)
	require.NoError(t, err)
	assert.Equal(t, 0, value)
}

func TestDecrementNeverGoesBelowZero(t *testing.T) {
	ctx := context.Background()
	anomalies := anomalyCounter{}
	s := NewStore(memory.NewCollection(), anomalies, nil)

	_, err := s.Increment(ctx, models.FieldBagCount, 1)
	require.NoError(t, err)

	result, err := s.Increment(ctx, models.FieldBagCount, -1)
	require.NoError(t, err)
	assert.Equal(t, Incremented, result)

	result, err = s.Increment(ctx, models.FieldBagCount, -1)
	require.NoError(t, err)
	assert.Equal(t, Floored, result)
	assert.Equal(t, "floored", result.String())
	assert.Equal(t, 1, anomalies[models.FieldBagCount])

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MetaCount{}, counts)
}

func TestIncrementRetriesWhenInitializeLosesRace(t *testing.T) {
	ctx := context.Background()
	coll := &contendedCollection{
		Collection: memory.NewCollection(),
		competitor: singleton(5, 2),
	}
	s := NewStore(coll, nil, nil)

	result, err := s.Increment(ctx, models.FieldBagCount, 1)
	require.NoError(t, err)
	assert.Equal(t, Incremented, result)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MetaCount{BagCount: 6, UseCount: 2}, counts)
}

func TestIncrementDoesNotMaskStoreErrors(t *testing.T) {
	boom := errors.New("store unavailable")
	anomalies := anomalyCounter{}
	coll := &failingCollection{Collection: memory.NewCollection(), updateErr: boom}
	s := NewStore(coll, anomalies, nil)

	_, err := s.Increment(context.Background(), models.FieldBagCount, 1)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, anomalies[models.FieldBagCount])
	assert.Equal(t, 0, coll.Collection.(*memory.Collection).Len())
}

func TestIncrementReportsDoubleFailure(t *testing.T) {
	boom := errors.New("write refused")
	anomalies := anomalyCounter{}
	coll := &failingCollection{Collection: memory.NewCollection(), insertErr: boom}
	s := NewStore(coll, anomalies, nil)

	result, err := s.Increment(context.Background(), models.FieldUseCount, 1)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Initialized, result)
	assert.Equal(t, 1, anomalies[models.FieldUseCount])
}

func TestReadMissingSingletonIsZero(t *testing.T) {
	s := NewStore(memory.NewCollection(), nil, nil)

	value, err := s.Read(context.Background(), models.FieldBagCount)
	require.NoError(t, err)
	assert.Zero(t, value)
}

func TestUnknownField(t *testing.T) {
	s := NewStore(memory.NewCollection(), nil, nil)

	_, err := s.Increment(context.Background(), "brew_count", 1)
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = s.Read(context.Background(), "brew_count")
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.ErrorIs(t, s.Reset(context.Background(), "brew_count"), ErrUnknownField)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.NewCollection(), nil, nil)

	require.NoError(t, s.Reset(ctx, models.FieldUseCount))
	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MetaCount{}, counts)

	_, err = s.Increment(ctx, models.FieldUseCount, 7)
	require.NoError(t, err)
	_, err = s.Increment(ctx, models.FieldBagCount, 2)
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, models.FieldUseCount))
	counts, err = s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MetaCount{BagCount: 2, UseCount: 0}, counts)
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	bags := memory.NewCollection()
	uses := memory.NewCollection()
	for i := 0; i < 3; i++ {
		_, err := bags.Put(ctx, store.Record{"brand": "B"})
		require.NoError(t, err)
	}
	for i := 0; i < 7; i++ {
		_, err := uses.Put(ctx, store.Record{"bag_id": "b"})
		require.NoError(t, err)
	}

	s := NewStore(memory.NewCollection(), nil, nil)
	_, err := s.Increment(ctx, models.FieldUseCount, 40)
	require.NoError(t, err)

	counts, err := s.Rebuild(ctx, bags, uses)
	require.NoError(t, err)
	assert.Equal(t, models.MetaCount{BagCount: 3, UseCount: 7}, counts)

	stored, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts, stored)
}
