package memory

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

// Collection is an in-process store.Collection. Records are kept in insertion
// order so paging is deterministic.
type Collection struct {
	mu      sync.RWMutex
	records map[string]store.Record
	order   []string
}

// NewCollection returns an empty in-memory collection.
func NewCollection() *Collection {
	return &Collection{records: make(map[string]store.Record)}
}

// Get implements store.Collection.
func (c *Collection) Get(ctx context.Context, key string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.records[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return maps.Clone(record), nil
}

// Put implements store.Collection.
func (c *Collection) Put(ctx context.Context, record store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := maps.Clone(record)
	if stored == nil {
		stored = store.Record{}
	}
	if stored.Key() == "" {
		stored[store.KeyField] = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := stored.Key()
	if _, exists := c.records[key]; !exists {
		c.order = append(c.order, key)
	}
	c.records[key] = stored
	return maps.Clone(stored), nil
}

// Insert implements store.Collection.
func (c *Collection) Insert(ctx context.Context, record store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := maps.Clone(record)
	if stored == nil {
		stored = store.Record{}
	}
	if stored.Key() == "" {
		stored[store.KeyField] = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := stored.Key()
	if _, exists := c.records[key]; exists {
		return store.ErrExists
	}
	c.order = append(c.order, key)
	c.records[key] = stored
	return nil
}

// Update implements store.Collection.
func (c *Collection) Update(ctx context.Context, key string, fields store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[key]
	if !ok {
		return store.ErrNotFound
	}

	updated := maps.Clone(record)
	for field, value := range fields {
		if field == store.KeyField {
			continue
		}
		inc, ok := value.(store.Increment)
		if !ok {
			updated[field] = value
			continue
		}
		current, _ := toFloat(updated[field])
		next := int64(current) + int64(inc.Delta)
		if inc.Delta < 0 && next < 0 {
			return store.ErrNegativeCounter
		}
		updated[field] = next
	}
	c.records[key] = updated
	return nil
}

// Delete implements store.Collection.
func (c *Collection) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[key]; !ok {
		return nil
	}
	delete(c.records, key)
	c.order = slices.DeleteFunc(c.order, func(k string) bool { return k == key })
	return nil
}

// Fetch implements store.Collection. Each page is a snapshot taken when the
// page is requested, so concurrent writes between pages are visible.
func (c *Collection) Fetch(ctx context.Context, query store.Query, pageSize, maxPages int) iter.Seq2[[]store.Record, error] {
	conds := query.Conditions()
	return func(yield func([]store.Record, error) bool) {
		if pageSize <= 0 {
			yield(nil, fmt.Errorf("page size must be positive, got %d", pageSize))
			return
		}
		for page := 0; page < maxPages; page++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			records := c.page(conds, page*pageSize, pageSize)
			if len(records) == 0 {
				return
			}
			if !yield(records, nil) {
				return
			}
			if len(records) < pageSize {
				return
			}
		}
	}
}

// Len reports the number of stored records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *Collection) page(conds []store.Condition, offset, limit int) []store.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []store.Record
	skipped := 0
	for _, key := range c.order {
		record := c.records[key]
		if !matches(record, conds) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, maps.Clone(record))
		if len(out) == limit {
			break
		}
	}
	return out
}

func matches(record store.Record, conds []store.Condition) bool {
	for _, cond := range conds {
		value, ok := record[cond.Field]
		if !ok {
			return false
		}
		if cond.GreaterThan {
			if !greaterThan(value, cond.Value) {
				return false
			}
			continue
		}
		if !equalValues(value, cond.Value) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	if aNum != bNum {
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

func greaterThan(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af > bf
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	return aStr && bStr && as > bs
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
