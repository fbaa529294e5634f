package store

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// KeyField is the record field holding the identity key.
const KeyField = "key"

// GreaterThanSuffix marks a query field as a strict greater-than comparison.
const GreaterThanSuffix = "?gt"

var (
	// ErrNotFound is returned when the requested key does not exist in a collection.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned by Insert when the key is already taken.
	ErrExists = errors.New("record already exists")
	// ErrNegativeCounter is returned by Update when a negative Increment would
	// take a field below zero. The update is not applied.
	ErrNegativeCounter = errors.New("counter would go below zero")
)

// Record is a flat field mapping exchanged with a collection.
type Record map[string]any

// Key returns the identity key of the record, or "" when absent.
func (r Record) Key() string {
	if r == nil {
		return ""
	}
	key, _ := r[KeyField].(string)
	return key
}

// Query is a conjunction of field conditions. A plain field name means
// equality; a field name ending in GreaterThanSuffix means strict greater-than.
// An empty or nil query matches every record.
type Query map[string]any

// Condition is one parsed query entry.
type Condition struct {
	Field       string
	Value       any
	GreaterThan bool
}

// Conditions splits the query into its parsed conditions.
func (q Query) Conditions() []Condition {
	conds := make([]Condition, 0, len(q))
	for field, value := range q {
		if name, ok := strings.CutSuffix(field, GreaterThanSuffix); ok {
			conds = append(conds, Condition{Field: name, Value: value, GreaterThan: true})
			continue
		}
		conds = append(conds, Condition{Field: field, Value: value})
	}
	return conds
}

// Increment is an Update value requesting an atomic server-side add.
type Increment struct {
	Delta int
}

// Inc builds an Increment value for use with Collection.Update.
func Inc(delta int) Increment {
	return Increment{Delta: delta}
}

// Collection is the document-store contract the services consume. Each call is
// atomic for a single record; nothing spans records.
type Collection interface {
	// Get returns the record stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)
	// Put inserts or replaces a record, assigning a key when none is set.
	Put(ctx context.Context, record Record) (Record, error)
	// Insert stores a record only if its key is free, failing with ErrExists
	// otherwise.
	Insert(ctx context.Context, record Record) error
	// Update applies a partial set of fields to an existing record. Values of
	// type Increment are added to the current field value; a field is never
	// taken below zero (ErrNegativeCounter). Missing keys fail with ErrNotFound.
	Update(ctx context.Context, key string, fields Record) error
	// Delete removes the record. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Fetch lazily yields up to maxPages pages of at most pageSize records
	// matching query. Iteration ends early once the collection is exhausted.
	Fetch(ctx context.Context, query Query, pageSize, maxPages int) iter.Seq2[[]Record, error]
}
