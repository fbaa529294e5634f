package store

import (
	"context"
	"fmt"
)

const (
	// BagPageSize is the page size used when fetching coffee bags.
	BagPageSize = 100
	// UsePageSize is the page size used when fetching coffee uses.
	UsePageSize = 300
)

// PageCount returns the number of pages to request for expected records.
// One extra page is always requested so a stale meta-count that undercounts
// still yields every record; the result is never below 1.
func PageCount(expected, pageSize int) int {
	if pageSize <= 0 {
		pageSize = 1
	}
	if expected <= 0 {
		return 1
	}
	return (expected+pageSize-1)/pageSize + 1
}

// FetchAll drains the page plan sized for expected records and returns the
// concatenated pages in the order the collection produced them.
func FetchAll(ctx context.Context, coll Collection, expected, pageSize int, query Query) ([]Record, error) {
	pages := PageCount(expected, pageSize)

	var records []Record
	for page, err := range coll.Fetch(ctx, query, pageSize, pages) {
		if err != nil {
			return nil, fmt.Errorf("fetch page: %w", err)
		}
		records = append(records, page...)
	}
	return records, nil
}
