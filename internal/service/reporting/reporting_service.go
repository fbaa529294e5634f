package reporting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/service/coffee"
)

const summaryWindow = 7 * 24 * time.Hour

// CoffeeReader is the read side of the coffee service used to build summaries.
type CoffeeReader interface {
	QueryUses(ctx context.Context, q coffee.UseQuery) ([]models.CoffeeUse, error)
	ActiveBags(ctx context.Context, limit *int) ([]models.CoffeeBag, error)
	GetBag(ctx context.Context, key string) (models.CoffeeBag, error)
	Counts(ctx context.Context) (models.MetaCount, error)
}

// BagUsage is the number of uses drawn from one bag during the window.
type BagUsage struct {
	BagID string `json:"bag_id"`
	Label string `json:"label"`
	Uses  int    `json:"uses"`
}

// Summary describes coffee consumption over the last week.
type Summary struct {
	WeekStart  models.Date        `json:"week_start"`
	WeekEnd    models.Date        `json:"week_end"`
	Uses       int                `json:"uses"`
	PerBag     []BagUsage         `json:"per_bag"`
	ActiveBags []models.CoffeeBag `json:"active_bags"`
	Counts     models.MetaCount   `json:"counts"`
}

// Text renders the summary as a short message.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Coffee summary (%s to %s): ", s.WeekStart, s.WeekEnd)
	if s.Uses == 0 {
		b.WriteString("no coffee logged this week.")
	} else {
		fmt.Fprintf(&b, "%d uses across %d bags.", s.Uses, len(s.PerBag))
		parts := make([]string, 0, len(s.PerBag))
		for _, usage := range s.PerBag {
			parts = append(parts, fmt.Sprintf("%s: %d", usage.Label, usage.Uses))
		}
		fmt.Fprintf(&b, " %s.", strings.Join(parts, ", "))
	}

	if len(s.ActiveBags) == 0 {
		b.WriteString(" No active bags.")
	} else {
		labels := make([]string, 0, len(s.ActiveBags))
		for _, bag := range s.ActiveBags {
			labels = append(labels, bagLabel(bag))
		}
		fmt.Fprintf(&b, " Active: %s.", strings.Join(labels, ", "))
	}

	fmt.Fprintf(&b, " Totals: %d bags, %d uses.", s.Counts.BagCount, s.Counts.UseCount)
	return b.String()
}

// Service builds usage summaries.
type Service struct {
	coffee CoffeeReader
	logger *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(reader CoffeeReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{coffee: reader, logger: logger}
}

// WeeklySummary aggregates the uses logged in the seven days before now.
func (s *Service) WeeklySummary(ctx context.Context, now time.Time) (Summary, error) {
	since := now.Add(-summaryWindow)

	uses, err := s.coffee.QueryUses(ctx, coffee.UseQuery{Since: &since})
	if err != nil {
		return Summary{}, fmt.Errorf("load weekly uses: %w", err)
	}
	active, err := s.coffee.ActiveBags(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("load active bags: %w", err)
	}
	counts, err := s.coffee.Counts(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load counts: %w", err)
	}

	known := make(map[string]models.CoffeeBag, len(active))
	for _, bag := range active {
		known[bag.Key] = bag
	}

	tally := map[string]int{}
	for _, use := range uses {
		tally[use.BagID]++
	}

	perBag := make([]BagUsage, 0, len(tally))
	for bagID, n := range tally {
		perBag = append(perBag, BagUsage{BagID: bagID, Label: s.label(ctx, known, bagID), Uses: n})
	}
	slices.SortFunc(perBag, func(a, b BagUsage) int {
		if a.Uses != b.Uses {
			return b.Uses - a.Uses
		}
		return strings.Compare(a.BagID, b.BagID)
	})

	return Summary{
		WeekStart:  models.DateOf(since),
		WeekEnd:    models.DateOf(now),
		Uses:       len(uses),
		PerBag:     perBag,
		ActiveBags: active,
		Counts:     counts,
	}, nil
}

func (s *Service) label(ctx context.Context, known map[string]models.CoffeeBag, bagID string) string {
	if bag, ok := known[bagID]; ok {
		return bagLabel(bag)
	}
	bag, err := s.coffee.GetBag(ctx, bagID)
	if err != nil {
		if !errors.Is(err, coffee.ErrBagNotFound) {
			s.logger.Debug("bag lookup failed for summary", zap.String("bag_id", bagID), zap.Error(err))
		}
		return bagID
	}
	known[bagID] = bag
	return bagLabel(bag)
}

func bagLabel(bag models.CoffeeBag) string {
	return fmt.Sprintf("%s (%s)", bag.Name, bag.Brand)
}
