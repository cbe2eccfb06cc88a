// Package search parses free-text autocomplete queries and serves them from
// the catalog, preferring the precomputed aggregate view.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AxleData/axle/engine/catalog"
	"github.com/AxleData/axle/engine/domain"
	"github.com/AxleData/axle/pkg/fn"
)

const (
	minQueryLen = 2
	maxLimit    = 50
	// overFetch widens the raw-table fallback so post-filter deduplication
	// can still fill the requested limit.
	overFetch = 3
)

// Year filter bounds: a standalone 4-digit token inside this range narrows
// the search to one model year.
const (
	minYearToken = 1990
	maxYearToken = 2030
)

// Query is a parsed autocomplete query.
type Query struct {
	Year   int      // 0 when no year token present
	Tokens []string // lowercased text tokens, each len >= 2
}

// ParseQuery tokenizes a free-text query. A token is a year filter iff it is
// exactly 4 numeric characters within [1990, 2030]; other tokens of length
// >= 2 become text tokens.
func ParseQuery(raw string) (Query, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < minQueryLen {
		return Query{}, domain.E(domain.CodeInvalidParams, "query must be at least 2 characters")
	}

	var q Query
	for _, tok := range strings.Fields(trimmed) {
		if y, ok := parseYearToken(tok); ok && q.Year == 0 {
			q.Year = y
			continue
		}
		if len(tok) >= minQueryLen {
			q.Tokens = append(q.Tokens, strings.ToLower(tok))
		}
	}
	return q, nil
}

func parseYearToken(tok string) (int, bool) {
	if len(tok) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	if y < minYearToken || y > maxYearToken {
		return 0, false
	}
	return y, true
}

// Catalog is the store access the search service needs; satisfied by
// *catalog.Store.
type Catalog interface {
	SearchAggregate(ctx context.Context, year int, tokens []string, limit int) ([]domain.AutocompleteRecord, error)
	SearchRaw(ctx context.Context, year int, tokens []string, limit int) ([]domain.AutocompleteRecord, error)
}

// Service executes parsed queries with aggregate-then-raw fallback.
type Service struct {
	cat Catalog
	log *slog.Logger
}

// NewService creates a search Service.
func NewService(cat Catalog, log *slog.Logger) *Service {
	return &Service{cat: cat, log: log}
}

// Search runs q against the aggregate view; when the view is absent it
// over-fetches from the raw table and deduplicates by (year, make, model) in
// first-seen order, stopping at limit. limit is clamped to 50.
func (s *Service) Search(ctx context.Context, q Query, limit int) ([]domain.AutocompleteRecord, error) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	records, err := s.cat.SearchAggregate(ctx, q.Year, q.Tokens, limit)
	if err == nil {
		return records, nil
	}
	if !errors.Is(err, catalog.ErrAggregateMissing) {
		return nil, err
	}
	s.log.Debug("aggregate view missing, using raw table fallback")

	raw, err := s.cat.SearchRaw(ctx, q.Year, q.Tokens, limit*overFetch)
	if err != nil {
		return nil, err
	}
	deduped := fn.UniqueBy(raw, func(r domain.AutocompleteRecord) string {
		return fmt.Sprintf("%d|%s|%s", r.Year, strings.ToLower(r.Make), strings.ToLower(r.Model))
	})
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped, nil
}
