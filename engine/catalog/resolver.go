package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AxleData/axle/engine/domain"
	"github.com/AxleData/axle/pkg/fn"
)

// Source is the catalog access the resolver needs; satisfied by *Store.
type Source interface {
	FindSpecs(ctx context.Context, f SpecFilter) ([]domain.VehicleSpec, error)
	Warranty(ctx context.Context, specID string) ([]domain.WarrantyRecord, error)
	MarketValues(ctx context.Context, specID string) ([]domain.MarketValueRecord, error)
	MaintenanceSchedule(ctx context.Context, specID string) ([]domain.MaintenanceItem, error)
}

// Resolver matches a vehicle descriptor to a canonical spec row using an
// ordered list of named strategies. Zero matches is a normal terminal state,
// never an error.
type Resolver struct {
	src Source
	log *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(src Source, log *slog.Logger) *Resolver {
	return &Resolver{src: src, log: log}
}

// strategy is one fallback step: a name for logging plus the filter it tries.
type strategy struct {
	name   string
	filter SpecFilter
}

// strategies builds the ordered fallback list for a descriptor. Ties inside
// a strategy resolve to the lowest id (the store orders by id).
func strategies(year int, makeName, model, trim string) []strategy {
	var out []strategy
	if primary := PrimaryTrim(trim); primary != "" {
		out = append(out, strategy{
			name:   "trim-prefix",
			filter: SpecFilter{Year: year, Make: makeName, Model: model, TrimPrefix: primary, Limit: 1},
		})
	}
	out = append(out, strategy{
		name:   "trim-agnostic",
		filter: SpecFilter{Year: year, Make: makeName, Model: model, Limit: 1},
	})
	return out
}

// Resolve returns the first spec any strategy matches, or (nil, nil) when the
// descriptor matches nothing.
func (r *Resolver) Resolve(ctx context.Context, year int, makeName, model, trim string) (*domain.VehicleSpec, error) {
	for _, st := range strategies(year, makeName, model, trim) {
		specs, err := r.src.FindSpecs(ctx, st.filter)
		if err != nil {
			return nil, err
		}
		if len(specs) > 0 {
			r.log.Debug("spec resolved", "strategy", st.name, "spec_id", specs[0].ID)
			return &specs[0], nil
		}
	}
	return nil, nil
}

// Enrichment bundles the dependent lookups for a resolved spec. Each
// collection defaults to empty when its lookup fails; one failure never
// poisons the others.
type Enrichment struct {
	Warranty     []domain.WarrantyRecord    `json:"warranty"`
	MarketValues []domain.MarketValueRecord `json:"market_values"`
	Maintenance  []domain.MaintenanceItem   `json:"maintenance"`
}

// Enrich runs the three dependent lookups concurrently and assembles the
// result once all complete.
func (r *Resolver) Enrich(ctx context.Context, specID string) Enrichment {
	var e Enrichment
	fn.FanOut(
		func() struct{} {
			w, err := r.src.Warranty(ctx, specID)
			if err != nil {
				r.log.Warn("warranty lookup failed", "spec_id", specID, "err", err)
				return struct{}{}
			}
			e.Warranty = w
			return struct{}{}
		},
		func() struct{} {
			mv, err := r.src.MarketValues(ctx, specID)
			if err != nil {
				r.log.Warn("market value lookup failed", "spec_id", specID, "err", err)
				return struct{}{}
			}
			e.MarketValues = mv
			return struct{}{}
		},
		func() struct{} {
			m, err := r.src.MaintenanceSchedule(ctx, specID)
			if err != nil {
				r.log.Warn("maintenance lookup failed", "spec_id", specID, "err", err)
				return struct{}{}
			}
			e.Maintenance = m
			return struct{}{}
		},
	)
	if e.Warranty == nil {
		e.Warranty = []domain.WarrantyRecord{}
	}
	if e.MarketValues == nil {
		e.MarketValues = []domain.MarketValueRecord{}
	}
	if e.Maintenance == nil {
		e.Maintenance = []domain.MaintenanceItem{}
	}
	return e
}

// PrimaryTrim extracts the matching trim from a possibly slash-delimited
// alternative list: "EX-L/EX-L Navi" resolves to "EX-L".
func PrimaryTrim(trim string) string {
	first, _, _ := strings.Cut(trim, "/")
	return strings.TrimSpace(first)
}

// NormalizeModel lowercases a model name and treats hyphens and periods as
// spaces, so "CR-V" and "CR V" compare equal. Runs of spaces collapse.
func NormalizeModel(model string) string {
	s := strings.ToLower(strings.TrimSpace(model))
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
