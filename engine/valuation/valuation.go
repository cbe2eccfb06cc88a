// Package valuation reshapes condition-keyed market value rows and applies
// the mileage-based adjustment.
package valuation

import (
	"math"
	"time"

	"github.com/AxleData/axle/engine/domain"
)

// milesPerYear is the expected annual mileage used by the adjustment.
const milesPerYear = 12000

// centsPerMile is how much each mile above/below expectation moves value.
const centsPerMile = 0.10

// Format builds a condition-keyed map from valuation rows. Duplicate
// conditions are last-write-wins in row order.
func Format(records []domain.MarketValueRecord) map[domain.Condition]domain.ValueSet {
	out := make(map[domain.Condition]domain.ValueSet, len(records))
	for _, r := range records {
		out[r.Condition] = domain.ValueSet{
			TradeInCents:      r.TradeInCents,
			PrivatePartyCents: r.PrivatePartyCents,
			DealerRetailCents: r.DealerRetailCents,
		}
	}
	return out
}

// Adjuster applies mileage adjustments. The clock is injectable for tests.
type Adjuster struct {
	Now func() time.Time
}

// AdjustForMileage shifts every present field of every condition by a flat
// cents amount derived from how far actualMileage sits from the expected
// mileage for the vehicle's age. Higher than expected lowers value, lower
// raises it; at the break-even point the map is returned unchanged in value.
func (a Adjuster) AdjustForMileage(values map[domain.Condition]domain.ValueSet, vehicleYear, actualMileage int) map[domain.Condition]domain.ValueSet {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	expected := (now().Year() - vehicleYear) * milesPerYear
	adjustment := int64(math.Round(float64(actualMileage-expected) * -centsPerMile))

	out := make(map[domain.Condition]domain.ValueSet, len(values))
	for cond, vs := range values {
		out[cond] = domain.ValueSet{
			TradeInCents:      shift(vs.TradeInCents, adjustment),
			PrivatePartyCents: shift(vs.PrivatePartyCents, adjustment),
			DealerRetailCents: shift(vs.DealerRetailCents, adjustment),
		}
	}
	return out
}

func shift(v *int64, by int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v + by
	return &n
}
