// Package maintenance filters and orders maintenance schedule entries.
package maintenance

import (
	"sort"

	"github.com/AxleData/axle/engine/domain"
)

// maxItems caps the returned schedule length.
const maxItems = 50

// Select returns schedule items ascending by mileage, capped at 50. When
// currentMileage > 0 only upcoming intervals (mileage >= currentMileage) are
// returned; past service is dropped silently.
func Select(items []domain.MaintenanceItem, currentMileage int) []domain.MaintenanceItem {
	out := make([]domain.MaintenanceItem, 0, len(items))
	for _, it := range items {
		if currentMileage > 0 && it.Mileage < currentMileage {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mileage < out[j].Mileage })
	if len(out) > maxItems {
		out = out[:maxItems]
	}
	return out
}
