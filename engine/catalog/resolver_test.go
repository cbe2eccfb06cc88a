package catalog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/AxleData/axle/engine/domain"
)

type mockSource struct {
	// filters records every FindSpecs call in order.
	filters     []SpecFilter
	specsByCall [][]domain.VehicleSpec
	findErr     error

	warranty    []domain.WarrantyRecord
	warrantyErr error
	values      []domain.MarketValueRecord
	valuesErr   error
	schedule    []domain.MaintenanceItem
	scheduleErr error
}

func (m *mockSource) FindSpecs(_ context.Context, f SpecFilter) ([]domain.VehicleSpec, error) {
	m.filters = append(m.filters, f)
	if m.findErr != nil {
		return nil, m.findErr
	}
	call := len(m.filters) - 1
	if call < len(m.specsByCall) {
		return m.specsByCall[call], nil
	}
	return nil, nil
}

func (m *mockSource) Warranty(context.Context, string) ([]domain.WarrantyRecord, error) {
	return m.warranty, m.warrantyErr
}

func (m *mockSource) MarketValues(context.Context, string) ([]domain.MarketValueRecord, error) {
	return m.values, m.valuesErr
}

func (m *mockSource) MaintenanceSchedule(context.Context, string) ([]domain.MaintenanceItem, error) {
	return m.schedule, m.scheduleErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestResolveTrimPrefixWins(t *testing.T) {
	src := &mockSource{specsByCall: [][]domain.VehicleSpec{
		{{ID: "spec-1", Year: 2024, Make: "Honda", Model: "Accord", Trim: "EX-L"}},
	}}
	r := NewResolver(src, testLogger())

	got, err := r.Resolve(context.Background(), 2024, "Honda", "Accord", "EX-L/EX-L Navi")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != "spec-1" {
		t.Fatalf("got %+v", got)
	}
	if len(src.filters) != 1 {
		t.Fatalf("expected a single strategy evaluation, got %d", len(src.filters))
	}
	if src.filters[0].TrimPrefix != "EX-L" {
		t.Errorf("primary trim = %q, want EX-L", src.filters[0].TrimPrefix)
	}
}

func TestResolveFallsBackWithoutTrim(t *testing.T) {
	src := &mockSource{specsByCall: [][]domain.VehicleSpec{
		nil, // trim-prefix strategy finds nothing
		{{ID: "spec-2", Year: 2024, Make: "Toyota", Model: "Camry"}},
	}}
	r := NewResolver(src, testLogger())

	got, err := r.Resolve(context.Background(), 2024, "Toyota", "Camry", "XSE")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != "spec-2" {
		t.Fatalf("got %+v", got)
	}
	if len(src.filters) != 2 {
		t.Fatalf("expected 2 strategy evaluations, got %d", len(src.filters))
	}
	if src.filters[1].TrimPrefix != "" {
		t.Error("second strategy must ignore trim")
	}
}

func TestResolveNoMatchIsNotAnError(t *testing.T) {
	src := &mockSource{}
	r := NewResolver(src, testLogger())

	got, err := r.Resolve(context.Background(), 1999, "Edsel", "Nothing", "")
	if err != nil {
		t.Fatalf("zero matches must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
	// No trim supplied: only the trim-agnostic strategy runs.
	if len(src.filters) != 1 {
		t.Fatalf("expected 1 strategy evaluation, got %d", len(src.filters))
	}
}

func TestResolveStoreErrorPropagates(t *testing.T) {
	src := &mockSource{findErr: errors.New("db down")}
	r := NewResolver(src, testLogger())
	if _, err := r.Resolve(context.Background(), 2024, "Honda", "Accord", ""); err == nil {
		t.Fatal("store failures must surface")
	}
}

func TestEnrichDefaultsToEmptyOnFailure(t *testing.T) {
	months := 36
	src := &mockSource{
		warranty:  []domain.WarrantyRecord{{VehicleSpecID: "s", Type: "basic", Months: &months}},
		valuesErr: errors.New("values query failed"),
		schedule:  []domain.MaintenanceItem{{Mileage: 5000, Services: []string{"oil change"}}},
	}
	r := NewResolver(src, testLogger())

	got := r.Enrich(context.Background(), "s")
	if len(got.Warranty) != 1 {
		t.Errorf("warranty = %v", got.Warranty)
	}
	if got.MarketValues == nil || len(got.MarketValues) != 0 {
		t.Errorf("failed lookup must yield empty, not nil or data: %v", got.MarketValues)
	}
	if len(got.Maintenance) != 1 {
		t.Errorf("maintenance = %v", got.Maintenance)
	}
}

func TestPrimaryTrim(t *testing.T) {
	tests := []struct{ in, want string }{
		{"EX-L/EX-L Navi", "EX-L"},
		{"XSE", "XSE"},
		{"Sport / Touring", "Sport"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PrimaryTrim(tt.in); got != tt.want {
			t.Errorf("PrimaryTrim(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeModel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"CR-V", "cr v"},
		{"CR V", "cr v"},
		{"Camry", "camry"},
		{"ID.4", "id 4"},
		{"  F-150  ", "f 150"},
		{"Model 3", "model 3"},
	}
	for _, tt := range tests {
		if got := NormalizeModel(tt.in); got != tt.want {
			t.Errorf("NormalizeModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
