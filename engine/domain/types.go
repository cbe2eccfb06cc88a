// Package domain defines the core catalog types, the API error taxonomy,
// and VIN validation. It is the validation gate at every service entry point.
package domain

import "time"

// VehicleSpec is a canonical catalog row for a (year, make, model, trim)
// configuration. Uniqueness by that tuple is not enforced upstream, so
// matching code must tolerate duplicates.
type VehicleSpec struct {
	ID                 string   `json:"id"`
	Year               int      `json:"year"`
	Make               string   `json:"make"`
	Model              string   `json:"model"`
	Trim               string   `json:"trim,omitempty"`
	BodyType           string   `json:"body_type,omitempty"`
	Doors              *int     `json:"doors,omitempty"`
	EngineCylinders    *int     `json:"engine_cylinders,omitempty"`
	EngineDisplacement *float64 `json:"engine_displacement,omitempty"`
	Horsepower         *int     `json:"horsepower,omitempty"`
	FuelType           string   `json:"fuel_type,omitempty"`
	Drivetrain         string   `json:"drivetrain,omitempty"`
	Transmission       string   `json:"transmission,omitempty"`
}

// VinEngine holds the engine attributes of a decoded VIN.
type VinEngine struct {
	Cylinders    *int     `json:"cylinders"`
	Displacement *float64 `json:"displacement"`
	Horsepower   *float64 `json:"horsepower"`
	FuelType     string   `json:"fuel_type,omitempty"`
}

// DecodedVin is the typed result of a VIN decode. Fields the upstream could
// not determine are zero/nil rather than errors.
type DecodedVin struct {
	VIN          string    `json:"vin"`
	Year         *int      `json:"year"`
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	Trim         string    `json:"trim,omitempty"`
	BodyType     string    `json:"body_type,omitempty"`
	Doors        *int      `json:"doors"`
	Engine       VinEngine `json:"engine"`
	Drivetrain   string    `json:"drivetrain,omitempty"`
	Transmission string    `json:"transmission,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	PlantCountry string    `json:"plant_country,omitempty"`
	PlantCity    string    `json:"plant_city,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorText    string    `json:"error_text,omitempty"`
	Warning      string    `json:"warning,omitempty"`
}

// WarrantyRecord is one warranty coverage row for a spec.
type WarrantyRecord struct {
	VehicleSpecID string `json:"vehicle_spec_id"`
	Type          string `json:"type"`
	Months        *int   `json:"months"`
	Miles         *int   `json:"miles"`
	Notes         string `json:"notes,omitempty"`
}

// Condition is a market-value condition grade.
type Condition string

const (
	ConditionOutstanding Condition = "Outstanding"
	ConditionClean       Condition = "Clean"
	ConditionAverage     Condition = "Average"
	ConditionRough       Condition = "Rough"
)

// ValidConditions is the set of recognised condition grades.
var ValidConditions = map[Condition]bool{
	ConditionOutstanding: true,
	ConditionClean:       true,
	ConditionAverage:     true,
	ConditionRough:       true,
}

// MarketValueRecord is one condition-keyed valuation row.
type MarketValueRecord struct {
	Condition         Condition `json:"condition"`
	TradeInCents      *int64    `json:"trade_in_cents"`
	PrivatePartyCents *int64    `json:"private_party_cents"`
	DealerRetailCents *int64    `json:"dealer_retail_cents"`
}

// ValueSet is the per-condition output shape of the market value formatter.
type ValueSet struct {
	TradeInCents      *int64 `json:"trade_in_cents"`
	PrivatePartyCents *int64 `json:"private_party_cents"`
	DealerRetailCents *int64 `json:"dealer_retail_cents"`
}

// MaintenanceItem is one scheduled service interval.
type MaintenanceItem struct {
	Mileage  int      `json:"mileage"`
	Services []string `json:"services"`
	Notes    string   `json:"notes,omitempty"`
}

// AutocompleteRecord is one search suggestion, deduplicated by
// (year, make, model).
type AutocompleteRecord struct {
	Year        int    `json:"year"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	DisplayText string `json:"display_text"`
	SampleVIN   string `json:"sample_vin,omitempty"`
}

// UsageRecord is one telemetry entry describing a handled request.
type UsageRecord struct {
	OrgID      string    `json:"org_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}
