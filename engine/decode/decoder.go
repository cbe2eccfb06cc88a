package decode

import (
	"context"
	"strconv"
	"strings"

	"github.com/AxleData/axle/engine/domain"
)

// Fetcher is the upstream adapter contract; satisfied by *Client.
type Fetcher interface {
	Fetch(ctx context.Context, vin string) (*vpicResponse, error)
}

// Decoder validates VINs and maps raw decode results into DecodedVin.
type Decoder struct {
	upstream Fetcher
}

// NewDecoder creates a Decoder over the given upstream adapter.
func NewDecoder(upstream Fetcher) *Decoder {
	return &Decoder{upstream: upstream}
}

// Decode validates vin (no network call on a malformed VIN), fetches the raw
// decode, and maps it into the typed descriptor. An upstream error code other
// than "0" does not fail the decode; it is carried as a warning alongside
// whatever data was usable.
func (d *Decoder) Decode(ctx context.Context, rawVIN string) (*domain.DecodedVin, error) {
	vin, err := domain.ValidateVIN(rawVIN)
	if err != nil {
		return nil, err
	}

	resp, err := d.upstream.Fetch(ctx, vin)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]string, len(resp.Results))
	for _, r := range resp.Results {
		vars[r.Variable] = cleanValue(r.Value)
	}

	out := &domain.DecodedVin{
		VIN:          vin,
		Year:         parseInt(vars["Model Year"]),
		Make:         vars["Make"],
		Model:        vars["Model"],
		Trim:         vars["Trim"],
		BodyType:     vars["Body Class"],
		Doors:        parseInt(vars["Doors"]),
		Drivetrain:   vars["Drive Type"],
		Transmission: vars["Transmission Style"],
		Manufacturer: vars["Manufacturer Name"],
		PlantCountry: vars["Plant Country"],
		PlantCity:    vars["Plant City"],
		Engine: domain.VinEngine{
			Cylinders:    parseInt(vars["Engine Number of Cylinders"]),
			Displacement: parseFloat(vars["Displacement (L)"]),
			Horsepower:   parseFloat(vars["Engine Brake (hp) From"]),
			FuelType:     vars["Fuel Type - Primary"],
		},
	}

	if code := vars["Error Code"]; code != "" && code != "0" {
		out.ErrorCode = code
		out.ErrorText = vars["Error Text"]
		out.Warning = "decode completed with warnings; some fields may be unreliable"
	}
	if out.Warning == "" && !domain.CheckDigit(vin) {
		out.Warning = "VIN check digit mismatch"
	}

	return out, nil
}

// cleanValue normalizes upstream placeholder values to empty strings.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "null", "not applicable", "n/a":
		return ""
	}
	return v
}

// parseInt returns nil rather than an error on non-numeric input; partial
// decodes are expected upstream behavior.
func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}
