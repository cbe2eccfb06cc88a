package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AxleData/axle/engine/cache"
	"github.com/AxleData/axle/engine/catalog"
	"github.com/AxleData/axle/engine/domain"
	"github.com/AxleData/axle/engine/maintenance"
	"github.com/AxleData/axle/engine/search"
	"github.com/AxleData/axle/engine/valuation"
)

const (
	defaultSpecLimit = 50
	maxSpecLimit     = 100
)

// vinLookupResponse is the full VIN lookup payload: the decode plus the
// catalog join when a spec resolves.
type vinLookupResponse struct {
	Decoded *domain.DecodedVin  `json:"decoded"`
	Spec    *domain.VehicleSpec `json:"spec"`
	*catalog.Enrichment
}

func (a *api) handleVinLookup(w http.ResponseWriter, r *http.Request) {
	decoded, err := a.decoder.Decode(r.Context(), r.PathValue("vin"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	resp := vinLookupResponse{Decoded: decoded}
	if decoded.Year != nil && decoded.Make != "" && decoded.Model != "" {
		spec, err := a.resolver.Resolve(r.Context(), *decoded.Year, decoded.Make, decoded.Model, decoded.Trim)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if spec != nil {
			resp.Spec = spec
			e := a.resolver.Enrich(r.Context(), spec.ID)
			resp.Enrichment = &e
		}
	}
	writeData(w, resp)
}

func (a *api) handleDecode(w http.ResponseWriter, r *http.Request) {
	decoded, err := a.decoder.Decode(r.Context(), r.PathValue("vin"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, decoded)
}

type lookupResponse struct {
	Spec *domain.VehicleSpec `json:"spec"`
	catalog.Enrichment
}

func (a *api) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("year") == "" || q.Get("make") == "" || q.Get("model") == "" {
		writeError(w, domain.E(domain.CodeMissingParams, "year, make and model are required"))
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		writeError(w, domain.E(domain.CodeInvalidParams, "year must be an integer"))
		return
	}

	spec, err := a.resolver.Resolve(r.Context(), year, q.Get("make"), q.Get("model"), q.Get("trim"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if spec == nil {
		writeError(w, domain.E(domain.CodeNotFound, "no matching vehicle spec"))
		return
	}
	writeData(w, lookupResponse{Spec: spec, Enrichment: a.resolver.Enrich(r.Context(), spec.ID)})
}

func (a *api) handleSpecSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var year int
	if v := q.Get("year"); v != "" {
		var err error
		if year, err = strconv.Atoi(v); err != nil {
			writeError(w, domain.E(domain.CodeInvalidParams, "year must be an integer"))
			return
		}
	}
	limit, err := parseLimit(q.Get("limit"), defaultSpecLimit, maxSpecLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	specs, err := a.store.FindSpecs(r.Context(), catalog.SpecFilter{
		Year:       year,
		Make:       q.Get("make"),
		Model:      q.Get("model"),
		TrimPrefix: q.Get("trim"),
		Limit:      limit,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if specs == nil {
		specs = []domain.VehicleSpec{}
	}
	writeData(w, specs)
}

// specFromPath validates the {id} path value and loads the spec, writing the
// error response itself when either step fails.
func (a *api) specFromPath(w http.ResponseWriter, r *http.Request) (*domain.VehicleSpec, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, domain.E(domain.CodeInvalidParams, "id must be a UUID"))
		return nil, false
	}
	spec, err := a.store.SpecByID(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if spec == nil {
		writeError(w, domain.E(domain.CodeNotFound, "vehicle spec not found"))
		return nil, false
	}
	return spec, true
}

// handleSpecResource dispatches /vehicles/{id}/{resource} to the per-spec
// handlers. One wildcard route keeps the mux free of pattern conflicts with
// the literal vin and decode segments.
func (a *api) handleSpecResource(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("resource") {
	case "specs":
		a.handleSpecByID(w, r)
	case "warranty":
		a.handleWarranty(w, r)
	case "market-value":
		a.handleMarketValue(w, r)
	case "maintenance":
		a.handleMaintenance(w, r)
	default:
		writeError(w, domain.E(domain.CodeNotFound, "unknown path"))
	}
}

func (a *api) handleSpecByID(w http.ResponseWriter, r *http.Request) {
	spec, ok := a.specFromPath(w, r)
	if !ok {
		return
	}
	writeData(w, spec)
}

func (a *api) handleWarranty(w http.ResponseWriter, r *http.Request) {
	spec, ok := a.specFromPath(w, r)
	if !ok {
		return
	}
	records, err := a.store.Warranty(r.Context(), spec.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if records == nil {
		records = []domain.WarrantyRecord{}
	}
	writeData(w, records)
}

func (a *api) handleMarketValue(w http.ResponseWriter, r *http.Request) {
	spec, ok := a.specFromPath(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	var condition domain.Condition
	if v := q.Get("condition"); v != "" {
		c, ok := parseCondition(v)
		if !ok {
			writeError(w, domain.E(domain.CodeInvalidParams, "unknown condition grade"))
			return
		}
		condition = c
	}
	var (
		mileage    int
		mileageSet bool
	)
	if v := q.Get("mileage"); v != "" {
		var err error
		if mileage, err = strconv.Atoi(v); err != nil || mileage < 0 {
			writeError(w, domain.E(domain.CodeInvalidParams, "mileage must be a non-negative integer"))
			return
		}
		mileageSet = true
	}

	records, err := a.store.MarketValues(r.Context(), spec.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	values := valuation.Format(records)
	if mileageSet {
		// mileage=0 is a real reading (a brand-new odometer), not an
		// absent parameter.
		values = a.adjust.AdjustForMileage(values, spec.Year, mileage)
	}
	if condition != "" {
		filtered := map[domain.Condition]domain.ValueSet{}
		if v, ok := values[condition]; ok {
			filtered[condition] = v
		}
		values = filtered
	}
	writeData(w, values)
}

// parseCondition matches a condition grade case-insensitively.
func parseCondition(s string) (domain.Condition, bool) {
	for c := range domain.ValidConditions {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

func (a *api) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	spec, ok := a.specFromPath(w, r)
	if !ok {
		return
	}

	var current int
	if v := r.URL.Query().Get("current_mileage"); v != "" {
		var err error
		if current, err = strconv.Atoi(v); err != nil || current < 0 {
			writeError(w, domain.E(domain.CodeInvalidParams, "current_mileage must be a non-negative integer"))
			return
		}
	}

	items, err := a.store.MaintenanceSchedule(r.Context(), spec.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, maintenance.Select(items, current))
}

func (a *api) handleYears(w http.ResponseWriter, r *http.Request) {
	a.cached(w, r, cache.Key("years"), cache.TTLYears, func() (any, error) {
		ys, err := a.store.DistinctYears(r.Context())
		return orEmpty(ys), err
	})
}

func (a *api) handleMakes(w http.ResponseWriter, r *http.Request) {
	year, err := optionalYear(r)
	if err != nil {
		writeError(w, err)
		return
	}
	a.cached(w, r, cache.Key("makes", year), cache.TTLMakes, func() (any, error) {
		ms, err := a.store.DistinctMakes(r.Context(), year)
		return orEmpty(ms), err
	})
}

func (a *api) handleModels(w http.ResponseWriter, r *http.Request) {
	year, err := optionalYear(r)
	if err != nil {
		writeError(w, err)
		return
	}
	makeName := r.PathValue("make")
	a.cached(w, r, cache.Key("models", makeName, year), cache.TTLModels, func() (any, error) {
		ms, err := a.store.DistinctModels(r.Context(), makeName, year)
		return orEmpty(ms), err
	})
}

func (a *api) handleTrims(w http.ResponseWriter, r *http.Request) {
	year, err := optionalYear(r)
	if err != nil {
		writeError(w, err)
		return
	}
	makeName, model := r.PathValue("make"), r.PathValue("model")
	a.cached(w, r, cache.Key("trims", makeName, model, year), cache.TTLModels, func() (any, error) {
		ts, err := a.store.DistinctTrims(r.Context(), makeName, model, year)
		return orEmpty(ts), err
	})
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query, err := search.ParseQuery(params.Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := parseLimit(params.Get("limit"), 0, 50)
	if err != nil {
		writeError(w, err)
		return
	}

	key := cache.Key("search", params.Get("q"), limit)
	a.cached(w, r, key, cache.TTLSearch, func() (any, error) {
		records, err := a.search.Search(r.Context(), query, limit)
		if err != nil {
			return nil, err
		}
		return orEmpty(records), nil
	})
}

// cached serves a list endpoint through the cache manager: the computed JSON
// payload is what gets stored, so a hit and a miss are byte-identical.
func (a *api) cached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, compute func() (any, error)) {
	payload, err := a.cache.GetOrCompute(r.Context(), key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, json.RawMessage(payload))
}

// orEmpty keeps JSON list payloads as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// optionalYear parses the year query param; 0 means absent.
func optionalYear(r *http.Request) (int, error) {
	v := r.URL.Query().Get("year")
	if v == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.E(domain.CodeInvalidParams, "year must be an integer")
	}
	return year, nil
}

// parseLimit parses a limit param, clamping to max. fallback is used when
// the param is absent.
func parseLimit(v string, fallback, max int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domain.E(domain.CodeInvalidParams, "limit must be a non-negative integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}
