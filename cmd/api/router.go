package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AxleData/axle/engine/cache"
	"github.com/AxleData/axle/engine/catalog"
	"github.com/AxleData/axle/engine/domain"
	"github.com/AxleData/axle/engine/search"
	"github.com/AxleData/axle/engine/telemetry"
	"github.com/AxleData/axle/engine/valuation"
	"github.com/AxleData/axle/pkg/metrics"
	"github.com/AxleData/axle/pkg/mid"
)

// catalogStore is the store access the handlers need; satisfied by
// *catalog.Store.
type catalogStore interface {
	FindSpecs(ctx context.Context, f catalog.SpecFilter) ([]domain.VehicleSpec, error)
	SpecByID(ctx context.Context, id string) (*domain.VehicleSpec, error)
	Warranty(ctx context.Context, specID string) ([]domain.WarrantyRecord, error)
	MarketValues(ctx context.Context, specID string) ([]domain.MarketValueRecord, error)
	MaintenanceSchedule(ctx context.Context, specID string) ([]domain.MaintenanceItem, error)
	DistinctYears(ctx context.Context) ([]int, error)
	DistinctMakes(ctx context.Context, year int) ([]string, error)
	DistinctModels(ctx context.Context, make string, year int) ([]string, error)
	DistinctTrims(ctx context.Context, make, model string, year int) ([]string, error)
}

type vinDecoder interface {
	Decode(ctx context.Context, vin string) (*domain.DecodedVin, error)
}

type specResolver interface {
	Resolve(ctx context.Context, year int, makeName, model, trim string) (*domain.VehicleSpec, error)
	Enrich(ctx context.Context, specID string) catalog.Enrichment
}

type searcher interface {
	Search(ctx context.Context, q search.Query, limit int) ([]domain.AutocompleteRecord, error)
}

// api bundles the wired engine components behind the HTTP surface.
type api struct {
	log      *slog.Logger
	store    catalogStore
	resolver specResolver
	decoder  vinDecoder
	search   searcher
	cache    *cache.Manager
	emitter  *telemetry.Emitter
	adjust   valuation.Adjuster
}

// routes builds the GET-only route table. Unknown paths and non-GET methods
// get the standard error envelope rather than the mux defaults.
func (a *api) routes(reg *metrics.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("GET /metrics", reg.Handler())

	mux.HandleFunc("GET /vehicles/vin/{vin}", a.handleVinLookup)
	mux.HandleFunc("GET /vehicles/decode/{vin}", a.handleDecode)
	mux.HandleFunc("GET /vehicles/lookup", a.handleLookup)
	mux.HandleFunc("GET /vehicles/specs", a.handleSpecSearch)

	// A single wildcard pattern for the per-spec resources. Registering them
	// as separate literal patterns would conflict with the vin/decode routes
	// above under the mux's precedence rules: "/vehicles/vin/specs" would
	// match both "/vehicles/vin/{vin}" and "/vehicles/{id}/specs" with
	// neither more specific, which panics at registration.
	mux.HandleFunc("GET /vehicles/{id}/{resource}", a.handleSpecResource)

	mux.HandleFunc("GET /vehicles/years", a.handleYears)
	mux.HandleFunc("GET /vehicles/makes", a.handleMakes)
	mux.HandleFunc("GET /makes", a.handleMakes)
	mux.HandleFunc("GET /makes/{make}/models", a.handleModels)
	mux.HandleFunc("GET /makes/{make}/models/{model}/trims", a.handleTrims)

	mux.HandleFunc("GET /vehicles/search", a.handleSearch)

	// Catch-all so unknown paths get the envelope, not the mux's text 404.
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, domain.E(domain.CodeNotFound, "unknown path"))
	})

	latency := reg.Histogram("http_request_duration_seconds", "Wall time per request.", nil)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &usageWriter{ResponseWriter: w, status: http.StatusOK}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(sw, domain.E(domain.CodeMethodNotAllowed, "only GET is supported"))
		} else {
			mux.ServeHTTP(sw, r)
		}
		latency.Since(start)
		reg.Counter(
			metrics.WithLabels("http_requests_total", "status", strconv.Itoa(sw.status)),
			"Requests handled, by response status.",
		).Inc()
	})
}

// usage returns middleware that records one telemetry entry per request
// after the response is written. Recording never blocks.
func (a *api) usage() mid.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &usageWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			var orgID string
			if id, ok := mid.IdentityFrom(r.Context()); ok {
				orgID = id.OrgID
			}
			a.emitter.Record(domain.UsageRecord{
				OrgID:      orgID,
				Method:     r.Method,
				Path:       r.URL.Path,
				Status:     sw.status,
				DurationMS: time.Since(start).Milliseconds(),
				At:         start.UTC(),
			})
		})
	}
}

type usageWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *usageWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *usageWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// writeData writes the success envelope.
func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": v})
}

// writeError writes the error envelope. Untyped errors and anything internal
// surface as a generic message; the detail is for logs only.
func writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	message := "internal error"
	var de *domain.Error
	if errors.As(err, &de) && de.Code != domain.CodeInternal {
		message = de.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": string(code), "message": message},
	})
}

// fail logs the failure, then writes the error envelope.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	if code.HTTPStatus() >= 500 {
		a.log.Error("request failed", "path", r.URL.Path, "code", code, "err", err)
	}
	writeError(w, err)
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, map[string]string{"status": "ok"})
}
