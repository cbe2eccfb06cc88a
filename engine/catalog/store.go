// Package catalog provides the relational vehicle catalog store and the
// resolution engine that matches descriptors to canonical spec rows.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AxleData/axle/engine/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// aggregateView is the precomputed autocomplete projection. Deployments
// without it fall back to direct queries over vehicle_specs.
const aggregateView = "vehicle_catalog_mv"

// ErrAggregateMissing marks a query that failed because the aggregate view
// does not exist in this deployment.
var ErrAggregateMissing = errors.New("aggregate view missing")

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs catalog queries against the relational backing store. The pool
// is created once in main and injected; the store never opens connections.
type Store struct {
	db DB
}

// NewStore creates a Store over the given connection handle.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const specColumns = `id, year, make, model, COALESCE(trim, ''), COALESCE(body_type, ''),
	doors, engine_cylinders, engine_displacement, horsepower,
	COALESCE(fuel_type, ''), COALESCE(drivetrain, ''), COALESCE(transmission, '')`

// normalizedModelExpr is the SQL mirror of NormalizeModel: hyphens and
// periods become spaces and runs of whitespace collapse, so stored values
// like "CR - V" compare equal to the normalized "cr v".
const normalizedModelExpr = `btrim(regexp_replace(translate(lower(model), '-.', '  '), '\s+', ' ', 'g'))`

// escapeLike escapes the LIKE/ILIKE metacharacters in s so it matches
// literally once wildcards are appended around it.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SpecFilter narrows a spec query. Zero values mean "no constraint".
type SpecFilter struct {
	Year       int
	Make       string
	Model      string // matched with normalized-model semantics
	TrimPrefix string // prefix match against the trim column
	Limit      int
}

// FindSpecs returns spec rows matching the filter, ordered by id so ties on
// (year, make, model, trim) resolve deterministically.
func (s *Store) FindSpecs(ctx context.Context, f SpecFilter) ([]domain.VehicleSpec, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Year != 0 {
		conds = append(conds, "year = "+arg(f.Year))
	}
	if f.Make != "" {
		conds = append(conds, "lower(make) = "+arg(strings.ToLower(f.Make)))
	}
	if f.Model != "" {
		conds = append(conds, normalizedModelExpr+" = "+arg(NormalizeModel(f.Model)))
	}
	if f.TrimPrefix != "" {
		conds = append(conds, "trim ILIKE "+arg(escapeLike(f.TrimPrefix)+"%"))
	}

	q := "SELECT " + specColumns + " FROM vehicle_specs"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: find specs: %w", err)
	}
	defer rows.Close()
	return scanSpecs(rows)
}

// SpecByID returns a single spec row, or (nil, nil) when absent.
func (s *Store) SpecByID(ctx context.Context, id string) (*domain.VehicleSpec, error) {
	row := s.db.QueryRow(ctx, "SELECT "+specColumns+" FROM vehicle_specs WHERE id = $1", id)
	spec, err := scanSpec(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: spec by id: %w", err)
	}
	return spec, nil
}

// Warranty returns warranty rows for a spec; empty is normal.
func (s *Store) Warranty(ctx context.Context, specID string) ([]domain.WarrantyRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT vehicle_spec_id, type, months, miles, COALESCE(notes, '')
		FROM warranties
		WHERE vehicle_spec_id = $1
		ORDER BY type`, specID)
	if err != nil {
		return nil, fmt.Errorf("catalog: warranty: %w", err)
	}
	defer rows.Close()

	var out []domain.WarrantyRecord
	for rows.Next() {
		var w domain.WarrantyRecord
		if err := rows.Scan(&w.VehicleSpecID, &w.Type, &w.Months, &w.Miles, &w.Notes); err != nil {
			return nil, fmt.Errorf("catalog: warranty scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// MarketValues returns condition-keyed valuation rows for a spec.
func (s *Store) MarketValues(ctx context.Context, specID string) ([]domain.MarketValueRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT condition, trade_in_cents, private_party_cents, dealer_retail_cents
		FROM market_values
		WHERE vehicle_spec_id = $1
		ORDER BY condition`, specID)
	if err != nil {
		return nil, fmt.Errorf("catalog: market values: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketValueRecord
	for rows.Next() {
		var r domain.MarketValueRecord
		if err := rows.Scan(&r.Condition, &r.TradeInCents, &r.PrivatePartyCents, &r.DealerRetailCents); err != nil {
			return nil, fmt.Errorf("catalog: market values scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MaintenanceSchedule returns schedule rows for a spec ascending by mileage.
func (s *Store) MaintenanceSchedule(ctx context.Context, specID string) ([]domain.MaintenanceItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT mileage, services, COALESCE(notes, '')
		FROM maintenance_schedules
		WHERE vehicle_spec_id = $1
		ORDER BY mileage`, specID)
	if err != nil {
		return nil, fmt.Errorf("catalog: maintenance: %w", err)
	}
	defer rows.Close()

	var out []domain.MaintenanceItem
	for rows.Next() {
		var it domain.MaintenanceItem
		if err := rows.Scan(&it.Mileage, &it.Services, &it.Notes); err != nil {
			return nil, fmt.Errorf("catalog: maintenance scan: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// DistinctYears returns catalog years descending. The aggregate view is
// preferred; a missing view (not a generic failure) falls back to the raw
// table.
func (s *Store) DistinctYears(ctx context.Context) ([]int, error) {
	years, err := s.queryInts(ctx, "SELECT DISTINCT year FROM "+aggregateView+" ORDER BY year DESC")
	if isUndefinedRelation(err) {
		years, err = s.queryInts(ctx, "SELECT DISTINCT year FROM vehicle_specs ORDER BY year DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: distinct years: %w", err)
	}
	return years, nil
}

// DistinctMakes returns makes alphabetically, optionally for one year.
func (s *Store) DistinctMakes(ctx context.Context, year int) ([]string, error) {
	cond, args := "", []any{}
	if year != 0 {
		cond, args = " WHERE year = $1", []any{year}
	}
	makes, err := s.queryStrings(ctx, "SELECT DISTINCT make FROM "+aggregateView+cond+" ORDER BY make", args...)
	if isUndefinedRelation(err) {
		makes, err = s.queryStrings(ctx, "SELECT DISTINCT make FROM vehicle_specs"+cond+" ORDER BY make", args...)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: distinct makes: %w", err)
	}
	return makes, nil
}

// DistinctModels returns models of a make alphabetically, optionally for one
// year.
func (s *Store) DistinctModels(ctx context.Context, make string, year int) ([]string, error) {
	cond := " WHERE lower(make) = $1"
	args := []any{strings.ToLower(make)}
	if year != 0 {
		cond += " AND year = $2"
		args = append(args, year)
	}
	models, err := s.queryStrings(ctx, "SELECT DISTINCT model FROM "+aggregateView+cond+" ORDER BY model", args...)
	if isUndefinedRelation(err) {
		models, err = s.queryStrings(ctx, "SELECT DISTINCT model FROM vehicle_specs"+cond+" ORDER BY model", args...)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: distinct models: %w", err)
	}
	return models, nil
}

// DistinctTrims returns non-empty trims of a model alphabetically. Trims only
// exist on the raw table; there is no aggregate tier for them.
func (s *Store) DistinctTrims(ctx context.Context, make, model string, year int) ([]string, error) {
	cond := " WHERE lower(make) = $1 AND translate(lower(model), '-.', '  ') = $2 AND trim IS NOT NULL AND trim <> ''"
	args := []any{strings.ToLower(make), NormalizeModel(model)}
	if year != 0 {
		cond += " AND year = $3"
		args = append(args, year)
	}
	trims, err := s.queryStrings(ctx, "SELECT DISTINCT trim FROM vehicle_specs"+cond+" ORDER BY trim", args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: distinct trims: %w", err)
	}
	return trims, nil
}

// SearchAggregate queries the autocomplete projection: optional year equality
// plus every text token matching the display string, ordered year desc, make
// asc, model asc. Returns ErrAggregateMissing when the view is absent.
func (s *Store) SearchAggregate(ctx context.Context, year int, tokens []string, limit int) ([]domain.AutocompleteRecord, error) {
	var (
		conds []string
		args  []any
	)
	if year != 0 {
		args = append(args, year)
		conds = append(conds, fmt.Sprintf("year = $%d", len(args)))
	}
	for _, tok := range tokens {
		args = append(args, "%"+escapeLike(tok)+"%")
		conds = append(conds, fmt.Sprintf("display_text ILIKE $%d", len(args)))
	}

	q := "SELECT year, make, model, display_text, COALESCE(sample_vin, '') FROM " + aggregateView
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY year DESC, make, model LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if isUndefinedRelation(err) {
		return nil, fmt.Errorf("catalog: search: %w", ErrAggregateMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: search aggregate: %w", err)
	}
	defer rows.Close()
	return scanAutocomplete(rows)
}

// SearchRaw is the fallback autocomplete query over the raw table: an
// OR-substring match per token across make and model. Callers over-fetch and
// deduplicate; rows here still carry duplicates per trim.
func (s *Store) SearchRaw(ctx context.Context, year int, tokens []string, limit int) ([]domain.AutocompleteRecord, error) {
	var (
		conds []string
		args  []any
	)
	for _, tok := range tokens {
		args = append(args, "%"+escapeLike(tok)+"%")
		conds = append(conds, fmt.Sprintf("(make ILIKE $%d OR model ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE (" + strings.Join(conds, " OR ") + ")"
	}
	if year != 0 {
		args = append(args, year)
		kw := " WHERE "
		if where != "" {
			kw = " AND "
		}
		where += fmt.Sprintf("%syear = $%d", kw, len(args))
	}

	args = append(args, limit)
	q := fmt.Sprintf(`SELECT year, make, model, year::text || ' ' || make || ' ' || model, ''
		FROM vehicle_specs%s ORDER BY year DESC, make, model LIMIT $%d`, where, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: search raw: %w", err)
	}
	defer rows.Close()
	return scanAutocomplete(rows)
}

func (s *Store) queryInts(ctx context.Context, q string, args ...any) ([]int, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) queryStrings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanSpecs(rows pgx.Rows) ([]domain.VehicleSpec, error) {
	var out []domain.VehicleSpec
	for rows.Next() {
		spec, err := scanSpec(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: spec scan: %w", err)
		}
		out = append(out, *spec)
	}
	return out, rows.Err()
}

func scanSpec(row pgx.Row) (*domain.VehicleSpec, error) {
	var spec domain.VehicleSpec
	err := row.Scan(&spec.ID, &spec.Year, &spec.Make, &spec.Model, &spec.Trim,
		&spec.BodyType, &spec.Doors, &spec.EngineCylinders, &spec.EngineDisplacement,
		&spec.Horsepower, &spec.FuelType, &spec.Drivetrain, &spec.Transmission)
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

func scanAutocomplete(rows pgx.Rows) ([]domain.AutocompleteRecord, error) {
	var out []domain.AutocompleteRecord
	for rows.Next() {
		var r domain.AutocompleteRecord
		if err := rows.Scan(&r.Year, &r.Make, &r.Model, &r.DisplayText, &r.SampleVIN); err != nil {
			return nil, fmt.Errorf("catalog: autocomplete scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// isUndefinedRelation reports the Postgres undefined_table error class. Only
// this error triggers the raw-table fallback; anything else is a real
// failure.
func isUndefinedRelation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
