// Package main implements the Axle vehicle data API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/AxleData/axle/engine/cache"
	"github.com/AxleData/axle/engine/catalog"
	"github.com/AxleData/axle/engine/decode"
	"github.com/AxleData/axle/engine/search"
	"github.com/AxleData/axle/engine/telemetry"
	"github.com/AxleData/axle/pkg/metrics"
	"github.com/AxleData/axle/pkg/mid"
	"github.com/AxleData/axle/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	DatabaseURL   string
	NATSURL       string
	NATSSubject   string
	DecodeBaseURL string
	DecodeTimeout time.Duration
	CORSOrigin    string
	// APIKeys is "key=org" pairs, comma-separated. Empty disables auth.
	APIKeys string
	// RatePerMin is the default per-org requests/minute. 0 disables limiting.
	RatePerMin int
}

func loadConfig() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		DatabaseURL:   envOr("DATABASE_URL", "postgres://localhost:5432/axle"),
		NATSURL:       os.Getenv("NATS_URL"),
		NATSSubject:   envOr("NATS_SUBJECT", "axle.usage"),
		DecodeBaseURL: os.Getenv("DECODE_BASE_URL"),
		DecodeTimeout: envDuration("DECODE_TIMEOUT", 10*time.Second),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		APIKeys:       os.Getenv("API_KEYS"),
		RatePerMin:    envInt("RATE_LIMIT_PER_MIN", 0),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to the catalog database ---
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	reg := metrics.New()

	// --- Cache ---
	kv := cache.NewMemory()
	defer kv.Close()
	cacheMgr := cache.NewManager(kv, logger, reg)

	// --- Telemetry sink ---
	var sink telemetry.Sink = telemetry.LogSink{Log: logger}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("axle-api"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
		sink = telemetry.NewNATSSink(nc, cfg.NATSSubject)
	}
	emitter := telemetry.NewEmitter(sink, logger, reg, 0)
	defer emitter.Close()

	// --- Wire the engine ---
	store := catalog.NewStore(pool)
	a := &api{
		log:      logger,
		store:    store,
		resolver: catalog.NewResolver(store, logger),
		decoder:  decode.NewDecoder(decode.NewClient(cfg.DecodeBaseURL, cfg.DecodeTimeout)),
		search:   search.NewService(store, logger),
		cache:    cacheMgr,
		emitter:  emitter,
	}

	// --- Auth and rate-limit collaborators ---
	verifier := parseAPIKeys(cfg.APIKeys, cfg.RatePerMin)
	var decider mid.Decider
	if cfg.RatePerMin > 0 || verifier != nil {
		decider = &orgDecider{lim: resilience.NewOrgLimiter(), defaultPerMin: cfg.RatePerMin}
	}

	handler := mid.Chain(a.routes(reg),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("axle-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.Auth(verifier, logger),
		mid.RateLimit(decider, logger),
		a.usage(),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// keyVerifier is a static API-key table for deployments without the platform
// auth service in front.
type keyVerifier struct {
	keys map[string]mid.Identity
}

func (v *keyVerifier) Verify(_ context.Context, key string) (mid.Identity, error) {
	id, ok := v.keys[key]
	if !ok {
		return mid.Identity{}, errors.New("unknown API key")
	}
	return id, nil
}

// parseAPIKeys parses "key=org" pairs; returns nil (auth disabled) when s is
// empty or holds no valid pair.
func parseAPIKeys(s string, perMin int) mid.Verifier {
	keys := make(map[string]mid.Identity)
	for _, pair := range strings.Split(s, ",") {
		key, org, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" || org == "" {
			continue
		}
		keys[key] = mid.Identity{OrgID: org, KeyID: key, RateLimit: perMin}
	}
	if len(keys) == 0 {
		return nil
	}
	return &keyVerifier{keys: keys}
}

// orgDecider adapts the in-process per-org token bucket to the rate-limit
// collaborator seat.
type orgDecider struct {
	lim           *resilience.OrgLimiter
	defaultPerMin int
}

func (d *orgDecider) Allow(_ context.Context, id mid.Identity) mid.Decision {
	org := id.OrgID
	if org == "" {
		org = "anonymous"
	}
	perMin := id.RateLimit
	if perMin <= 0 {
		perMin = d.defaultPerMin
	}
	return mid.Decision{Allowed: d.lim.Allow(org, perMin), Code: "rate_limited"}
}
