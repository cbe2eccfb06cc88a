package mid

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Identity describes the authenticated caller as resolved by the verifier.
type Identity struct {
	OrgID string
	KeyID string
	// RateLimit is the caller's allowed requests per minute; 0 means the
	// verifier imposes no per-org limit.
	RateLimit int
}

// Verifier resolves an API key to an organization identity. It is owned by
// the surrounding platform; this service only consumes its decision.
type Verifier interface {
	Verify(ctx context.Context, key string) (Identity, error)
}

type ctxKey int

const identityKey ctxKey = iota

// IdentityFrom returns the caller identity stored by Auth, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Auth returns middleware that verifies the request's API key and stores the
// resolved identity in the request context. A nil verifier disables
// authentication entirely (open deployment).
func Auth(v Verifier, log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := apiKey(r)
			if key == "" {
				deny(w, http.StatusUnauthorized, "unauthorized", "missing API key")
				return
			}
			id, err := v.Verify(r.Context(), key)
			if err != nil {
				log.Warn("auth rejected", "error", err, "path", r.URL.Path)
				deny(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
		})
	}
}

// apiKey extracts the key from Authorization: Bearer or X-API-Key.
func apiKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// Decision is a rate-limiter verdict. Code distinguishes short-window limits
// ("rate_limited") from plan quotas ("quota_exceeded").
type Decision struct {
	Allowed bool
	Code    string
}

// Decider is the externally-owned rate-limit collaborator. Counters are
// shared across service instances; this service never maintains them itself.
type Decider interface {
	Allow(ctx context.Context, id Identity) Decision
}

// RateLimit returns middleware that consults the decider and rejects with
// 429 when the caller is over its limit. A nil decider disables limiting.
func RateLimit(d Decider, log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if d == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFrom(r.Context())
			dec := d.Allow(r.Context(), id)
			if !dec.Allowed {
				code := dec.Code
				if code == "" {
					code = "rate_limited"
				}
				log.Warn("rate limited", "org", id.OrgID, "code", code, "path", r.URL.Path)
				deny(w, http.StatusTooManyRequests, code, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// deny writes the standard error envelope without pulling in the domain
// package; middleware rejections happen before any handler runs.
func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
