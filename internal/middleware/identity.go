package middleware

import (
	"context"
	"net/http"
	"strings"

	"orchestrator/internal/domain"
)

type identityKey string

const (
	ownerIDKey identityKey = "owner_id"
	tierKey    identityKey = "tier"
)

// Identity extracts the caller's identity from the headers the edge proxy
// injects after authenticating the session: X-User-ID and X-User-Tier.
// Requests without an owner are rejected; an unknown tier degrades to free
// rather than failing, so a rollout of a new tier name cannot lock users out.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if ownerID == "" {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}
		tier := domain.Tier(strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Tier"))))
		if !tier.Valid() {
			tier = domain.TierFree
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
		ctx = context.WithValue(ctx, tierKey, tier)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerIDFromContext returns the authenticated owner id, or "".
func OwnerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerIDKey).(string); ok {
		return v
	}
	return ""
}

// TierFromContext returns the caller's tier; absent means free.
func TierFromContext(ctx context.Context) domain.Tier {
	if v, ok := ctx.Value(tierKey).(domain.Tier); ok {
		return v
	}
	return domain.TierFree
}

// ContextWithIdentity injects an identity directly, for tests and internal
// callers that bypass the HTTP layer.
func ContextWithIdentity(ctx context.Context, ownerID string, tier domain.Tier) context.Context {
	if strings.TrimSpace(ownerID) == "" {
		return ctx
	}
	ctx = context.WithValue(ctx, ownerIDKey, ownerID)
	return context.WithValue(ctx, tierKey, tier)
}
