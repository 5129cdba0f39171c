// Package middleware holds the gateway's request filters: API key
// authentication, per-key rate limiting and CORS.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/auth/apikey"
	searchhandler "github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
)

type contextKey struct{}

// KeyValidator resolves a raw API key.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// Auth validates the request's API key and pins X-Principal to the key's
// principal. A client-supplied X-Principal is always discarded. Health
// endpoints are exempt.
func Auth(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(searchhandler.PrincipalHeader)
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := validator.Validate(r.Context(), key)
			switch {
			case errors.Is(err, apikey.ErrInvalidKey):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, apikey.ErrExpiredKey):
				writeError(w, http.StatusUnauthorized, "expired api key")
				return
			case err != nil:
				logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}

			r.Header.Set(searchhandler.PrincipalHeader, info.Principal)
			ctx := context.WithValue(r.Context(), contextKey{}, info)
			ctx = logger.WithPrincipal(ctx, info.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyInfo returns the KeyInfo Auth stored in ctx, or nil.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(contextKey{}).(*apikey.KeyInfo)
	return info
}

// extractAPIKey prefers Authorization: Bearer, then X-API-Key, then ?api_key=.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
