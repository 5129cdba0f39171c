// Package router wires the gateway routes and middleware chain.
package router

import (
	"net/http"

	gwhandler "github.com/Adithya-Monish-Kumar-K/entity-search/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/entity-search/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/middleware"
)

type Config struct {
	DefaultRateLimit int
	AllowedOrigins   []string
}

// New builds the gateway handler.
//
// Route table:
//
//	GET  /api/v1/search            -> searcher
//	GET  /api/v1/search/quick      -> searcher
//	GET  /api/v1/books/suggest     -> searcher
//	GET  /api/v1/cache/stats       -> searcher
//	POST /api/v1/cache/invalidate  -> searcher, own principal only
//	POST /api/v1/events            -> ingestion, own creator only
//	GET  /api/v1/whoami
//	GET  /health/live, /health/ready
//
// Middleware, outermost first: RequestID, Metrics, CORS, Auth, RateLimit.
func New(cfg Config, h *gwhandler.Handler, checker *health.Checker, validator gwmw.KeyValidator, limiter gwmw.Limiter, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/quick", h.Search)
	mux.HandleFunc("GET /api/v1/books/suggest", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("POST /api/v1/events", h.Events)
	mux.HandleFunc("GET /api/v1/whoami", h.WhoAmI)

	var chain http.Handler = mux
	chain = gwmw.RateLimit(limiter, cfg.DefaultRateLimit)(chain)
	chain = gwmw.Auth(validator)(chain)
	chain = gwmw.CORS(gwmw.NewCORSConfig(cfg.AllowedOrigins))(chain)
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = pkgmw.RequestID(chain)
	return chain
}
