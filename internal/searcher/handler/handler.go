package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/bookindex"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/predicate"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/unified"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
)

const (
	PrincipalHeader = "X-Principal"
	SiteHeader      = "X-Site"
)

type Searcher interface {
	Search(ctx context.Context, req unified.Request) (*unified.Response, error)
}

type BookSearcher interface {
	SuggestAndSearch(ctx context.Context, query string, opts bookindex.Options, req predicate.Request) (*bookindex.Results, error)
}

type Config struct {
	DefaultLimit int
	MaxResults   int
	QuickLimit   int
}

type Handler struct {
	searcher Searcher
	books    BookSearcher
	cache    *cache.QueryCache
	cfg      Config
	logger   *slog.Logger
}

// New builds the search handler. books and queryCache may be nil.
func New(searcher Searcher, books BookSearcher, queryCache *cache.QueryCache, cfg Config) *Handler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if cfg.QuickLimit <= 0 {
		cfg.QuickLimit = 10
	}
	return &Handler{
		searcher: searcher,
		books:    books,
		cache:    queryCache,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/quick", h.QuickSearch)
	mux.HandleFunc("GET /api/v1/books/suggest", h.Suggest)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

// Search handles GET /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, false, h.cfg.DefaultLimit)
}

// QuickSearch handles GET /api/v1/search/quick: the final word of q is
// completed as a prefix.
func (h *Handler) QuickSearch(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, true, h.cfg.QuickLimit)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, typeahead bool, defaultLimit int) {
	start := time.Now()
	ctx, principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	log := logger.FromContext(ctx)

	q := r.URL.Query()
	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, offset, err := h.paging(q.Get("limit"), q.Get("offset"), defaultLimit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.searcher.Search(ctx, unified.Request{
		Principal:    principal,
		Site:         r.Header.Get(SiteHeader),
		Term:         query,
		ContentTypes: splitList(q.Get("types")),
		Packages:     splitList(q.Get("packages")),
		Limit:        limit,
		Offset:       offset,
		Typeahead:    typeahead,
	})
	if err != nil {
		h.fail(w, log, "search failed", query, err)
		return
	}
	log.Info("search completed",
		"query", query,
		"typeahead", typeahead,
		"hit_count", resp.HitCount,
		"returned", len(resp.Order),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// Suggest handles GET /api/v1/books/suggest: did-you-mean over the book
// packages.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	if h.books == nil {
		h.writeError(w, http.StatusServiceUnavailable, "book index is disabled")
		return
	}
	ctx, principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	log := logger.FromContext(ctx)
	q := r.URL.Query()
	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, offset, err := h.paging(q.Get("limit"), q.Get("offset"), h.cfg.DefaultLimit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.books.SuggestAndSearch(ctx, query, bookindex.Options{
		Packages: splitList(q.Get("packages")),
		Limit:    limit,
		Offset:   offset,
	}, predicate.Request{Principal: principal, Site: r.Header.Get(SiteHeader)})
	if err != nil {
		h.fail(w, log, "suggest failed", query, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops the cached searches of ?principal=, or all of them.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	var err error
	if p := r.URL.Query().Get("principal"); p != "" {
		err = h.cache.InvalidatePrincipal(r.Context(), p)
	} else {
		err = h.cache.Invalidate(r.Context())
	}
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (context.Context, string, bool) {
	principal := strings.TrimSpace(r.Header.Get(PrincipalHeader))
	if principal == "" {
		h.writeError(w, http.StatusUnauthorized, "missing "+PrincipalHeader+" header")
		return nil, "", false
	}
	return logger.WithPrincipal(r.Context(), principal), principal, true
}

func (h *Handler) paging(limitStr, offsetStr string, defaultLimit int) (int, int, error) {
	limit := defaultLimit
	if limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
		limit = min(parsed, h.cfg.MaxResults)
	}
	offset := 0
	if offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}

func (h *Handler) fail(w http.ResponseWriter, log *slog.Logger, msg, query string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, "query", query, "error", err)
		h.writeError(w, status, "search failed")
		return
	}
	log.Info(msg, "query", query, "error", err)
	h.writeError(w, status, err.Error())
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
