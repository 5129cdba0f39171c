// Package handler forwards authenticated requests to the searcher and
// ingestion services. By the time a request arrives here the Auth middleware
// has pinned X-Principal, so the handlers only enforce that a caller acts on
// its own entity.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	searchhandler "github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/health"
)

const maxEventBytes = 2 << 20

// Config holds the URLs of the backend services.
type Config struct {
	SearcherURL  string
	IngestionURL string
}

type Handler struct {
	searcher  *url.URL
	search    *httputil.ReverseProxy
	ingestion *httputil.ReverseProxy
	client    *http.Client
	logger    *slog.Logger
}

func New(cfg Config) (*Handler, error) {
	searcher, err := url.Parse(cfg.SearcherURL)
	if err != nil {
		return nil, fmt.Errorf("parsing searcher url: %w", err)
	}
	ingest, err := url.Parse(cfg.IngestionURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ingestion url: %w", err)
	}
	h := &Handler{
		searcher: searcher,
		client:   &http.Client{Timeout: 2 * time.Second},
		logger:   slog.Default().With("component", "gateway-handler"),
	}
	h.search = h.newProxy(searcher)
	h.ingestion = h.newProxy(ingest)
	return h, nil
}

func (h *Handler) newProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.logger.Error("backend unavailable", "backend", target.Host, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backend unavailable"})
	}
	return proxy
}

// Search forwards search, quick search and suggestion requests.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	h.search.ServeHTTP(w, r)
}

// CacheStats forwards to the searcher's cache statistics.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.search.ServeHTTP(w, r)
}

// CacheInvalidate drops only the caller's own cached searches.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("principal", r.Header.Get(searchhandler.PrincipalHeader))
	r.URL.RawQuery = q.Encode()
	h.search.ServeHTTP(w, r)
}

// Events forwards a content change after checking that its creator is the
// authenticated principal.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(searchhandler.PrincipalHeader)
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}
	var req ingestion.EventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Creator != principal {
		h.logger.Warn("rejected event for foreign creator", "principal", principal, "creator", req.Creator)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "creator must be the authenticated principal"})
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	h.ingestion.ServeHTTP(w, r)
}

// WhoAmI reports the key the request was authenticated with.
func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	info := middleware.GetKeyInfo(r.Context())
	if info == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SearcherCheck probes the searcher's readiness endpoint.
func (h *Handler) SearcherCheck(ctx context.Context) health.ComponentHealth {
	target := h.searcher.JoinPath("/health/ready").String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return health.Down(err.Error())
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return health.Down(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return health.Down(resp.Status)
	}
	return health.Up("")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
