// Package unified answers a principal's search across their own indexed
// content and the published book packages in one ranked page.
package unified

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/bookindex"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/entity"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/predicate"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/tracing"
)

// Request is one façade search. ContentTypes may name entity content types
// and catalog.TypeBookContent; empty means everything.
type Request struct {
	Principal    string
	Site         string
	Term         string
	ContentTypes []string
	Packages     []string
	Limit        int
	Offset       int
	Typeahead    bool
}

// Item is the rendered view of one hit.
type Item struct {
	Snippet      string    `json:"snippet"`
	LastModified time.Time `json:"last_modified"`
	Type         string    `json:"type"`
	Class        string    `json:"class,omitempty"`
	ContainerID  string    `json:"container_id,omitempty"`
	Score        float64   `json:"score"`
}

// Response is one page. Items is keyed by document key; Order lists the
// keys of the page in rank order.
type Response struct {
	Query    string          `json:"query"`
	HitCount int             `json:"hit_count"`
	Items    map[string]Item `json:"items"`
	Order    []string        `json:"order"`
}

// Cache memoises responses per principal.
type Cache interface {
	GetOrCompute(ctx context.Context, principal, fingerprint string, compute func() (*Response, error)) (*Response, bool, error)
}

type Config struct {
	// MaxResults caps the page size when positive.
	MaxResults int
}

type Service struct {
	cfg      Config
	entities *entity.Manager
	books    *bookindex.Library
	cache    Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds the façade. books and cache may be nil.
func New(cfg Config, entities *entity.Manager, books *bookindex.Library, cache Cache, m *metrics.Metrics) *Service {
	return &Service{
		cfg:      cfg,
		entities: entities,
		books:    books,
		cache:    cache,
		metrics:  m,
		logger:   slog.Default().With("component", "unified-search"),
	}
}

// Search ranks the principal's visible content and readable book units
// together by score and returns the requested page.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := s.search(ctx, req)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			if errors.Is(err, apperrors.ErrInvalidQuery) || errors.Is(err, apperrors.ErrInvalidInput) {
				status = "invalid"
			}
		}
		s.metrics.SearchQueriesTotal.WithLabelValues("unified", status).Inc()
		s.metrics.SearchLatency.WithLabelValues("unified").Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func (s *Service) search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Principal) == "" {
		return nil, fmt.Errorf("principal is required: %w", apperrors.ErrInvalidInput)
	}
	if req.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative: %w", apperrors.ErrInvalidInput)
	}
	if s.cfg.MaxResults > 0 && (req.Limit <= 0 || req.Limit > s.cfg.MaxResults) {
		req.Limit = s.cfg.MaxResults
	}
	node, err := parser.Parse(req.Term, parser.Options{Typeahead: req.Typeahead})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidQuery, err)
	}
	if node == nil {
		return &Response{Query: req.Term, Items: map[string]Item{}, Order: []string{}}, nil
	}
	if s.cache == nil {
		return s.compute(ctx, req)
	}
	resp, hit, err := s.cache.GetOrCompute(ctx, req.Principal, fingerprint(req, node), func() (*Response, error) {
		return s.compute(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("unified search served", "cache_hit", hit, "hits", resp.HitCount)
	return resp, nil
}

func (s *Service) compute(ctx context.Context, req Request) (*Response, error) {
	traceID := middleware.GetRequestID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx, span := tracing.StartSpan(ctx, "unified.search", traceID)
	defer func() {
		span.End()
		span.Log()
	}()
	span.SetAttr("principal", req.Principal)

	entityTypes, withBooks := splitTypes(req.ContentTypes)
	withEntities := len(req.ContentTypes) == 0 || len(entityTypes) > 0
	preq := predicate.Request{Principal: req.Principal, Site: req.Site, Query: req.Term}

	var mine, books []executor.Hit
	g, gctx := errgroup.WithContext(ctx)
	if withEntities && s.entities != nil {
		g.Go(func() error {
			cctx, child := tracing.StartChildSpan(gctx, "entity.search")
			defer child.End()
			res, err := s.entities.Search(cctx, req.Principal, req.Term, entity.Options{
				ContentTypes: entityTypes,
				Typeahead:    req.Typeahead,
			}, preq)
			if err != nil {
				return fmt.Errorf("searching content of %s: %w", req.Principal, err)
			}
			child.SetAttr("hits", res.HitCount)
			mine = res.Hits
			return nil
		})
	}
	if withBooks && s.books != nil {
		g.Go(func() error {
			cctx, child := tracing.StartChildSpan(gctx, "books.search")
			defer child.End()
			res, err := s.books.Search(cctx, req.Term, bookindex.Options{
				Packages:  req.Packages,
				Typeahead: req.Typeahead,
			}, preq)
			if err != nil {
				return fmt.Errorf("searching books: %w", err)
			}
			child.SetAttr("hits", res.HitCount)
			books = res.Hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetAttr("error", err.Error())
		return nil, err
	}

	merged := merger.Merge([][]executor.Hit{mine, books}, 0)
	page := merger.Page(merged, req.Offset, req.Limit)
	resp := &Response{
		Query:    req.Term,
		HitCount: len(merged),
		Items:    make(map[string]Item, len(page)),
		Order:    make([]string, 0, len(page)),
	}
	for _, h := range page {
		resp.Items[h.Key] = Item{
			Snippet:      h.Snippet,
			LastModified: h.LastModified,
			Type:         h.Type,
			Class:        h.Class,
			ContainerID:  h.ContainerID,
			Score:        h.Score,
		}
		resp.Order = append(resp.Order, h.Key)
	}
	span.SetAttr("hit_count", resp.HitCount)
	return resp, nil
}

// splitTypes separates entity content types from the book content type.
func splitTypes(types []string) (entityTypes []string, withBooks bool) {
	if len(types) == 0 {
		return nil, true
	}
	for _, t := range types {
		if t == catalog.TypeBookContent {
			withBooks = true
			continue
		}
		entityTypes = append(entityTypes, t)
	}
	return entityTypes, withBooks
}

// fingerprint identifies a request for caching. It uses the normalised
// query so spacing and case do not split entries.
func fingerprint(req Request, node parser.Node) string {
	types := slices.Clone(req.ContentTypes)
	sort.Strings(types)
	pkgs := slices.Clone(req.Packages)
	sort.Strings(pkgs)
	return strings.Join([]string{
		parser.String(node),
		"site=" + req.Site,
		"types=" + strings.Join(types, ","),
		"pkgs=" + strings.Join(pkgs, ","),
		"limit=" + strconv.Itoa(req.Limit),
		"offset=" + strconv.Itoa(req.Offset),
	}, "|")
}
