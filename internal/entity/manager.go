// Package entity owns the per-entity catalogs and is the single point of
// mutation and query for an entity's searchable content. Entities never share
// catalogs, so dropping one touches only its own data.
package entity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/access"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/intid"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/predicate"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/resilience"
)

// Config tunes catalogs, ranking and result shaping.
type Config struct {
	NgramMinSize   int
	NgramMaxSize   int
	Namespace      string
	Ranker         ranker.Ranker
	SnippetBefore  int
	SnippetAfter   int
	CatalogTimeout time.Duration
}

// Options narrows a search.
type Options struct {
	// ContentTypes restricts the search to these catalogs; empty means all.
	ContentTypes []string
	// Limit caps the page size; <= 0 returns every visible hit.
	Limit     int
	Offset    int
	Typeahead bool
	// Predicate overrides the default Accessible filter.
	Predicate predicate.Predicate
}

// Results is one page of visible hits. HitCount counts every visible hit,
// not just the page.
type Results struct {
	Query    string         `json:"query"`
	HitCount int            `json:"hit_count"`
	Hits     []executor.Hit `json:"hits"`
	Dangling int            `json:"-"`
}

type entityCatalogs struct {
	catalogs *xsync.MapOf[string, *catalog.Catalog]
}

type Manager struct {
	cfg       Config
	schemas   *catalog.Registry
	resolver  intid.Resolver
	evaluator access.Evaluator
	entities  *xsync.MapOf[string, *entityCatalogs]
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewManager(cfg Config, schemas *catalog.Registry, resolver intid.Resolver, evaluator access.Evaluator, m *metrics.Metrics) *Manager {
	if cfg.Ranker == nil {
		cfg.Ranker = ranker.Cosine{}
	}
	if cfg.SnippetBefore == 0 && cfg.SnippetAfter == 0 {
		cfg.SnippetBefore, cfg.SnippetAfter = executor.DefaultSnippetBefore, executor.DefaultSnippetAfter
	}
	return &Manager{
		cfg:       cfg,
		schemas:   schemas,
		resolver:  resolver,
		evaluator: evaluator,
		entities:  xsync.NewMapOf[string, *entityCatalogs](),
		metrics:   m,
		logger:    slog.Default().With("component", "entity-manager"),
	}
}

// GetOrCreate returns the catalog of typ for entity, creating it on first use.
func (m *Manager) GetOrCreate(entity, typ string) (*catalog.Catalog, error) {
	schema, err := m.schemas.Lookup(typ)
	if err != nil {
		return nil, err
	}
	ec, _ := m.entities.LoadOrCompute(entity, func() *entityCatalogs {
		return &entityCatalogs{catalogs: xsync.NewMapOf[string, *catalog.Catalog]()}
	})
	c, loaded := ec.catalogs.LoadOrCompute(typ, func() *catalog.Catalog {
		return catalog.New(schema, catalog.Options{
			NgramMinSize: m.cfg.NgramMinSize,
			NgramMaxSize: m.cfg.NgramMaxSize,
		})
	})
	if !loaded {
		m.logger.Debug("catalog created", "entity", entity, "content_type", typ)
		if m.metrics != nil {
			m.metrics.CatalogsActive.Inc()
		}
	}
	return c, nil
}

// Catalog returns an existing catalog without creating one.
func (m *Manager) Catalog(entity, typ string) (*catalog.Catalog, bool) {
	ec, ok := m.entities.Load(entity)
	if !ok {
		return nil, false
	}
	return ec.catalogs.Load(typ)
}

// IndexContent indexes obj in entity's catalog for typ. It returns false
// without error for an empty object.
func (m *Manager) IndexContent(ctx context.Context, entity, typ string, obj *content.Object) (bool, error) {
	if obj.IsEmpty() {
		return false, nil
	}
	c, err := m.GetOrCreate(entity, typ)
	if err != nil {
		m.observe("index", err)
		return false, err
	}
	id, err := m.resolver.ResolveID(ctx, obj)
	if err != nil {
		m.observe("index", err)
		return false, fmt.Errorf("resolving id for %s: %w", obj.Key, err)
	}
	c.IndexDoc(id, obj)
	m.observe("index", nil)
	return true, nil
}

// UpdateContent replaces the indexed fields of obj.
func (m *Manager) UpdateContent(ctx context.Context, entity, typ string, obj *content.Object) (bool, error) {
	if obj.IsEmpty() {
		return false, nil
	}
	c, err := m.GetOrCreate(entity, typ)
	if err != nil {
		m.observe("update", err)
		return false, err
	}
	id, err := m.resolver.ResolveID(ctx, obj)
	if err != nil {
		m.observe("update", err)
		return false, fmt.Errorf("resolving id for %s: %w", obj.Key, err)
	}
	c.ReindexDoc(id, obj)
	m.observe("update", nil)
	return true, nil
}

// DeleteContent removes obj from entity's catalog for typ. A document that
// is already absent is not an error.
func (m *Manager) DeleteContent(ctx context.Context, entity, typ string, obj *content.Object) (bool, error) {
	if obj.IsEmpty() {
		return false, nil
	}
	if _, err := m.schemas.Lookup(typ); err != nil {
		m.observe("delete", err)
		return false, err
	}
	c, ok := m.Catalog(entity, typ)
	if !ok {
		return false, nil
	}
	id, found, err := m.resolver.LookupID(ctx, obj.Key)
	if err != nil {
		m.observe("delete", err)
		return false, fmt.Errorf("looking up id for %s: %w", obj.Key, err)
	}
	if !found {
		return false, nil
	}
	removed := c.UnindexDoc(id)
	m.observe("delete", nil)
	return removed, nil
}

func (m *Manager) observe(op string, err error) {
	if m.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.metrics.DocsMutatedTotal.WithLabelValues(op, result).Inc()
}

// Search evaluates query over entity's catalogs, filters the ranked hits
// through the predicate in score order and returns the requested page.
func (m *Manager) Search(ctx context.Context, entity, query string, opts Options, req predicate.Request) (*Results, error) {
	start := time.Now()
	results, err := m.search(ctx, entity, query, opts, req)
	if m.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.metrics.SearchQueriesTotal.WithLabelValues("entity", status).Inc()
		m.metrics.SearchLatency.WithLabelValues("entity").Observe(time.Since(start).Seconds())
		if err == nil {
			m.metrics.SearchResultsCount.Observe(float64(results.HitCount))
			m.metrics.SearchDanglingTotal.Add(float64(results.Dangling))
		}
	}
	return results, err
}

func (m *Manager) search(ctx context.Context, entity, query string, opts Options, req predicate.Request) (*Results, error) {
	results := &Results{Query: query, Hits: []executor.Hit{}}
	node, err := parser.Parse(query, parser.Options{Typeahead: opts.Typeahead})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidQuery, err)
	}
	if node == nil {
		return results, nil
	}
	raw, err := m.RawHits(ctx, entity, node, opts.ContentTypes)
	if err != nil {
		return nil, err
	}

	pred := opts.Predicate
	if pred == nil {
		pred = predicate.Accessible{Evaluator: m.evaluator}
	}
	if req.Query == "" {
		req.Query = query
	}
	visible := make([]executor.Hit, 0, len(raw))
	for _, hit := range raw {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("filtering hits: %w", err)
		}
		obj, err := m.resolver.ResolveObject(ctx, hit.DocID)
		if err != nil || obj == nil {
			results.Dangling++
			m.logger.Debug("skipping unresolvable hit", "entity", entity, "doc_id", hit.DocID, "error", err)
			continue
		}
		if pred.Allow(ctx, obj, hit.Score, req) {
			visible = append(visible, hit)
		}
	}

	results.HitCount = len(visible)
	results.Hits = merger.Page(visible, opts.Offset, opts.Limit)
	for i := range results.Hits {
		results.Hits[i].FillSnippet(m.cfg.SnippetBefore, m.cfg.SnippetAfter)
	}
	m.logger.Debug("search executed",
		"entity", entity,
		"query", query,
		"raw_hits", len(raw),
		"visible", results.HitCount,
		"dangling", results.Dangling,
	)
	return results, nil
}

// RawHits evaluates node over the selected catalogs of entity in parallel
// and merges the ranked hits. No visibility filtering is applied.
func (m *Manager) RawHits(ctx context.Context, entity string, node parser.Node, types []string) ([]executor.Hit, error) {
	catalogs := m.selectCatalogs(entity, types)
	if len(catalogs) == 0 {
		return nil, nil
	}
	eo := executor.Options{
		Ranker:        m.cfg.Ranker,
		SnippetBefore: m.cfg.SnippetBefore,
		SnippetAfter:  m.cfg.SnippetAfter,
	}
	lists := make([][]executor.Hit, len(catalogs))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range catalogs {
		g.Go(func() error {
			local, err := resilience.Timed(gctx, m.cfg.CatalogTimeout, "catalog search", func(context.Context) ([]executor.Hit, error) {
				var hits []executor.Hit
				c.Read(func(v catalog.View) {
					hits = executor.Search(v, node, eo)
				})
				return hits, nil
			})
			if err != nil {
				return fmt.Errorf("searching %s catalog of %s: %w", c.Type(), entity, err)
			}
			for j := range local {
				local[j].Key = intid.Key(local[j].DocID, m.cfg.Namespace)
			}
			lists[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merger.Merge(lists, 0), nil
}

func (m *Manager) selectCatalogs(entity string, types []string) []*catalog.Catalog {
	ec, ok := m.entities.Load(entity)
	if !ok {
		return nil
	}
	var out []*catalog.Catalog
	if len(types) == 0 {
		ec.catalogs.Range(func(_ string, c *catalog.Catalog) bool {
			out = append(out, c)
			return true
		})
	} else {
		for _, typ := range types {
			if c, ok := ec.catalogs.Load(typ); ok {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// VerifyAccess reports whether principal may see obj. It is evaluated at
// query time so permission changes apply without reindexing.
func (m *Manager) VerifyAccess(ctx context.Context, obj *content.Object, principal string) bool {
	return access.Verify(ctx, m.evaluator, principal, obj)
}

// Maintain prunes every doc id whose object can no longer be resolved and
// returns how many were removed.
func (m *Manager) Maintain(ctx context.Context) (int, error) {
	pruned := 0
	var err error
	m.entities.Range(func(entity string, ec *entityCatalogs) bool {
		ec.catalogs.Range(func(typ string, c *catalog.Catalog) bool {
			if err = ctx.Err(); err != nil {
				return false
			}
			for _, id := range c.IDs() {
				obj, rerr := m.resolver.ResolveObject(ctx, id)
				if rerr == nil && obj != nil {
					continue
				}
				m.logger.Warn("pruning dangling doc id",
					"entity", entity,
					"content_type", typ,
					"doc_id", id,
					"error", rerr,
				)
				if c.UnindexDoc(id) {
					pruned++
				}
			}
			return true
		})
		return err == nil
	})
	if m.metrics != nil {
		m.metrics.DocsPrunedTotal.Add(float64(pruned))
	}
	if err != nil {
		return pruned, fmt.Errorf("maintenance interrupted: %w", err)
	}
	return pruned, nil
}

// DocCount returns the number of documents in entity's catalog for typ.
func (m *Manager) DocCount(entity, typ string) int {
	c, ok := m.Catalog(entity, typ)
	if !ok {
		return 0
	}
	return c.DocCount()
}

// ContentTypes returns the content types entity has catalogs for.
func (m *Manager) ContentTypes(entity string) []string {
	ec, ok := m.entities.Load(entity)
	if !ok {
		return nil
	}
	var types []string
	ec.catalogs.Range(func(typ string, _ *catalog.Catalog) bool {
		types = append(types, typ)
		return true
	})
	sort.Strings(types)
	return types
}

// Entities returns every entity with at least one catalog.
func (m *Manager) Entities() []string {
	var out []string
	m.entities.Range(func(entity string, _ *entityCatalogs) bool {
		out = append(out, entity)
		return true
	})
	sort.Strings(out)
	return out
}

// DropEntity discards every catalog of entity.
func (m *Manager) DropEntity(entity string) bool {
	ec, ok := m.entities.LoadAndDelete(entity)
	if !ok {
		return false
	}
	if m.metrics != nil {
		m.metrics.CatalogsActive.Sub(float64(ec.catalogs.Size()))
	}
	m.logger.Info("entity dropped", "entity", entity)
	return true
}
