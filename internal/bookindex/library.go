package bookindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/access"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/predicate"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
)

const (
	defaultQuickLimit = 10
	defaultNgramMin   = 3
	defaultNgramMax   = 15
	lockRetryDelay    = 50 * time.Millisecond
)

type Config struct {
	DataDir       string
	NgramMinSize  int
	NgramMaxSize  int
	Ranker        ranker.Ranker
	SnippetBefore int
	SnippetAfter  int
	QuickLimit    int
}

// Options narrows a book search.
type Options struct {
	// Packages restricts the search; empty means every loaded package.
	Packages  []string
	Limit     int
	Offset    int
	Typeahead bool
	// Predicate overrides the default ContentUnit filter.
	Predicate predicate.Predicate
}

// Results is one page of visible book hits. Suggestions maps each unknown
// query term to the correction that was searched instead.
type Results struct {
	Query       string            `json:"query"`
	HitCount    int               `json:"hit_count"`
	Hits        []executor.Hit    `json:"hits"`
	Suggestions map[string]string `json:"suggestions,omitempty"`
}

// Library holds the loaded package indexes. A rebuilt package replaces its
// predecessor atomically; searches in flight keep the index they started on.
type Library struct {
	cfg       Config
	writer    *segment.Writer
	evaluator access.Evaluator
	packages  *xsync.MapOf[string, *Index]
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewLibrary(cfg Config, evaluator access.Evaluator, m *metrics.Metrics) *Library {
	if cfg.Ranker == nil {
		cfg.Ranker = ranker.Cosine{}
	}
	if cfg.SnippetBefore == 0 && cfg.SnippetAfter == 0 {
		cfg.SnippetBefore, cfg.SnippetAfter = executor.DefaultSnippetBefore, executor.DefaultSnippetAfter
	}
	if cfg.NgramMinSize <= 0 {
		cfg.NgramMinSize = defaultNgramMin
	}
	if cfg.NgramMaxSize <= 0 {
		cfg.NgramMaxSize = defaultNgramMax
	}
	if cfg.QuickLimit <= 0 {
		cfg.QuickLimit = defaultQuickLimit
	}
	return &Library{
		cfg:       cfg,
		writer:    segment.NewWriter(cfg.DataDir),
		evaluator: evaluator,
		packages:  xsync.NewMapOf[string, *Index](),
		metrics:   m,
		logger:    slog.Default().With("component", "book-library"),
	}
}

func (l *Library) catalogOptions() catalog.Options {
	return catalog.Options{NgramMinSize: l.cfg.NgramMinSize, NgramMaxSize: l.cfg.NgramMaxSize}
}

// Load reads every segment in the data directory. A corrupt segment is
// logged and skipped; the remaining packages still load.
func (l *Library) Load(ctx context.Context) (int, error) {
	paths, err := segment.List(l.cfg.DataDir)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return loaded, fmt.Errorf("loading book segments: %w", err)
		}
		r, err := segment.OpenReader(path)
		if err != nil {
			l.logger.Error("skipping unreadable segment", "path", path, "error", err)
			continue
		}
		b := NewBuilder(r.Package(), l.catalogOptions())
		for _, u := range r.Units() {
			if err := b.Add(u); err != nil {
				return loaded, fmt.Errorf("loading %s: %w", path, err)
			}
		}
		b.UseDictionary(r.Dictionary())
		idx, err := b.Build()
		if err != nil {
			return loaded, fmt.Errorf("building %s: %w", r.Package(), err)
		}
		l.packages.Store(idx.Package(), idx)
		loaded++
		l.logger.Info("book package loaded",
			"package", idx.Package(),
			"units", idx.Len(),
			"terms", r.Terms(),
			"built_at", r.CreatedAt(),
		)
	}
	l.observePackages()
	return loaded, nil
}

// Rebuild replaces package pkg wholesale with units and persists it. The
// segment write holds an exclusive file lock so concurrent builders of the
// same package serialise.
func (l *Library) Rebuild(ctx context.Context, pkg string, units []Unit) (*Index, error) {
	if pkg == "" {
		return nil, fmt.Errorf("package id is required: %w", apperrors.ErrInvalidInput)
	}
	b := NewBuilder(pkg, l.catalogOptions())
	for _, u := range units {
		if err := b.Add(u); err != nil {
			return nil, err
		}
	}
	idx, err := b.Build()
	if err != nil {
		return nil, err
	}

	if l.cfg.DataDir != "" {
		if err := l.persist(ctx, idx); err != nil {
			return nil, err
		}
	}
	l.packages.Store(pkg, idx)
	l.observePackages()
	l.logger.Info("book package rebuilt", "package", pkg, "units", idx.Len())
	return idx, nil
}

func (l *Library) persist(ctx context.Context, idx *Index) error {
	path := l.writer.Path(idx.Package())
	if err := os.MkdirAll(l.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("creating book data directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("locking segment of %s: %w", idx.Package(), err)
	}
	if !locked {
		return fmt.Errorf("segment of %s is locked by another builder", idx.Package())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			l.logger.Warn("failed to release segment lock", "package", idx.Package(), "error", err)
		}
	}()
	if _, err := l.writer.Write(idx.Package(), idx.Units(), idx.Dictionary()); err != nil {
		return fmt.Errorf("persisting %s: %w", idx.Package(), err)
	}
	return nil
}

// Package returns the loaded index of pkg.
func (l *Library) Package(pkg string) (*Index, bool) {
	return l.packages.Load(pkg)
}

// Packages returns the loaded package ids, sorted.
func (l *Library) Packages() []string {
	var out []string
	l.packages.Range(func(pkg string, _ *Index) bool {
		out = append(out, pkg)
		return true
	})
	sort.Strings(out)
	return out
}

// Remove unloads pkg. Its segment stays on disk.
func (l *Library) Remove(pkg string) bool {
	_, ok := l.packages.LoadAndDelete(pkg)
	if ok {
		l.observePackages()
	}
	return ok
}

func (l *Library) observePackages() {
	if l.metrics != nil {
		l.metrics.BookPackages.Set(float64(l.packages.Size()))
	}
}

// Search runs a full query over the selected packages.
func (l *Library) Search(ctx context.Context, query string, opts Options, req predicate.Request) (*Results, error) {
	start := time.Now()
	node, err := parser.Parse(query, parser.Options{Typeahead: opts.Typeahead})
	if err != nil {
		err = fmt.Errorf("%w: %w", apperrors.ErrInvalidQuery, err)
		l.observe("search", start, err)
		return nil, err
	}
	res, err := l.searchNode(ctx, query, node, opts, req)
	l.observe("search", start, err)
	return res, err
}

// QuickSearch is the typeahead path: the final word is a prefix answered
// from the ngram field and the page defaults to the quick limit.
func (l *Library) QuickSearch(ctx context.Context, query string, opts Options, req predicate.Request) (*Results, error) {
	start := time.Now()
	opts.Typeahead = true
	if opts.Limit <= 0 {
		opts.Limit = l.cfg.QuickLimit
	}
	node, err := parser.Parse(query, parser.Options{Typeahead: true})
	if err != nil {
		err = fmt.Errorf("%w: %w", apperrors.ErrInvalidQuery, err)
		l.observe("quick", start, err)
		return nil, err
	}
	res, err := l.searchNode(ctx, query, node, opts, req)
	l.observe("quick", start, err)
	return res, err
}

// SuggestAndSearch corrects query terms unknown to every selected package
// and searches the corrected query. When no correction applies, or the
// corrected query finds nothing, it falls back to the full search of the
// original query.
func (l *Library) SuggestAndSearch(ctx context.Context, query string, opts Options, req predicate.Request) (*Results, error) {
	start := time.Now()
	node, err := parser.Parse(query, parser.Options{})
	if err != nil {
		err = fmt.Errorf("%w: %w", apperrors.ErrInvalidQuery, err)
		l.observe("suggest", start, err)
		return nil, err
	}
	opts.Typeahead = false
	indexes, err := l.selectPackages(opts.Packages)
	if err != nil {
		l.observe("suggest", start, err)
		return nil, err
	}

	suggestions := l.corrections(indexes, node)
	if len(suggestions) > 0 {
		corrected := parser.Rewrite(node, func(term string) string {
			if fix, ok := suggestions[term]; ok {
				return fix
			}
			return term
		})
		res, err := l.searchNode(ctx, parser.String(corrected), corrected, opts, req)
		if err != nil {
			l.observe("suggest", start, err)
			return nil, err
		}
		if res.HitCount > 0 {
			res.Suggestions = suggestions
			l.observe("suggest", start, nil)
			return res, nil
		}
	}
	res, err := l.searchNode(ctx, query, node, opts, req)
	l.observe("suggest", start, err)
	return res, err
}

// corrections picks, for every positive term absent from all indexes, the
// closest and most frequent dictionary term across them.
func (l *Library) corrections(indexes []*Index, node parser.Node) map[string]string {
	terms, _ := parser.PositiveTerms(node)
	out := make(map[string]string)
	for _, term := range terms {
		if _, done := out[term]; done {
			continue
		}
		known := false
		for _, idx := range indexes {
			if idx.HasTerm(term) {
				known = true
				break
			}
		}
		if known {
			continue
		}
		var best string
		bestDist, bestFreq := 2, 0
		for _, idx := range indexes {
			for _, s := range idx.Suggest(term, 1) {
				if s.Distance < bestDist || (s.Distance == bestDist && (s.Frequency > bestFreq || (s.Frequency == bestFreq && s.Term < best))) {
					best, bestDist, bestFreq = s.Term, s.Distance, s.Frequency
				}
			}
		}
		if best != "" {
			out[term] = best
		}
	}
	return out
}

func (l *Library) selectPackages(pkgs []string) ([]*Index, error) {
	if len(pkgs) == 0 {
		var out []*Index
		for _, pkg := range l.Packages() {
			if idx, ok := l.packages.Load(pkg); ok {
				out = append(out, idx)
			}
		}
		return out, nil
	}
	out := make([]*Index, 0, len(pkgs))
	for _, pkg := range pkgs {
		idx, ok := l.packages.Load(pkg)
		if !ok {
			return nil, fmt.Errorf("package %q: %w", pkg, apperrors.ErrPackageNotFound)
		}
		out = append(out, idx)
	}
	return out, nil
}

// RawHits evaluates node over the selected packages and resolves each hit
// to its content object. No filtering or paging is applied.
func (l *Library) RawHits(ctx context.Context, node parser.Node, pkgs []string) ([]Candidate, error) {
	indexes, err := l.selectPackages(pkgs)
	if err != nil {
		return nil, err
	}
	if node == nil || len(indexes) == 0 {
		return nil, nil
	}
	eo := executor.Options{Ranker: l.cfg.Ranker, SnippetBefore: l.cfg.SnippetBefore, SnippetAfter: l.cfg.SnippetAfter}
	lists := make([][]Candidate, len(indexes))
	for i, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("searching books: %w", err)
		}
		hits := idx.Search(node, eo)
		lists[i] = make([]Candidate, len(hits))
		for j, h := range hits {
			lists[i][j] = Candidate{Hit: h, Object: idx.Object(h.DocID)}
		}
	}
	return merger.MergeFunc(lists, 0, func(c Candidate) executor.Hit { return c.Hit }), nil
}

func (l *Library) searchNode(ctx context.Context, query string, node parser.Node, opts Options, req predicate.Request) (*Results, error) {
	results := &Results{Query: query, Hits: []executor.Hit{}}
	candidates, err := l.RawHits(ctx, node, opts.Packages)
	if err != nil {
		return nil, err
	}
	pred := opts.Predicate
	if pred == nil {
		pred = predicate.ContentUnit{Evaluator: l.evaluator}
	}
	if req.Query == "" {
		req.Query = query
	}
	visible := make([]executor.Hit, 0, len(candidates))
	for _, c := range candidates {
		if pred.Allow(ctx, c.Object, c.Hit.Score, req) {
			visible = append(visible, c.Hit)
		}
	}
	results.HitCount = len(visible)
	results.Hits = merger.Page(visible, opts.Offset, opts.Limit)
	for i := range results.Hits {
		results.Hits[i].FillSnippet(l.cfg.SnippetBefore, l.cfg.SnippetAfter)
	}
	return results, nil
}

// Candidate is an unfiltered book hit with its content object.
type Candidate struct {
	Hit    executor.Hit
	Object *content.Object
}

func (l *Library) observe(op string, start time.Time, err error) {
	if l.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, apperrors.ErrInvalidQuery) {
			status = "invalid"
		}
	}
	l.metrics.SearchQueriesTotal.WithLabelValues("books_"+op, status).Inc()
	l.metrics.SearchLatency.WithLabelValues("books").Observe(time.Since(start).Seconds())
}
