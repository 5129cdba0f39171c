// Package bookindex is the static index over published book content. Each
// content package gets its own catalog, built once per release with the same
// primitives as the per-entity catalogs, and a spelling dictionary of its
// terms for did-you-mean suggestions.
package bookindex

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/pkg/symspell"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
)

// Unit is one addressable piece of book content, keyed by its NTIID.
type Unit = segment.Unit

// Builder collects the units of one package.
type Builder struct {
	pkg   string
	opts  catalog.Options
	units map[string]Unit
	dict  []segment.DictEntry
}

func NewBuilder(pkg string, opts catalog.Options) *Builder {
	return &Builder{pkg: pkg, opts: opts, units: make(map[string]Unit)}
}

// Add stages u. A unit re-added under the same NTIID replaces the earlier one.
func (b *Builder) Add(u Unit) error {
	if strings.TrimSpace(u.NTIID) == "" {
		return fmt.Errorf("unit without ntiid: %w", apperrors.ErrInvalidInput)
	}
	if u.Package == "" {
		u.Package = b.pkg
	}
	if u.Package != b.pkg {
		return fmt.Errorf("unit %s belongs to %s, not %s: %w", u.NTIID, u.Package, b.pkg, apperrors.ErrInvalidInput)
	}
	b.units[u.NTIID] = u
	return nil
}

// UseDictionary seeds the spelling dictionary from a persisted one instead
// of deriving it from the built catalog.
func (b *Builder) UseDictionary(dict []segment.DictEntry) {
	b.dict = dict
}

func (b *Builder) Len() int {
	return len(b.units)
}

// Build indexes the staged units. Doc ids follow NTIID order, so a rebuild
// of the same units yields the same ids.
func (b *Builder) Build() (*Index, error) {
	schema, err := catalog.DefaultRegistry().Lookup(catalog.TypeBookContent)
	if err != nil {
		return nil, err
	}
	ntiids := make([]string, 0, len(b.units))
	for id := range b.units {
		ntiids = append(ntiids, id)
	}
	sort.Strings(ntiids)

	idx := &Index{
		pkg:     b.pkg,
		catalog: catalog.New(schema, b.opts),
		units:   make([]Unit, 0, len(ntiids)),
		byNTIID: make(map[string]uint32, len(ntiids)),
		dict:    symspell.New(),
		builtAt: time.Now().UTC(),
	}
	for i, ntiid := range ntiids {
		u := b.units[ntiid]
		id := uint32(i + 1)
		idx.units = append(idx.units, u)
		idx.byNTIID[ntiid] = id
		idx.catalog.IndexDoc(id, unitObject(u))
	}

	if b.dict != nil {
		for _, e := range b.dict {
			idx.dict.Add(e.Term, e.Frequency)
		}
	} else {
		for _, e := range idx.Dictionary() {
			idx.dict.Add(e.Term, e.Frequency)
		}
	}
	return idx, nil
}

func unitObject(u Unit) *content.Object {
	return &content.Object{
		Key:          u.NTIID,
		Type:         catalog.TypeBookContent,
		Class:        u.Class,
		ContainerID:  u.Package,
		Title:        u.Title,
		Body:         u.Content,
		LastModified: u.LastModified,
	}
}

// Index is an immutable, built package index.
type Index struct {
	pkg     string
	catalog *catalog.Catalog
	units   []Unit
	byNTIID map[string]uint32
	dict    *symspell.Dictionary
	builtAt time.Time
}

func (x *Index) Package() string {
	return x.pkg
}

func (x *Index) Len() int {
	return len(x.units)
}

func (x *Index) BuiltAt() time.Time {
	return x.builtAt
}

// Units returns the indexed units in doc-id order.
func (x *Index) Units() []Unit {
	return x.units
}

// Object returns the content object of doc id, or nil.
func (x *Index) Object(id uint32) *content.Object {
	if id == 0 || int(id) > len(x.units) {
		return nil
	}
	return unitObject(x.units[id-1])
}

// Lookup returns the doc id of an NTIID.
func (x *Index) Lookup(ntiid string) (uint32, bool) {
	id, ok := x.byNTIID[ntiid]
	return id, ok
}

// Dictionary derives term and document frequencies from the content field.
func (x *Index) Dictionary() []segment.DictEntry {
	var out []segment.DictEntry
	x.catalog.Read(func(v catalog.View) {
		for _, entry := range v.Content().Snapshot() {
			freq := 0
			for _, p := range entry.Postings {
				freq += p.Frequency
			}
			out = append(out, segment.DictEntry{Term: entry.Term, Frequency: freq, DocFreq: len(entry.Postings)})
		}
	})
	return out
}

// HasTerm reports whether term occurs anywhere in the package.
func (x *Index) HasTerm(term string) bool {
	return x.dict.Contains(term)
}

// Suggest returns spelling corrections for term.
func (x *Index) Suggest(term string, limit int) []symspell.Suggestion {
	return x.dict.Suggest(term, limit)
}

// Search evaluates n and returns ranked hits keyed by NTIID.
func (x *Index) Search(n parser.Node, opts executor.Options) []executor.Hit {
	var hits []executor.Hit
	x.catalog.Read(func(v catalog.View) {
		hits = executor.Search(v, n, opts)
	})
	for i := range hits {
		hits[i].Key = hits[i].ObjectKey
	}
	return hits
}
