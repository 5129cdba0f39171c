// Package catalog aggregates the field indexes of one content type for one
// owner (an entity or a book package). A catalog stores only doc ids and the
// few fields needed to rebuild a snippet, never the object itself.
package catalog

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/index"
)

// Options sizes the ngram field.
type Options struct {
	NgramMinSize int
	NgramMaxSize int
}

// Stored is the per-document data kept for result shaping.
type Stored struct {
	Key          string
	Type         string
	Class        string
	ContainerID  string
	LastModified time.Time
	Text         string
}

// Catalog is safe for concurrent use. Mutations take the write lock, and
// Read runs a whole evaluation under the read lock, so a search never
// observes a half-applied mutation.
type Catalog struct {
	mu     sync.RWMutex
	schema Schema
	fields map[string]index.FieldIndex
	corpus *roaring.Bitmap
	stored map[uint32]Stored
}

func New(schema Schema, opts Options) *Catalog {
	c := &Catalog{
		schema: schema,
		fields: make(map[string]index.FieldIndex, len(schema.Fields)),
		corpus: roaring.New(),
		stored: make(map[uint32]Stored),
	}
	for _, f := range schema.Fields {
		c.fields[f.Name] = newFieldIndex(f.Kind, opts)
	}
	return c
}

func newFieldIndex(kind Kind, opts Options) index.FieldIndex {
	switch kind {
	case KindText:
		return index.NewTextIndex()
	case KindNgram:
		return index.NewNgramIndex(opts.NgramMinSize, opts.NgramMaxSize)
	case KindKeyword:
		return index.NewKeywordIndex()
	case KindExact:
		return index.NewExactIndex()
	case KindNumeric:
		return index.NewNumericIndex()
	default:
		panic("catalog: unknown field kind " + kind.String())
	}
}

// Type returns the content type of the catalog.
func (c *Catalog) Type() string {
	return c.schema.Type
}

// IndexDoc indexes every field of obj under id. It reports whether id was
// new to the catalog; indexing a known id replaces its entries.
func (c *Catalog) IndexDoc(id uint32, obj *content.Object) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.schema.Fields {
		c.fields[f.Name].IndexDoc(id, f.Extract(obj))
	}
	c.store(id, obj)
	return c.corpus.CheckedAdd(id)
}

// ReindexDoc replaces the entries of id with the fields of obj.
func (c *Catalog) ReindexDoc(id uint32, obj *content.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.schema.Fields {
		c.fields[f.Name].ReindexDoc(id, f.Extract(obj))
	}
	c.store(id, obj)
	c.corpus.Add(id)
}

// UnindexDoc removes id from every field and reports whether it was present.
func (c *Catalog) UnindexDoc(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.corpus.Contains(id) {
		return false
	}
	for _, idx := range c.fields {
		idx.UnindexDoc(id)
	}
	delete(c.stored, id)
	c.corpus.Remove(id)
	return true
}

func (c *Catalog) store(id uint32, obj *content.Object) {
	c.stored[id] = Stored{
		Key:          obj.Key,
		Type:         c.schema.Type,
		Class:        obj.Class,
		ContainerID:  obj.ContainerID,
		LastModified: obj.LastModified,
		Text:         c.schema.Text(obj),
	}
}

// DocCount returns the number of documents in the catalog.
func (c *Catalog) DocCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.corpus.GetCardinality())
}

// IDs returns a snapshot of the catalog's doc ids.
func (c *Catalog) IDs() []uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.corpus.ToArray()
}

// Read runs fn with a consistent view of the catalog. The view must not
// escape fn.
func (c *Catalog) Read(fn func(v View)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(View{c: c})
}

// View is read access to a catalog held under its read lock.
type View struct {
	c *Catalog
}

func (v View) Type() string {
	return v.c.schema.Type
}

// Content returns the full-text index.
func (v View) Content() *index.TextIndex {
	return v.c.fields[FieldContent].(*index.TextIndex)
}

// Ngrams returns the prefix index.
func (v View) Ngrams() *index.NgramIndex {
	return v.c.fields[FieldNgrams].(*index.NgramIndex)
}

// Field returns a field index by name.
func (v View) Field(name string) (index.FieldIndex, bool) {
	idx, ok := v.c.fields[name]
	return idx, ok
}

// Corpus returns every doc id in the catalog. The bitmap is owned by the
// catalog and must not be modified.
func (v View) Corpus() *roaring.Bitmap {
	return v.c.corpus
}

func (v View) Stored(id uint32) (Stored, bool) {
	s, ok := v.c.stored[id]
	return s, ok
}
