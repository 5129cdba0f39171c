package index

import (
	"cmp"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"
)

// ScalarIndex holds one ordered value per document and answers exact and
// range lookups.
type ScalarIndex[K cmp.Ordered] struct {
	keys    *btree.BTreeG[K]
	values  map[K]*roaring.Bitmap
	docs    map[uint32]K
	extract func(Value) K
	parse   func(string) (K, bool)
}

// NewExactIndex indexes Value.Key, e.g. creator or container id.
func NewExactIndex() *ScalarIndex[string] {
	return newScalarIndex(
		func(v Value) string { return v.Key },
		func(s string) (string, bool) { return s, true },
	)
}

// NewNumericIndex indexes Value.Number, e.g. a last-modified timestamp.
func NewNumericIndex() *ScalarIndex[int64] {
	return newScalarIndex(
		func(v Value) int64 { return v.Number },
		func(s string) (int64, bool) {
			n, err := strconv.ParseInt(s, 10, 64)
			return n, err == nil
		},
	)
}

func newScalarIndex[K cmp.Ordered](extract func(Value) K, parse func(string) (K, bool)) *ScalarIndex[K] {
	return &ScalarIndex[K]{
		keys:    btree.NewG[K](32, cmp.Less[K]),
		values:  make(map[K]*roaring.Bitmap),
		docs:    make(map[uint32]K),
		extract: extract,
		parse:   parse,
	}
}

func (s *ScalarIndex[K]) IndexDoc(id uint32, v Value) {
	if _, ok := s.docs[id]; ok {
		s.UnindexDoc(id)
	}
	key := s.extract(v)
	bm, ok := s.values[key]
	if !ok {
		bm = roaring.New()
		s.values[key] = bm
		s.keys.ReplaceOrInsert(key)
	}
	bm.Add(id)
	s.docs[id] = key
}

func (s *ScalarIndex[K]) UnindexDoc(id uint32) bool {
	key, ok := s.docs[id]
	if !ok {
		return false
	}
	if bm := s.values[key]; bm != nil {
		bm.Remove(id)
		if bm.IsEmpty() {
			delete(s.values, key)
			s.keys.Delete(key)
		}
	}
	delete(s.docs, id)
	return true
}

func (s *ScalarIndex[K]) ReindexDoc(id uint32, v Value) {
	s.UnindexDoc(id)
	s.IndexDoc(id, v)
}

func (s *ScalarIndex[K]) Apply(query string) *roaring.Bitmap {
	key, ok := s.parse(query)
	if !ok {
		return roaring.New()
	}
	return cloneOrEmpty(s.values[key])
}

// Range returns the documents whose value lies in [lo, hi].
func (s *ScalarIndex[K]) Range(lo, hi K) *roaring.Bitmap {
	result := roaring.New()
	s.keys.AscendGreaterOrEqual(lo, func(key K) bool {
		if key > hi {
			return false
		}
		result.Or(s.values[key])
		return true
	})
	return result
}

// Value returns the indexed value of id.
func (s *ScalarIndex[K]) Value(id uint32) (K, bool) {
	key, ok := s.docs[id]
	return key, ok
}

func (s *ScalarIndex[K]) Has(id uint32) bool {
	_, ok := s.docs[id]
	return ok
}

func (s *ScalarIndex[K]) DocCount() int {
	return len(s.docs)
}
