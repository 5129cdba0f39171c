package index

import (
	"strings"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/tokenizer"
)

// NgramIndex maps growing word prefixes to the documents containing a word
// with that prefix. It answers starts-with queries only.
type NgramIndex struct {
	minSize int
	maxSize int
	grams   map[string]*roaring.Bitmap
	docs    map[uint32][]string
}

func NewNgramIndex(minSize, maxSize int) *NgramIndex {
	return &NgramIndex{
		minSize: minSize,
		maxSize: maxSize,
		grams:   make(map[string]*roaring.Bitmap),
		docs:    make(map[uint32][]string),
	}
}

func (n *NgramIndex) IndexDoc(id uint32, v Value) {
	if _, ok := n.docs[id]; ok {
		n.UnindexDoc(id)
	}
	grams := tokenizer.NgramPrefixes(v.Text, n.minSize, n.maxSize, true)
	for _, gram := range grams {
		bm, ok := n.grams[gram]
		if !ok {
			bm = roaring.New()
			n.grams[gram] = bm
		}
		bm.Add(id)
	}
	n.docs[id] = grams
}

func (n *NgramIndex) UnindexDoc(id uint32) bool {
	grams, ok := n.docs[id]
	if !ok {
		return false
	}
	for _, gram := range grams {
		if bm := n.grams[gram]; bm != nil {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(n.grams, gram)
			}
		}
	}
	delete(n.docs, id)
	return true
}

func (n *NgramIndex) ReindexDoc(id uint32, v Value) {
	n.UnindexDoc(id)
	n.IndexDoc(id, v)
}

// Apply returns the documents with a word starting with prefix. Prefixes
// outside [minSize, maxSize] match nothing; see Covers.
func (n *NgramIndex) Apply(prefix string) *roaring.Bitmap {
	gram := strings.Join(tokenizer.Terms(prefix), "")
	if !n.Covers(gram) {
		return roaring.New()
	}
	return cloneOrEmpty(n.grams[gram])
}

// Covers reports whether a normalised prefix of this length is indexed.
func (n *NgramIndex) Covers(prefix string) bool {
	size := utf8.RuneCountInString(prefix)
	if size < n.minSize {
		return false
	}
	return n.maxSize <= 0 || size <= n.maxSize
}

func (n *NgramIndex) Has(id uint32) bool {
	_, ok := n.docs[id]
	return ok
}

func (n *NgramIndex) DocCount() int {
	return len(n.docs)
}
