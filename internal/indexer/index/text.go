package index

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/tokenizer"
)

// TextIndex is a positional full-text index with an ordered term dictionary.
type TextIndex struct {
	dict     *btree.BTreeG[string]
	postings map[string]map[uint32]*Posting
	docTerms map[uint32]map[string]int
	docLen   map[uint32]int
	docs     *roaring.Bitmap
	totalLen int64
}

func NewTextIndex() *TextIndex {
	return &TextIndex{
		dict:     btree.NewG[string](32, btree.Less[string]()),
		postings: make(map[string]map[uint32]*Posting),
		docTerms: make(map[uint32]map[string]int),
		docLen:   make(map[uint32]int),
		docs:     roaring.New(),
	}
}

// IndexDoc tokenizes v.Text and records a posting per term. Indexing an id
// that is already present replaces its previous postings.
func (t *TextIndex) IndexDoc(id uint32, v Value) {
	if t.docs.Contains(id) {
		t.UnindexDoc(id)
	}
	tokens := tokenizer.Tokenize(v.Text)

	termData := make(map[string]*Posting)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     id,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}

	freqs := make(map[string]int, len(termData))
	for term, posting := range termData {
		docs, exists := t.postings[term]
		if !exists {
			docs = make(map[uint32]*Posting)
			t.postings[term] = docs
			t.dict.ReplaceOrInsert(term)
		}
		docs[id] = posting
		freqs[term] = posting.Frequency
	}
	t.docTerms[id] = freqs
	t.docLen[id] = len(tokens)
	t.totalLen += int64(len(tokens))
	t.docs.Add(id)
}

func (t *TextIndex) UnindexDoc(id uint32) bool {
	if !t.docs.Contains(id) {
		return false
	}
	for term := range t.docTerms[id] {
		docs := t.postings[term]
		delete(docs, id)
		if len(docs) == 0 {
			delete(t.postings, term)
			t.dict.Delete(term)
		}
	}
	t.totalLen -= int64(t.docLen[id])
	delete(t.docTerms, id)
	delete(t.docLen, id)
	t.docs.Remove(id)
	return true
}

func (t *TextIndex) ReindexDoc(id uint32, v Value) {
	t.UnindexDoc(id)
	t.IndexDoc(id, v)
}

// Apply returns the documents containing every term of query.
func (t *TextIndex) Apply(query string) *roaring.Bitmap {
	terms := tokenizer.Terms(query)
	if len(terms) == 0 {
		return roaring.New()
	}
	result := t.termDocs(terms[0])
	for _, term := range terms[1:] {
		if result.IsEmpty() {
			break
		}
		result.And(t.termDocs(term))
	}
	return result
}

func (t *TextIndex) termDocs(term string) *roaring.Bitmap {
	bm := roaring.New()
	for id := range t.postings[term] {
		bm.Add(id)
	}
	return bm
}

func (t *TextIndex) Has(id uint32) bool {
	return t.docs.Contains(id)
}

func (t *TextIndex) DocCount() int {
	return int(t.docs.GetCardinality())
}

// PrefixTerms returns, in order, every dictionary term starting with prefix.
func (t *TextIndex) PrefixTerms(prefix string) []string {
	var out []string
	t.dict.AscendGreaterOrEqual(prefix, func(term string) bool {
		if !strings.HasPrefix(term, prefix) {
			return false
		}
		out = append(out, term)
		return true
	})
	return out
}

// HasTerm reports whether term is in the dictionary.
func (t *TextIndex) HasTerm(term string) bool {
	return t.dict.Has(term)
}

// Terms calls fn for every dictionary term in order until fn returns false.
func (t *TextIndex) Terms(fn func(term string) bool) {
	t.dict.Ascend(fn)
}

// Postings returns the postings of term sorted by doc id.
func (t *TextIndex) Postings(term string) PostingList {
	docs := t.postings[term]
	if len(docs) == 0 {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Positions returns the token positions of term in document id.
func (t *TextIndex) Positions(term string, id uint32) []int {
	if p, ok := t.postings[term][id]; ok {
		return p.Positions
	}
	return nil
}

// TermFreqs returns the term-frequency vector of id. The map is owned by the
// index and must not be modified.
func (t *TextIndex) TermFreqs(id uint32) map[string]int {
	return t.docTerms[id]
}

func (t *TextIndex) DocFreq(term string) int {
	return len(t.postings[term])
}

func (t *TextIndex) DocLength(id uint32) int {
	return t.docLen[id]
}

func (t *TextIndex) AvgDocLength() float64 {
	n := t.docs.GetCardinality()
	if n == 0 {
		return 0
	}
	return float64(t.totalLen) / float64(n)
}

// Snapshot returns every term with its postings, both sorted.
func (t *TextIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(t.postings))
	t.dict.Ascend(func(term string) bool {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: t.Postings(term),
		})
		return true
	})
	return entries
}
