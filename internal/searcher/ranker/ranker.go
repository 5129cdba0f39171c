// Package ranker scores documents against a query. Ranking strategies are
// pluggable; Cosine is the default.
package ranker

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Stats is the per-catalog term statistics a ranker reads.
type Stats interface {
	TermFreqs(id uint32) map[string]int
	DocFreq(term string) int
	DocLength(id uint32) int
	AvgDocLength() float64
	DocCount() int
}

// Query is the positive term vector of a query. Each prefix is one
// dimension whose document weight aggregates every term it prefixes.
type Query struct {
	Terms    []string
	Prefixes []string
}

func (q Query) IsEmpty() bool {
	return len(q.Terms) == 0 && len(q.Prefixes) == 0
}

// Ranker scores a single document.
type Ranker interface {
	Name() string
	Score(s Stats, q Query, id uint32) float64
}

type ScoredDoc struct {
	DocID uint32  `json:"doc_id"`
	Score float64 `json:"score"`
}

// New returns the ranker registered under name.
func New(name string) (Ranker, error) {
	switch name {
	case "", "cosine":
		return Cosine{}, nil
	case "bm25":
		return BM25{}, nil
	default:
		return nil, fmt.Errorf("unknown ranker %q", name)
	}
}

// Rank scores ids and sorts them by score descending, then doc id
// ascending. A limit <= 0 keeps every document.
func Rank(r Ranker, s Stats, q Query, ids []uint32, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(ids))
	for _, id := range ids {
		result = append(result, ScoredDoc{DocID: id, Score: r.Score(s, q, id)})
	}
	Sort(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Sort orders docs by score descending, then doc id ascending.
func Sort(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
}

// Cosine is the cosine similarity between the query vector (weight 1 per
// distinct term or prefix) and the document term-frequency vector.
type Cosine struct{}

func (Cosine) Name() string { return "cosine" }

func (Cosine) Score(s Stats, q Query, id uint32) float64 {
	freqs := s.TermFreqs(id)
	if len(freqs) == 0 || q.IsEmpty() {
		return 0
	}
	dims := distinct(q.Terms, q.Prefixes)
	var dot float64
	for _, term := range dims.terms {
		dot += float64(freqs[term])
	}
	for _, prefix := range dims.prefixes {
		dot += float64(prefixFreq(freqs, prefix))
	}
	if dot == 0 {
		return 0
	}
	var docNorm float64
	for _, f := range freqs {
		docNorm += float64(f * f)
	}
	queryNorm := math.Sqrt(float64(len(dims.terms) + len(dims.prefixes)))
	return dot / (queryNorm * math.Sqrt(docNorm))
}

const (
	k1 = 1.2
	b  = 0.75
)

// BM25 is Okapi BM25 over the catalog statistics.
type BM25 struct{}

func (BM25) Name() string { return "bm25" }

func (BM25) Score(s Stats, q Query, id uint32) float64 {
	freqs := s.TermFreqs(id)
	if len(freqs) == 0 {
		return 0
	}
	totalDocs := int64(s.DocCount())
	docLen := float64(s.DocLength(id))
	avg := s.AvgDocLength()
	dims := distinct(q.Terms, q.Prefixes)

	var score float64
	for _, term := range dims.terms {
		tf := freqs[term]
		if tf == 0 {
			continue
		}
		idf := computeIDF(totalDocs, int64(s.DocFreq(term)))
		score += idf * computeTFNorm(float64(tf), docLen, avg)
	}
	for _, prefix := range dims.prefixes {
		var tf, df int
		for term, f := range freqs {
			if strings.HasPrefix(term, prefix) {
				tf += f
				df = max(df, s.DocFreq(term))
			}
		}
		if tf == 0 {
			continue
		}
		score += computeIDF(totalDocs, int64(df)) * computeTFNorm(float64(tf), docLen, avg)
	}
	return math.Round(score*10000) / 10000
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

func prefixFreq(freqs map[string]int, prefix string) int {
	n := 0
	for term, f := range freqs {
		if strings.HasPrefix(term, prefix) {
			n += f
		}
	}
	return n
}

type dimensions struct {
	terms    []string
	prefixes []string
}

func distinct(terms, prefixes []string) dimensions {
	seen := make(map[string]struct{}, len(terms)+len(prefixes))
	var d dimensions
	for _, t := range terms {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			d.terms = append(d.terms, t)
		}
	}
	for _, p := range prefixes {
		if _, ok := seen["*"+p]; !ok {
			seen["*"+p] = struct{}{}
			d.prefixes = append(d.prefixes, p)
		}
	}
	return d
}
