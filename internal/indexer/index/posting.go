// Package index provides the per-field indexes a catalog is made of. Doc-id
// sets are roaring bitmaps. None of the indexes lock; the owning catalog
// serialises writers against readers.
package index

import "github.com/RoaringBitmap/roaring/v2"

// Posting records where a term occurs in one document.
type Posting struct {
	DocID     uint32
	Frequency int
	Positions []int
}

type PostingList []Posting

// TermEntry is one dictionary entry in a snapshot of a text index.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// Value is the extracted value of one field of one document. Each index kind
// reads the member it understands.
type Value struct {
	Text     string
	Keywords []string
	Key      string
	Number   int64
}

// FieldIndex is the contract shared by every per-field index.
type FieldIndex interface {
	IndexDoc(id uint32, v Value)
	// UnindexDoc removes id and reports whether it was present.
	UnindexDoc(id uint32) bool
	ReindexDoc(id uint32, v Value)
	// Apply returns a fresh set of ids matching query. Callers may mutate it.
	Apply(query string) *roaring.Bitmap
	Has(id uint32) bool
	DocCount() int
}

func cloneOrEmpty(bm *roaring.Bitmap) *roaring.Bitmap {
	if bm == nil {
		return roaring.New()
	}
	return bm.Clone()
}
