package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	_ FieldIndex = (*TextIndex)(nil)
	_ FieldIndex = (*NgramIndex)(nil)
	_ FieldIndex = (*KeywordIndex)(nil)
	_ FieldIndex = (*ScalarIndex[string])(nil)
	_ FieldIndex = (*ScalarIndex[int64])(nil)
)

func TestTextIndexPostings(t *testing.T) {
	idx := NewTextIndex()
	idx.IndexDoc(1, Value{Text: "The hacker hacked the hacker"})
	idx.IndexDoc(2, Value{Text: "Chicken hacker"})

	assert.Equal(t, []uint32{1, 2}, idx.Apply("HACKER").ToArray())
	assert.Equal(t, []uint32{2}, idx.Apply("chicken").ToArray())
	assert.True(t, idx.Apply("missing").IsEmpty())
	assert.True(t, idx.Apply("").IsEmpty())

	assert.Equal(t, []int{1, 4}, idx.Positions("hacker", 1))
	assert.Equal(t, 2, idx.TermFreqs(1)["hacker"])
	assert.Equal(t, 2, idx.DocFreq("hacker"))
	assert.Equal(t, 5, idx.DocLength(1))
	assert.InDelta(t, 3.5, idx.AvgDocLength(), 1e-9)

	list := idx.Postings("hacker")
	if assert.Len(t, list, 2) {
		assert.Equal(t, uint32(1), list[0].DocID)
		assert.Equal(t, 2, list[0].Frequency)
	}
}

func TestTextIndexApplyDoesNotAlias(t *testing.T) {
	idx := NewTextIndex()
	idx.IndexDoc(1, Value{Text: "alpha"})
	bm := idx.Apply("alpha")
	bm.Add(99)
	assert.Equal(t, []uint32{1}, idx.Apply("alpha").ToArray())
}

func TestTextIndexUnindexRoundTrip(t *testing.T) {
	idx := NewTextIndex()
	idx.IndexDoc(7, Value{Text: "multiply and divide"})
	assert.True(t, idx.HasTerm("divide"))

	assert.True(t, idx.UnindexDoc(7))
	assert.False(t, idx.UnindexDoc(7))
	assert.False(t, idx.Has(7))
	assert.Equal(t, 0, idx.DocCount())
	assert.False(t, idx.HasTerm("divide"))
	assert.Empty(t, idx.Snapshot())
	assert.Zero(t, idx.AvgDocLength())
}

func TestTextIndexReindexIdempotent(t *testing.T) {
	idx := NewTextIndex()
	idx.IndexDoc(1, Value{Text: "one two"})
	idx.IndexDoc(1, Value{Text: "one two"})
	assert.Equal(t, 1, idx.DocCount())
	assert.Equal(t, 1, idx.TermFreqs(1)["one"])

	idx.ReindexDoc(1, Value{Text: "three"})
	assert.True(t, idx.Apply("one").IsEmpty())
	assert.Equal(t, []uint32{1}, idx.Apply("three").ToArray())
}

func TestTextIndexPrefixTerms(t *testing.T) {
	idx := NewTextIndex()
	idx.IndexDoc(1, Value{Text: "hack hacker hackers hat zebra"})
	assert.Equal(t, []string{"hack", "hacker", "hackers"}, idx.PrefixTerms("hack"))
	assert.Equal(t, []string{"hack", "hacker", "hackers", "hat"}, idx.PrefixTerms("ha"))
	assert.Empty(t, idx.PrefixTerms("q"))

	snap := idx.Snapshot()
	terms := make([]string, len(snap))
	for i, e := range snap {
		terms[i] = e.Term
	}
	assert.Equal(t, []string{"hack", "hacker", "hackers", "hat", "zebra"}, terms)
}

func TestNgramIndex(t *testing.T) {
	idx := NewNgramIndex(3, 5)
	idx.IndexDoc(1, Value{Text: "ichigo kurosaki"})
	idx.IndexDoc(2, Value{Text: "ichimaru"})

	assert.Equal(t, []uint32{1, 2}, idx.Apply("ich").ToArray())
	assert.Equal(t, []uint32{1}, idx.Apply("Ichig").ToArray())
	assert.True(t, idx.Apply("ic").IsEmpty())
	assert.False(t, idx.Covers("ichigo"))
	assert.True(t, idx.Apply("ichigo").IsEmpty())

	assert.True(t, idx.UnindexDoc(1))
	assert.Equal(t, []uint32{2}, idx.Apply("ich").ToArray())
	assert.True(t, idx.Apply("kur").IsEmpty())
	assert.Equal(t, 1, idx.DocCount())
}

func TestKeywordIndex(t *testing.T) {
	idx := NewKeywordIndex()
	idx.IndexDoc(1, Value{Keywords: []string{"rukia", "renji", "rukia", ""}})
	idx.IndexDoc(2, Value{Keywords: []string{"renji"}})

	assert.Equal(t, []uint32{1, 2}, idx.Apply("renji").ToArray())
	assert.Equal(t, []uint32{1, 2}, idx.ApplyAny("rukia", "renji").ToArray())
	assert.True(t, idx.ApplyAny().IsEmpty())

	idx.ReindexDoc(1, Value{Keywords: []string{"orihime"}})
	assert.True(t, idx.Apply("rukia").IsEmpty())
	assert.Equal(t, []uint32{1}, idx.Apply("orihime").ToArray())

	assert.True(t, idx.UnindexDoc(2))
	assert.True(t, idx.Apply("renji").IsEmpty())
}

func TestScalarIndex(t *testing.T) {
	exact := NewExactIndex()
	exact.IndexDoc(1, Value{Key: "container-a"})
	exact.IndexDoc(2, Value{Key: "container-b"})
	assert.Equal(t, []uint32{1}, exact.Apply("container-a").ToArray())
	v, ok := exact.Value(2)
	assert.True(t, ok)
	assert.Equal(t, "container-b", v)
	exact.IndexDoc(3, Value{Key: "container-z"})
	assert.Equal(t, []uint32{1, 2}, exact.Range("container-a", "container-c").ToArray())

	num := NewNumericIndex()
	num.IndexDoc(1, Value{Number: 100})
	num.IndexDoc(2, Value{Number: 200})
	num.IndexDoc(3, Value{Number: 300})
	assert.Equal(t, []uint32{2}, num.Apply("200").ToArray())
	assert.True(t, num.Apply("not-a-number").IsEmpty())
	assert.Equal(t, []uint32{1, 2}, num.Range(50, 200).ToArray())
	assert.Equal(t, []uint32{2, 3}, num.Range(150, 1000).ToArray())

	num.ReindexDoc(3, Value{Number: 10})
	assert.Equal(t, []uint32{1, 3}, num.Range(0, 150).ToArray())
	assert.True(t, num.UnindexDoc(3))
	assert.False(t, num.UnindexDoc(3))
}
