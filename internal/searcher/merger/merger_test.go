package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/executor"
)

func hits(pairs ...float64) []executor.Hit {
	out := make([]executor.Hit, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, executor.Hit{DocID: uint32(pairs[i]), Score: pairs[i+1]})
	}
	return out
}

func ids(hs []executor.Hit) []uint32 {
	out := make([]uint32, len(hs))
	for i, h := range hs {
		out[i] = h.DocID
	}
	return out
}

func TestMerge(t *testing.T) {
	a := hits(1, 0.9, 4, 0.5, 7, 0.1)
	b := hits(2, 0.9, 3, 0.7)
	c := hits()

	assert.Equal(t, []uint32{1, 2, 3, 4, 7}, ids(Merge([][]executor.Hit{a, b, c}, 0)))
	assert.Equal(t, []uint32{1, 2, 3}, ids(Merge([][]executor.Hit{a, b, c}, 3)))
	assert.Empty(t, Merge(nil, 10))
	assert.Empty(t, Merge([][]executor.Hit{c}, 10))
}

func TestMergeKeepsInputsIntact(t *testing.T) {
	a := hits(1, 0.9, 4, 0.5)
	b := hits(2, 0.8)
	Merge([][]executor.Hit{a, b}, 0)
	assert.Equal(t, []uint32{1, 4}, ids(a))
	assert.Equal(t, []uint32{2}, ids(b))
}

func TestBefore(t *testing.T) {
	assert.True(t, Before(executor.Hit{DocID: 9, Score: 2}, executor.Hit{DocID: 1, Score: 1}))
	assert.True(t, Before(executor.Hit{DocID: 1, Score: 1}, executor.Hit{DocID: 9, Score: 1}))
	assert.True(t, Before(executor.Hit{DocID: 1, Key: "a"}, executor.Hit{DocID: 1, Key: "b"}))
}

func BenchmarkMerge(b *testing.B) {
	lists := make([][]executor.Hit, 8)
	for i := range lists {
		for j := 0; j < 500; j++ {
			lists[i] = append(lists[i], executor.Hit{DocID: uint32(i*1000 + j), Score: 1 / float64(j+1)})
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Merge(lists, 50)
	}
}

func TestPage(t *testing.T) {
	hits := make([]executor.Hit, 5)
	assert.Len(t, Page(hits, 0, 0), 5)
	assert.Len(t, Page(hits, -1, 2), 2)
	assert.Len(t, Page(hits, 4, 2), 1)
	assert.NotNil(t, Page(hits, 5, 2))
	assert.Empty(t, Page(hits, 5, 2))
	assert.NotNil(t, Page(nil, 0, 0))
}

func TestMergeFuncKeepsAttachedData(t *testing.T) {
	type tagged struct {
		hit executor.Hit
		pkg string
	}
	lists := [][]tagged{
		{{executor.Hit{DocID: 1, Key: "u", Score: 0.9}, "bleach"}, {executor.Hit{DocID: 2, Key: "v", Score: 0.1}, "bleach"}},
		{{executor.Hit{DocID: 1, Key: "u", Score: 0.5}, "math"}},
	}
	got := MergeFunc(lists, 0, func(c tagged) executor.Hit { return c.hit })
	pkgs := make([]string, len(got))
	for i, g := range got {
		pkgs[i] = g.pkg
	}
	assert.Equal(t, []string{"bleach", "math", "bleach"}, pkgs)
	assert.Len(t, MergeFunc(lists, 2, func(c tagged) executor.Hit { return c.hit }), 2)
}
