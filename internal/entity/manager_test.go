package entity

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/access"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/intid"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/predicate"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
)

const (
	owner        = "ichigo"
	chickenKey   = "0xd8:53657373696f6e73"
	highlightTxt = "You know how to add, subtract, multiply and divide. In fact you may already know how to solve many of the problems in this chapter."
)

type fixture struct {
	manager  *Manager
	registry *intid.Registry
	grants   *access.Grants
	messages []*content.Object
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	registry := intid.NewRegistry("Sessions", 200)
	grants := access.NewGrants()
	m := NewManager(Config{
		NgramMinSize:  3,
		NgramMaxSize:  15,
		Namespace:     registry.Namespace(),
		SnippetBefore: 2,
		SnippetAfter:  5,
	}, catalog.DefaultRegistry(), registry, grants, metrics.New(prometheus.NewRegistry()))
	return &fixture{manager: m, registry: registry, grants: grants}
}

func (f *fixture) loadTranscript(t testing.TB) {
	t.Helper()
	file, err := os.Open("testdata/transcript.txt")
	require.NoError(t, err)
	defer file.Close()

	base := time.Date(2011, 10, 1, 12, 0, 0, 0, time.UTC)
	scanner := bufio.NewScanner(file)
	ctx := context.Background()
	for i := 0; scanner.Scan(); i++ {
		msg := &content.Object{
			Key:          fmt.Sprintf("msg-%02d", i),
			Type:         catalog.TypeMessageInfo,
			Creator:      owner,
			ContainerID:  "Sessions/study-group",
			Body:         scanner.Text(),
			LastModified: base.Add(time.Duration(i) * time.Minute),
		}
		ok, err := f.manager.IndexContent(ctx, owner, catalog.TypeMessageInfo, msg)
		require.NoError(t, err)
		require.True(t, ok)
		f.messages = append(f.messages, msg)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, f.messages, 72)
}

func (f *fixture) search(t *testing.T, principal, query string, opts Options) *Results {
	t.Helper()
	res, err := f.manager.Search(context.Background(), owner, query, opts, predicate.Request{Principal: principal})
	require.NoError(t, err)
	return res
}

func findHit(hits []executor.Hit, key string) (executor.Hit, bool) {
	for _, h := range hits {
		if h.Key == key {
			return h, true
		}
	}
	return executor.Hit{}, false
}

func TestTranscriptSearch(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)

	res := f.search(t, owner, "hacker", Options{})
	assert.Equal(t, 10, res.HitCount)
	require.Len(t, res.Hits, 10)

	hit, ok := findHit(res.Hits, chickenKey)
	require.True(t, ok)
	assert.Equal(t, "Chicken HACKER", hit.Snippet)
	assert.Equal(t, catalog.TypeMessageInfo, hit.Type)
	assert.Equal(t, "msg-16", hit.ObjectKey)

	for i := 1; i < len(res.Hits); i++ {
		prev, cur := res.Hits[i-1], res.Hits[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.DocID < cur.DocID))
	}
}

func TestTranscriptDelete(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	ctx := context.Background()
	assert.Equal(t, 72, f.manager.DocCount(owner, catalog.TypeMessageInfo))

	removed, err := f.manager.DeleteContent(ctx, owner, catalog.TypeMessageInfo, f.messages[16])
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 71, f.manager.DocCount(owner, catalog.TypeMessageInfo))

	res := f.search(t, owner, "hacker", Options{})
	assert.Equal(t, 9, res.HitCount)
	_, ok := findHit(res.Hits, chickenKey)
	assert.False(t, ok)

	// deleting again is tolerated
	removed, err = f.manager.DeleteContent(ctx, owner, catalog.TypeMessageInfo, f.messages[16])
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestHighlightSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hl := &content.Object{
		Key:          "hl-1",
		Type:         catalog.TypeHighlight,
		Creator:      owner,
		ContainerID:  "tag:nextthought.com,2011-10:MN-HTML-MiladyCosmetology.why_study_math",
		SelectedText: highlightTxt,
		LastModified: time.Now(),
	}
	ok, err := f.manager.IndexContent(ctx, owner, catalog.TypeHighlight, hl)
	require.NoError(t, err)
	require.True(t, ok)

	res := f.search(t, owner, "divide", Options{ContentTypes: []string{catalog.TypeHighlight}})
	assert.Equal(t, 1, res.HitCount)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "multiply and DIVIDE In fact you may already", res.Hits[0].Snippet)
	assert.Equal(t, hl.ContainerID, res.Hits[0].ContainerID)

	removed, err := f.manager.DeleteContent(ctx, owner, catalog.TypeHighlight, hl)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, f.manager.DocCount(owner, catalog.TypeHighlight))
}

func TestIndexThenUnindexRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	note := &content.Object{Key: "n1", Creator: owner, Body: "zanpakuto bankai"}
	_, err := f.manager.IndexContent(ctx, owner, catalog.TypeNote, note)
	require.NoError(t, err)
	_, err = f.manager.DeleteContent(ctx, owner, catalog.TypeNote, note)
	require.NoError(t, err)

	res := f.search(t, owner, "bankai", Options{})
	assert.Equal(t, 0, res.HitCount)
	assert.Empty(t, res.Hits)
}

func TestNoMatchIsEmptyNotError(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	for _, q := range []string{"xylophone", "", "   ", "!!!", `"hacker chicken"`} {
		res := f.search(t, owner, q, Options{})
		assert.Equal(t, 0, res.HitCount, q)
		assert.NotNil(t, res.Hits)
	}

	res, err := f.manager.Search(context.Background(), "unknown-entity", "hacker", Options{}, predicate.Request{Principal: owner})
	require.NoError(t, err)
	assert.Equal(t, 0, res.HitCount)
}

func TestMalformedQueryIsRejected(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	_, err := f.manager.Search(context.Background(), owner, `"unterminated`, Options{}, predicate.Request{Principal: owner})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuery))
}

func TestPhraseSubsetOfConjunction(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	for _, pair := range [][2]string{{"chicken", "hacker"}, {"the", "hacker"}, {"unauthorized", "access"}, {"rainbow", "table"}} {
		phrase := f.search(t, owner, `"`+pair[0]+" "+pair[1]+`"`, Options{})
		and := f.search(t, owner, pair[0]+" AND "+pair[1], Options{})
		assert.LessOrEqual(t, phrase.HitCount, and.HitCount)
		for _, h := range phrase.Hits {
			_, ok := findHit(and.Hits, h.Key)
			assert.True(t, ok, "%s missing from conjunction", h.Key)
		}
	}
}

func TestAccessFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notes := []*content.Object{
		{Key: "private", Creator: owner, Body: "hollow mask"},
		{Key: "shared", Creator: owner, Body: "hollow hunting", SharedWith: []string{"rukia"}},
		{Key: "class", Creator: owner, Body: "hollow anatomy", ContainerID: "course-1"},
		{Key: "deleted", Creator: owner, Body: "hollow gone", Deleted: true},
	}
	for _, n := range notes {
		_, err := f.manager.IndexContent(ctx, owner, catalog.TypeNote, n)
		require.NoError(t, err)
	}
	f.grants.Allow("course-1", "class-of-2011")
	f.grants.Join("orihime", "class-of-2011")

	tests := []struct {
		principal string
		want      int
	}{
		{owner, 3},
		{"rukia", 1},
		{"orihime", 1},
		{"renji", 0},
	}
	for _, tt := range tests {
		t.Run(tt.principal, func(t *testing.T) {
			res := f.search(t, tt.principal, "hollow", Options{})
			assert.Equal(t, tt.want, res.HitCount)
			for _, h := range res.Hits {
				obj, err := f.registry.ResolveObject(ctx, h.DocID)
				require.NoError(t, err)
				assert.True(t, f.manager.VerifyAccess(ctx, obj, tt.principal))
			}
		})
	}

	// a permission change is honoured without reindexing
	f.grants.Allow("private", "renji")
	assert.Equal(t, 1, f.search(t, "renji", "hollow", Options{}).HitCount)
}

func TestIndexingIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	before := f.search(t, owner, "hacker", Options{})

	_, err := f.manager.IndexContent(context.Background(), owner, catalog.TypeMessageInfo, f.messages[16])
	require.NoError(t, err)
	after := f.search(t, owner, "hacker", Options{})

	assert.Equal(t, before.HitCount, after.HitCount)
	assert.Equal(t, 72, f.manager.DocCount(owner, catalog.TypeMessageInfo))
	b, _ := findHit(before.Hits, chickenKey)
	a, _ := findHit(after.Hits, chickenKey)
	assert.Equal(t, b.Score, a.Score)
}

func TestUpdateContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	note := &content.Object{Key: "n1", Creator: owner, Body: "shikai"}
	_, err := f.manager.IndexContent(ctx, owner, catalog.TypeNote, note)
	require.NoError(t, err)

	updated := *note
	updated.Body = "bankai"
	ok, err := f.manager.UpdateContent(ctx, owner, catalog.TypeNote, &updated)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 0, f.search(t, owner, "shikai", Options{}).HitCount)
	assert.Equal(t, 1, f.search(t, owner, "bankai", Options{}).HitCount)
	assert.Equal(t, 1, f.manager.DocCount(owner, catalog.TypeNote))
}

func TestPagination(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	all := f.search(t, owner, "hacker", Options{})

	page := f.search(t, owner, "hacker", Options{Limit: 3, Offset: 3})
	assert.Equal(t, 10, page.HitCount)
	require.Len(t, page.Hits, 3)
	assert.Equal(t, all.Hits[3].Key, page.Hits[0].Key)

	tail := f.search(t, owner, "hacker", Options{Limit: 5, Offset: 9})
	assert.Len(t, tail.Hits, 1)
	past := f.search(t, owner, "hacker", Options{Offset: 20})
	assert.Empty(t, past.Hits)
}

func TestPaginationCountsOnlyVisibleHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		n := &content.Object{Key: fmt.Sprintf("n%d", i), Creator: owner, Body: "kido spell"}
		if i%2 == 0 {
			n.SharedWith = []string{"rukia"}
		}
		_, err := f.manager.IndexContent(ctx, owner, catalog.TypeNote, n)
		require.NoError(t, err)
	}
	res := f.search(t, "rukia", "kido", Options{Limit: 2})
	assert.Equal(t, 3, res.HitCount)
	assert.Len(t, res.Hits, 2)
}

func TestTypeaheadSearch(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	res := f.search(t, owner, "hack", Options{Typeahead: true})
	assert.Equal(t, 10, res.HitCount)
	res = f.search(t, owner, "hack", Options{})
	assert.Equal(t, 0, res.HitCount)
}

func TestMaintainPrunesDanglingIDs(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	f.registry.Forget(f.messages[16].Key)

	res := f.search(t, owner, "hacker", Options{})
	assert.Equal(t, 9, res.HitCount)
	assert.Equal(t, 1, res.Dangling)

	pruned, err := f.manager.Maintain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 71, f.manager.DocCount(owner, catalog.TypeMessageInfo))

	res = f.search(t, owner, "hacker", Options{})
	assert.Equal(t, 0, res.Dangling)
}

func TestMaintainHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	f.loadTranscript(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.manager.Maintain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnknownTypeAndEmptyObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.IndexContent(ctx, owner, "video", &content.Object{Key: "v1"})
	assert.True(t, errors.Is(err, apperrors.ErrUnknownContentType))

	ok, err := f.manager.IndexContent(ctx, owner, catalog.TypeNote, nil)
	assert.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.manager.DeleteContent(ctx, owner, catalog.TypeNote, &content.Object{})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEntitiesAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.IndexContent(ctx, "ichigo", catalog.TypeNote, &content.Object{Key: "a", Creator: "ichigo", Body: "getsuga"})
	require.NoError(t, err)
	_, err = f.manager.IndexContent(ctx, "uryu", catalog.TypeNote, &content.Object{Key: "b", Creator: "uryu", Body: "quincy getsuga"})
	require.NoError(t, err)

	assert.Equal(t, []string{"ichigo", "uryu"}, f.manager.Entities())
	assert.Equal(t, 1, f.search(t, "ichigo", "getsuga", Options{}).HitCount)
	assert.Equal(t, []string{catalog.TypeNote}, f.manager.ContentTypes("uryu"))

	assert.True(t, f.manager.DropEntity("uryu"))
	assert.False(t, f.manager.DropEntity("uryu"))
	assert.Equal(t, 0, f.manager.DocCount("uryu", catalog.TypeNote))
	assert.Equal(t, 1, f.manager.DocCount("ichigo", catalog.TypeNote))
}

func TestConcurrentIndexAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				n := &content.Object{Key: fmt.Sprintf("w%d-%d", w, i), Creator: owner, Body: "reiatsu surge"}
				_, err := f.manager.IndexContent(ctx, owner, catalog.TypeNote, n)
				assert.NoError(t, err)
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				res, err := f.manager.Search(ctx, owner, "reiatsu", Options{}, predicate.Request{Principal: owner})
				assert.NoError(t, err)
				assert.Equal(t, res.HitCount, len(res.Hits))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, f.manager.DocCount(owner, catalog.TypeNote))
}

func BenchmarkTranscriptSearch(b *testing.B) {
	f := newFixture(b)
	f.loadTranscript(b)
	ctx := context.Background()
	req := predicate.Request{Principal: owner}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.manager.Search(ctx, owner, "hacker OR network", Options{Limit: 10}, req); err != nil {
			b.Fatal(err)
		}
	}
}
