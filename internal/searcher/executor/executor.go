// Package executor evaluates a parsed query against one catalog, ranks the
// surviving documents and shapes them into hits.
package executor

import (
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/ranker"
)

const (
	DefaultSnippetBefore = 2
	DefaultSnippetAfter  = 5
)

// ResultSet is the intermediate value of evaluating a query node. Every
// combinator returns a new ResultSet and leaves its operands untouched.
type ResultSet struct {
	Docs     *roaring.Bitmap
	Words    map[string]struct{}
	Prefixes map[string]struct{}
}

func Empty() ResultSet {
	return ResultSet{Docs: roaring.New()}
}

func (r ResultSet) Len() int {
	if r.Docs == nil {
		return 0
	}
	return int(r.Docs.GetCardinality())
}

func (r ResultSet) Intersect(o ResultSet) ResultSet {
	return ResultSet{
		Docs:     roaring.And(r.Docs, o.Docs),
		Words:    unionSet(r.Words, o.Words),
		Prefixes: unionSet(r.Prefixes, o.Prefixes),
	}
}

func (r ResultSet) Union(o ResultSet) ResultSet {
	return ResultSet{
		Docs:     roaring.Or(r.Docs, o.Docs),
		Words:    unionSet(r.Words, o.Words),
		Prefixes: unionSet(r.Prefixes, o.Prefixes),
	}
}

// Difference removes the documents of o. Matched words of o are dropped.
func (r ResultSet) Difference(o ResultSet) ResultSet {
	return ResultSet{
		Docs:     roaring.AndNot(r.Docs, o.Docs),
		Words:    unionSet(r.Words, nil),
		Prefixes: unionSet(r.Prefixes, nil),
	}
}

// NarrowPhrase keeps the documents in which words occur contiguously and in
// order, using the token positions of text.
func (r ResultSet) NarrowPhrase(text *index.TextIndex, words []string) ResultSet {
	out := ResultSet{
		Docs:     roaring.New(),
		Words:    unionSet(r.Words, nil),
		Prefixes: unionSet(r.Prefixes, nil),
	}
	if len(words) == 0 {
		return out
	}
	r.Docs.Iterate(func(id uint32) bool {
		if hasPhrase(text, words, id) {
			out.Docs.Add(id)
		}
		return true
	})
	return out
}

// Matches reports whether a normalised term was matched by the query.
func (r ResultSet) Matches(term string) bool {
	if _, ok := r.Words[term]; ok {
		return true
	}
	for p := range r.Prefixes {
		if strings.HasPrefix(term, p) {
			return true
		}
	}
	return false
}

// Query returns the ranking vector of r in a stable order.
func (r ResultSet) Query() ranker.Query {
	return ranker.Query{Terms: sortedKeys(r.Words), Prefixes: sortedKeys(r.Prefixes)}
}

// Evaluate computes the documents of v matching n. A nil node matches
// nothing.
func Evaluate(v catalog.View, n parser.Node) ResultSet {
	switch node := n.(type) {
	case *parser.Word:
		return evalWord(v, node)
	case *parser.Phrase:
		// intersect first, verify adjacency on the survivors
		candidates := ResultSet{Docs: v.Corpus()}
		for _, w := range node.Words {
			candidates = candidates.Intersect(evalWord(v, &parser.Word{Text: w}))
			if candidates.Len() == 0 {
				break
			}
		}
		return candidates.NarrowPhrase(v.Content(), node.Words)
	case *parser.And:
		result := Evaluate(v, node.Children[0])
		for _, c := range node.Children[1:] {
			result = result.Intersect(Evaluate(v, c))
		}
		return result
	case *parser.Or:
		result := Evaluate(v, node.Children[0])
		for _, c := range node.Children[1:] {
			result = result.Union(Evaluate(v, c))
		}
		return result
	case *parser.Not:
		corpus := ResultSet{Docs: v.Corpus()}
		return corpus.Difference(Evaluate(v, node.Child))
	default:
		return Empty()
	}
}

func evalWord(v catalog.View, w *parser.Word) ResultSet {
	text := v.Content()
	if !w.Prefix {
		return ResultSet{
			Docs:  text.Apply(w.Text),
			Words: map[string]struct{}{w.Text: {}},
		}
	}
	docs := text.Apply(w.Text)
	if ngrams := v.Ngrams(); ngrams.Covers(w.Text) {
		docs.Or(ngrams.Apply(w.Text))
	} else {
		for _, term := range text.PrefixTerms(w.Text) {
			docs.Or(text.Apply(term))
		}
	}
	return ResultSet{
		Docs:     docs,
		Prefixes: map[string]struct{}{w.Text: {}},
	}
}

func hasPhrase(text *index.TextIndex, words []string, id uint32) bool {
	for _, start := range text.Positions(words[0], id) {
		matched := true
		for i := 1; i < len(words); i++ {
			positions := text.Positions(words[i], id)
			j := sort.SearchInts(positions, start+i)
			if j == len(positions) || positions[j] != start+i {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// Options controls ranking and snippet shaping.
type Options struct {
	Ranker        ranker.Ranker
	SnippetBefore int
	SnippetAfter  int
}

// Hit is one ranked document. Snippet is empty until FillSnippet runs.
type Hit struct {
	DocID        uint32    `json:"doc_id"`
	Key          string    `json:"key"`
	ObjectKey    string    `json:"object_key"`
	Score        float64   `json:"score"`
	Snippet      string    `json:"snippet"`
	ContainerID  string    `json:"container_id,omitempty"`
	LastModified time.Time `json:"last_modified"`
	Type         string    `json:"type"`
	Class        string    `json:"class,omitempty"`

	text  string
	match ResultSet
}

// Search evaluates n against v and returns the hits ordered by score
// descending, then doc id ascending.
func Search(v catalog.View, n parser.Node, opts Options) []Hit {
	if n == nil {
		return nil
	}
	rs := Evaluate(v, n)
	if rs.Len() == 0 {
		return nil
	}
	r := opts.Ranker
	if r == nil {
		r = ranker.Cosine{}
	}
	scored := ranker.Rank(r, v.Content(), rs.Query(), rs.Docs.ToArray(), 0)
	hits := make([]Hit, 0, len(scored))
	for _, sd := range scored {
		stored, ok := v.Stored(sd.DocID)
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			DocID:        sd.DocID,
			ObjectKey:    stored.Key,
			Score:        sd.Score,
			ContainerID:  stored.ContainerID,
			LastModified: stored.LastModified,
			Type:         stored.Type,
			Class:        stored.Class,
			text:         stored.Text,
			match:        rs,
		})
	}
	return hits
}

// FillSnippet renders the snippet of h around its first matched word.
func (h *Hit) FillSnippet(before, after int) {
	if h.Snippet != "" || h.text == "" {
		return
	}
	h.Snippet = Snippet(h.text, h.match.Matches, before, after)
}

// Snippet returns the words of text around the first word accepted by
// match: before words ahead of it and after words behind it, with matched
// words upper-cased and punctuation dropped. Without a match it returns the
// leading words.
func Snippet(text string, match func(term string) bool, before, after int) string {
	if before < 0 {
		before = DefaultSnippetBefore
	}
	if after < 0 {
		after = DefaultSnippetAfter
	}
	spans := tokenizer.Words(text)
	if len(spans) == 0 {
		return ""
	}
	matched := make([]bool, len(spans))
	first := -1
	for i, span := range spans {
		for _, term := range span.Terms {
			if match != nil && match(term) {
				matched[i] = true
				break
			}
		}
		if matched[i] && first < 0 {
			first = i
		}
	}
	start, end := 0, min(len(spans), before+after+1)
	if first >= 0 {
		start = max(0, first-before)
		end = min(len(spans), first+after+1)
	}
	words := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if matched[i] {
			words = append(words, strings.ToUpper(spans[i].Text))
		} else {
			words = append(words, spans[i].Text)
		}
	}
	return strings.Join(words, " ")
}

func unionSet(a, b map[string]struct{}) map[string]struct{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
