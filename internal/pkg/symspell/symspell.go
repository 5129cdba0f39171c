// Package symspell implements symmetric-delete spelling correction at edit
// distance one. Every dictionary term is stored under itself and each of its
// single-rune deletions, so a lookup only has to generate the deletions of
// the misspelled term.
package symspell

import (
	"sort"
	"sync"
)

// Suggestion is a dictionary term close to a looked-up term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
}

type Dictionary struct {
	mu      sync.RWMutex
	freq    map[string]int
	deletes map[string]map[string]struct{}
}

func New() *Dictionary {
	return &Dictionary{
		freq:    make(map[string]int),
		deletes: make(map[string]map[string]struct{}),
	}
}

// Add records count occurrences of term.
func (d *Dictionary) Add(term string, count int) {
	if term == "" || count <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.freq[term]; !exists {
		d.link(term, term)
		for _, del := range deletions(term) {
			d.link(del, term)
		}
	}
	d.freq[term] += count
}

func (d *Dictionary) link(key, term string) {
	set, ok := d.deletes[key]
	if !ok {
		set = make(map[string]struct{})
		d.deletes[key] = set
	}
	set[term] = struct{}{}
}

func (d *Dictionary) unlink(key, term string) {
	if set, ok := d.deletes[key]; ok {
		delete(set, term)
		if len(set) == 0 {
			delete(d.deletes, key)
		}
	}
}

// Remove drops term and all of its deletions.
func (d *Dictionary) Remove(term string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.freq[term]; !ok {
		return
	}
	delete(d.freq, term)
	d.unlink(term, term)
	for _, del := range deletions(term) {
		d.unlink(del, term)
	}
}

func (d *Dictionary) Contains(term string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.freq[term]
	return ok
}

func (d *Dictionary) Frequency(term string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.freq[term]
}

func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.freq)
}

// Terms returns every dictionary term with its frequency, sorted by term.
func (d *Dictionary) Terms() []Suggestion {
	d.mu.RLock()
	out := make([]Suggestion, 0, len(d.freq))
	for term, f := range d.freq {
		out = append(out, Suggestion{Term: term, Frequency: f})
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

// Suggest returns up to limit dictionary terms within edit distance one of
// term, closest first, then most frequent, then alphabetical. An exact match
// is returned with distance zero. limit <= 0 means no limit.
func (d *Dictionary) Suggest(term string, limit int) []Suggestion {
	if term == "" {
		return nil
	}
	d.mu.RLock()
	candidates := make(map[string]struct{})
	collect := func(key string) {
		for w := range d.deletes[key] {
			candidates[w] = struct{}{}
		}
	}
	collect(term)
	for _, del := range deletions(term) {
		collect(del)
	}
	out := make([]Suggestion, 0, len(candidates))
	for w := range candidates {
		dist := distance(term, w)
		if dist > 1 {
			continue
		}
		out = append(out, Suggestion{Term: w, Distance: dist, Frequency: d.freq[w]})
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.Term < b.Term
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Correct returns the best correction for term, or term itself when it is
// already in the dictionary. ok is false when nothing is close enough.
func (d *Dictionary) Correct(term string) (string, bool) {
	s := d.Suggest(term, 1)
	if len(s) == 0 {
		return "", false
	}
	return s[0].Term, true
}

func deletions(term string) []string {
	runes := []rune(term)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes))
	for i := range runes {
		out = append(out, string(runes[:i])+string(runes[i+1:]))
	}
	return out
}

// distance is the optimal string alignment distance between a and b, so a
// transposition of adjacent runes counts as one edit.
func distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev2 := make([]int, len(rb)+1)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				cur[j] = min(cur[j], prev2[j-2]+1)
			}
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(rb)]
}
