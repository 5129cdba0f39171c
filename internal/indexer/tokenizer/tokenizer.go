// Package tokenizer provides text tokenisation for the search engine.
// It folds accents, lower-cases input, applies a fixed punctuation
// translation table and splits on non-alphanumeric boundaries. The same
// word boundaries drive indexing, phrase verification and snippets.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// translation maps runes that survive accent folding to their search form.
// A value of -1 deletes the rune.
var translation = map[rune]rune{
	'\'': -1,
	'‘':  -1,
	'’':  -1,
	'ʼ':  -1,
	'ø':  'o',
	'đ':  'd',
	'ł':  'l',
	'ı':  'i',
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Span is a word of the original text together with its normalised terms.
// A span may carry more than one term when folding splits it.
type Span struct {
	Text  string
	Terms []string
}

// IsStopWord reports whether term is excluded from prefix generation.
func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}

// Normalize folds accents, lower-cases and translates text into the form
// stored in the index. Word boundaries are preserved as spaces.
func Normalize(text string) string {
	folded, _, err := transform.String(foldAccents(), text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(folded)
	return strings.Map(func(r rune) rune {
		if mapped, ok := translation[r]; ok {
			return mapped
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
}

// Tokenize breaks text into a slice of normalised Tokens. Positions are
// consecutive and are what phrase adjacency is checked against.
func Tokenize(text string) []Token {
	spans := Words(text)
	tokens := make([]Token, 0, len(spans))
	pos := 0
	for _, span := range spans {
		for _, term := range span.Terms {
			tokens = append(tokens, Token{Term: term, Position: pos})
			pos++
		}
	}
	return tokens
}

// Terms returns the normalised terms of text in order.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Words splits text into original-case word spans. Spans whose folded form
// is empty are dropped.
func Words(text string) []Span {
	raw := strings.FieldsFunc(text, isBoundary)
	spans := make([]Span, 0, len(raw))
	for _, word := range raw {
		terms := strings.Fields(Normalize(word))
		if len(terms) == 0 {
			continue
		}
		spans = append(spans, Span{Text: stripApostrophes(word), Terms: terms})
	}
	return spans
}

// NgramPrefixes returns the growing prefixes of every word in text, from
// minSize up to min(maxSize, len(word)) runes. Words shorter than minSize
// and stop words produce nothing. A maxSize <= 0 means no upper bound.
func NgramPrefixes(text string, minSize, maxSize int, unique bool) []string {
	if minSize < 1 {
		minSize = 1
	}
	var out []string
	var seen map[string]struct{}
	if unique {
		seen = make(map[string]struct{})
	}
	for _, term := range Terms(text) {
		if IsStopWord(term) {
			continue
		}
		r := []rune(term)
		limit := len(r)
		if maxSize > 0 && maxSize < limit {
			limit = maxSize
		}
		for size := minSize; size <= limit; size++ {
			gram := string(r[:size])
			if unique {
				if _, dup := seen[gram]; dup {
					continue
				}
				seen[gram] = struct{}{}
			}
			out = append(out, gram)
		}
	}
	return out
}

func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func isBoundary(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
		return false
	}
	if mapped, ok := translation[r]; ok && mapped == -1 {
		return false
	}
	return true
}

func stripApostrophes(word string) string {
	return strings.Map(func(r rune) rune {
		if mapped, ok := translation[r]; ok && mapped == -1 {
			return -1
		}
		return r
	}, word)
}
