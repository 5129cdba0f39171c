package parser

import "strings"

// Node is a query AST node: *Word, *Phrase, *And, *Or or *Not.
type Node interface {
	write(b *strings.Builder)
}

// Word is one normalised term. Prefix marks the incomplete final word of a
// typeahead query.
type Word struct {
	Text   string
	Prefix bool
}

// Phrase is a sequence of terms that must occur contiguously and in order.
type Phrase struct {
	Words []string
}

type And struct {
	Children []Node
}

type Or struct {
	Children []Node
}

// Not matches every document of the corpus that Child does not.
type Not struct {
	Child Node
}

func (w *Word) write(b *strings.Builder) {
	b.WriteString(w.Text)
	if w.Prefix {
		b.WriteByte('*')
	}
}

func (p *Phrase) write(b *strings.Builder) {
	b.WriteByte('"')
	b.WriteString(strings.Join(p.Words, " "))
	b.WriteByte('"')
}

func (a *And) write(b *strings.Builder) {
	writeGroup(b, " AND ", a.Children)
}

func (o *Or) write(b *strings.Builder) {
	writeGroup(b, " OR ", o.Children)
}

func (n *Not) write(b *strings.Builder) {
	b.WriteString("NOT ")
	n.Child.write(b)
}

func writeGroup(b *strings.Builder, sep string, children []Node) {
	b.WriteByte('(')
	for i, c := range children {
		if i > 0 {
			b.WriteString(sep)
		}
		c.write(b)
	}
	b.WriteByte(')')
}

// PositiveTerms returns the terms and prefixes of n that are not under a
// negation, in query order.
func PositiveTerms(n Node) (terms, prefixes []string) {
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Word:
			if v.Prefix {
				prefixes = append(prefixes, v.Text)
			} else {
				terms = append(terms, v.Text)
			}
		case *Phrase:
			terms = append(terms, v.Words...)
		case *And:
			for _, c := range v.Children {
				walk(c)
			}
		case *Or:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	if n != nil {
		walk(n)
	}
	return terms, prefixes
}

// Rewrite returns a copy of n with every word and phrase term passed
// through fn. Prefix flags and structure are preserved; n is not modified.
func Rewrite(n Node, fn func(term string) string) Node {
	switch v := n.(type) {
	case *Word:
		return &Word{Text: fn(v.Text), Prefix: v.Prefix}
	case *Phrase:
		words := make([]string, len(v.Words))
		for i, w := range v.Words {
			words[i] = fn(w)
		}
		return &Phrase{Words: words}
	case *And:
		return &And{Children: rewriteAll(v.Children, fn)}
	case *Or:
		return &Or{Children: rewriteAll(v.Children, fn)}
	case *Not:
		return &Not{Child: Rewrite(v.Child, fn)}
	default:
		return n
	}
}

func rewriteAll(children []Node, fn func(string) string) []Node {
	out := make([]Node, len(children))
	for i, c := range children {
		out[i] = Rewrite(c, fn)
	}
	return out
}
