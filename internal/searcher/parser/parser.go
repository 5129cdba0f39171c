// Package parser turns a raw query string into a small AST of words,
// phrases, conjunctions, disjunctions and negations.
//
//	query   := orExpr EOF
//	orExpr  := andExpr ("OR" andExpr)*
//	andExpr := unary (["AND"] unary)*
//	unary   := ("NOT" | "-") unary | primary
//	primary := WORD | '"' words '"' | "(" orExpr ")"
//
// Operators are recognised only in upper case. Words are normalised with the
// same tokenizer that builds the index.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/tokenizer"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("query syntax error")

// Options controls parsing.
type Options struct {
	// Typeahead marks the final word as an incomplete prefix unless the raw
	// query ends in whitespace.
	Typeahead bool
}

// Parse parses query. A query with no searchable words yields a nil Node and
// no error.
func Parse(query string, opts Options) (Node, error) {
	tokens, err := lex(query)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, lastWordTok: -1}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, fmt.Errorf("%w: unbalanced parentheses at %d", ErrSyntax, tok.pos)
		}
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, tok.text, tok.pos)
	}
	if opts.Typeahead && p.lastWord != nil && p.lastWordTok == len(tokens)-2 && !endsInSpace(query) {
		p.lastWord.Prefix = true
	}
	return node, nil
}

func endsInSpace(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}

type parser struct {
	tokens  []token
	pos     int
	negated int

	lastWord    *Word
	lastWordTok int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Node, error) {
	var children []Node
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if left != nil {
		children = append(children, left)
	}
	for p.peek().kind == tokOr {
		op := p.next()
		if !startsOperand(p.peek().kind) {
			return nil, fmt.Errorf("%w: dangling OR at %d", ErrSyntax, op.pos)
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if right != nil {
			children = append(children, right)
		}
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	default:
		return &Or{Children: children}, nil
	}
}

func (p *parser) parseAnd() (Node, error) {
	var children []Node
	if tok := p.peek(); tok.kind == tokAnd || tok.kind == tokOr {
		return nil, fmt.Errorf("%w: dangling %s at %d", ErrSyntax, tok.text, tok.pos)
	}
	for {
		tok := p.peek()
		if tok.kind == tokAnd {
			p.next()
			if !startsOperand(p.peek().kind) {
				return nil, fmt.Errorf("%w: dangling AND at %d", ErrSyntax, tok.pos)
			}
			continue
		}
		if !startsOperand(tok.kind) {
			break
		}
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	default:
		return &And{Children: children}, nil
	}
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.kind != tokNot && tok.kind != tokMinus {
		return p.parsePrimary()
	}
	p.next()
	if !startsOperand(p.peek().kind) {
		return nil, fmt.Errorf("%w: dangling %s at %d", ErrSyntax, tok.text, tok.pos)
	}
	p.negated++
	child, err := p.parseUnary()
	p.negated--
	if err != nil || child == nil {
		return nil, err
	}
	return &Not{Child: child}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord:
		node := wordsNode(tokenizer.Terms(tok.text))
		if w, ok := node.(*Word); ok {
			if p.negated == 0 {
				p.lastWord, p.lastWordTok = w, p.pos-1
			}
		}
		return node, nil
	case tokQuoted:
		return wordsNode(tokenizer.Terms(tok.text)), nil
	case tokLParen:
		if p.peek().kind == tokRParen {
			return nil, fmt.Errorf("%w: empty group at %d", ErrSyntax, tok.pos)
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("%w: unbalanced parentheses at %d", ErrSyntax, tok.pos)
		}
		return inner, nil
	case tokRParen:
		return nil, fmt.Errorf("%w: unbalanced parentheses at %d", ErrSyntax, tok.pos)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, tok.text, tok.pos)
	}
}

func wordsNode(terms []string) Node {
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return &Word{Text: terms[0]}
	default:
		return &Phrase{Words: terms}
	}
}

func startsOperand(k tokenKind) bool {
	switch k {
	case tokWord, tokQuoted, tokLParen, tokNot, tokMinus:
		return true
	default:
		return false
	}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokQuoted
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokMinus
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(query string) ([]token, error) {
	var tokens []token
	r := []rune(query)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '"':
			end := i + 1
			for end < len(r) && r[end] != '"' {
				end++
			}
			if end == len(r) {
				return nil, fmt.Errorf("%w: unterminated quote at %d", ErrSyntax, i)
			}
			tokens = append(tokens, token{kind: tokQuoted, text: string(r[i+1 : end]), pos: i})
			i = end + 1
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '-' && i+1 < len(r) && !unicode.IsSpace(r[i+1]) && r[i+1] != '-':
			tokens = append(tokens, token{kind: tokMinus, text: "-", pos: i})
			i++
		default:
			start := i
			for i < len(r) && !unicode.IsSpace(r[i]) && r[i] != '"' && r[i] != '(' && r[i] != ')' {
				i++
			}
			text := string(r[start:i])
			tokens = append(tokens, token{kind: keyword(text), text: text, pos: start})
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(r)}), nil
}

func keyword(text string) tokenKind {
	switch text {
	case "AND":
		return tokAnd
	case "OR":
		return tokOr
	case "NOT":
		return tokNot
	default:
		return tokWord
	}
}

// String renders n in a canonical form, e.g. (hacker AND "chicken run").
func String(n Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	n.write(&b)
	return b.String()
}
