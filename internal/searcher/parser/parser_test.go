package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"hacker", "hacker"},
		{"Chicken hacker", "(chicken AND hacker)"},
		{"chicken AND hacker", "(chicken AND hacker)"},
		{"chicken OR hacker", "(chicken OR hacker)"},
		{"a b OR c", "((a AND b) OR c)"},
		{"chicken -hacker", "(chicken AND NOT hacker)"},
		{"chicken NOT hacker", "(chicken AND NOT hacker)"},
		{`"multiply and divide"`, `"multiply and divide"`},
		{`"Divide"`, "divide"},
		{"(a OR b) c", "((a OR b) AND c)"},
		{"e-mail", `"e mail"`},
		{"Café", "cafe"},
		{"and or not", "(and AND or AND not)"},
		{"!!! hacker", "hacker"},
		{"", ""},
		{"   ", ""},
		{"?!", ""},
		{"a -", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, String(node))
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, q := range []string{
		`"unterminated`,
		"(a OR b",
		"a)",
		"()",
		"a AND",
		"AND a",
		"a OR",
		"a OR OR b",
		"NOT",
	} {
		t.Run(q, func(t *testing.T) {
			_, err := Parse(q, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax))
		})
	}
}

func TestParseTypeahead(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"ich", "ich*"},
		{"kurosaki ich", "(kurosaki AND ich*)"},
		{"kurosaki ich ", "(kurosaki AND ich)"},
		{"kurosaki -ich", "(kurosaki AND NOT ich)"},
		{`"ichigo kurosaki"`, `"ichigo kurosaki"`},
		{"(ich)", "ich"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query, Options{Typeahead: true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, String(node))
		})
	}
}

func TestPositiveTerms(t *testing.T) {
	node, err := Parse(`chicken "run fast" -hacker OR zom`, Options{Typeahead: true})
	require.NoError(t, err)
	terms, prefixes := PositiveTerms(node)
	assert.Equal(t, []string{"chicken", "run", "fast"}, terms)
	assert.Equal(t, []string{"zom"}, prefixes)
}

func TestRewrite(t *testing.T) {
	node, err := Parse(`hackr "chiken run" -zombi OR ichig`, Options{Typeahead: true})
	require.NoError(t, err)
	fixes := map[string]string{"hackr": "hacker", "chiken": "chicken", "zombi": "zombie", "ichig": "ichigo"}
	out := Rewrite(node, func(term string) string {
		if fix, ok := fixes[term]; ok {
			return fix
		}
		return term
	})
	assert.Equal(t, `((hacker AND "chicken run" AND NOT zombie) OR ichigo*)`, String(out))
	assert.Equal(t, `((hackr AND "chiken run" AND NOT zombi) OR ichig*)`, String(node))
	assert.Nil(t, Rewrite(nil, func(s string) string { return s }))
}
