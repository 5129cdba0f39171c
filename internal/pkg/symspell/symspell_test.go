package symspell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terms(s []Suggestion) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		out = append(out, x.Term)
	}
	return out
}

func TestSuggest(t *testing.T) {
	d := New()
	for _, w := range []string{"black", "block", "back", "blacks", "slack", "flack"} {
		d.Add(w, 1)
	}
	d.Add("slack", 4)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"substitution", "blacj", []string{"black"}},
		{"deletion", "blac", []string{"black"}},
		{"insertion", "blackso", []string{"blacks"}},
		{"transposition", "balck", []string{"back", "black"}},
		{"several, frequency first", "lack", []string{"slack", "back", "black", "flack"}},
		{"exact first", "black", []string{"black", "slack", "back", "blacks", "block", "flack"}},
		{"no match", "xyz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, terms(d.Suggest(tt.query, 0)))
		})
	}
	assert.Len(t, d.Suggest("lack", 2), 2)
	assert.Nil(t, d.Suggest("", 5))
}

func TestUnicodeDeletions(t *testing.T) {
	d := New()
	d.Add("ichigo", 1)
	d.Add("kurosaki", 1)
	got, ok := d.Correct("ichgo")
	require.True(t, ok)
	assert.Equal(t, "ichigo", got)

	d.Add("señor", 1)
	got, ok = d.Correct("senor")
	require.True(t, ok)
	assert.Equal(t, "señor", got)
}

func TestAddIsIdempotentAndRemoveCleans(t *testing.T) {
	d := New()
	d.Add("hollow", 1)
	d.Add("hollow", 2)
	d.Add("", 1)
	d.Add("ghost", 0)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 3, d.Frequency("hollow"))

	d.Remove("hollow")
	d.Remove("hollow")
	assert.False(t, d.Contains("hollow"))
	assert.Empty(t, d.deletes)
	_, ok := d.Correct("holow")
	assert.False(t, ok)
}

func TestTermsSorted(t *testing.T) {
	d := New()
	d.Add("zanpakuto", 2)
	d.Add("bankai", 1)
	assert.Equal(t, []Suggestion{{Term: "bankai", Frequency: 1}, {Term: "zanpakuto", Frequency: 2}}, d.Terms())
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, distance("abc", "abc"))
	assert.Equal(t, 1, distance("abc", "acb"))
	assert.Equal(t, 1, distance("abc", "ab"))
	assert.Equal(t, 2, distance("blac", "back"))
	assert.Equal(t, 3, distance("", "abc"))
}
