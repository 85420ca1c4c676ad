package repo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebQueryFTS5(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "", want: ""},
		{input: "  cat  ", want: `("cat")`},
		{input: "cat dog", want: `("cat") AND ("dog")`},
		{input: `"cat chased" dog`, want: `("cat chased") AND ("dog")`},
		{input: "chased OR alone", want: `("chased" OR "alone")`},
		{input: "a or b c", want: `("a" OR "b") AND ("c")`},
		{input: "cat -dog", want: `(("cat")) NOT ("dog")`},
		{input: `cat -"dog park" -bird`, want: `(("cat")) NOT ("dog park" OR "bird")`},
		{input: "-dog", want: ""},
		{input: "OR cat OR", want: `("cat")`},
		{input: "cat-dog", want: `("cat dog")`},
		{input: `"unterminated phrase`, want: `("unterminated phrase")`},
		{input: "R&D 100%", want: `("R D") AND ("100")`},
		{input: `"or"`, want: `("or")`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.want, parseWebQuery(tt.input).fts5())
		})
	}
}

func TestWebQueryEmpty(t *testing.T) {
	require.True(t, parseWebQuery("-dog -cat").empty())
	require.True(t, parseWebQuery(" %% ").empty())
	require.False(t, parseWebQuery("dog -cat").empty())
}
