package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		raw      string
		expected Path
	}{
		{"session_id", Path{{Key: "session_id"}}},
		{"user.profile.name", Path{{Key: "user"}, {Key: "profile"}, {Key: "name"}}},
		{"results[0]", Path{{Key: "results"}, {Index: 0, IsIndex: true}}},
		{
			"results[0].content",
			Path{{Key: "results"}, {Index: 0, IsIndex: true}, {Key: "content"}},
		},
		{
			"matrix[2][3]",
			Path{{Key: "matrix"}, {Index: 2, IsIndex: true}, {Index: 3, IsIndex: true}},
		},
		{"[1].id", Path{{Index: 1, IsIndex: true}, {Key: "id"}}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			path, err := ParsePath(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, path)
		})
	}
}

func TestParsePath_RoundTrip(t *testing.T) {
	for _, raw := range []string{"a", "a.b.c", "results[0].content", "matrix[2][3]", "[0].id"} {
		path, err := ParsePath(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, path.String())
	}
}

func TestParsePath_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"empty segment", "a..b"},
		{"trailing dot", "a."},
		{"negative index", "a[-1]"},
		{"non-numeric index", "a[x]"},
		{"unbalanced bracket", "a[0"},
		{"text after bracket", "a[0]b"},
		{"empty index", "a[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePath(tt.raw)
			require.Error(t, err)
		})
	}
}
