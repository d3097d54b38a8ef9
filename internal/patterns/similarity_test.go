package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Click The Button", "click the button"},
		{"collapses whitespace", "click   the\tbutton", "click the button"},
		{"trims", "  click the button  ", "click the button"},
		{"empty", "", ""},
		{"whitespace only", "   \t\n ", ""},
		{"already normal", "fill the email field", "fill the email field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.input))
		})
	}
}

func TestSimilarityExact(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("click the button", "click the button"))
}

func TestSimilaritySymmetric(t *testing.T) {
	a, b := "click the login button", "click login button"
	assert.InDelta(t, Similarity(a, b), Similarity(b, a), 1e-9)
}

func TestSimilarityOrdering(t *testing.T) {
	base := "click the login button"
	near := Similarity(base, "click login button")
	far := Similarity(base, "wait for the dashboard to load")

	assert.Greater(t, near, far)
	assert.GreaterOrEqual(t, near, 0.7, "a dropped stop word should stay above the fuzzy threshold")
	assert.Less(t, far, 0.5, "unrelated steps should score low")
}

func TestSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"a", "b"},
		{"click", "click the button now please"},
		{"", "click"},
		{"fill the email field", "fill the password field"},
	}
	for _, p := range pairs {
		sim := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, sim, 0.0, "%q vs %q", p[0], p[1])
		assert.LessOrEqual(t, sim, 1.0, "%q vs %q", p[0], p[1])
	}
}
