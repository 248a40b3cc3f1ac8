package resolve_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"goalline/internal/resolve"
)

func TestHeuristicScorer(t *testing.T) {
	s := resolve.HeuristicScorer{}
	assert.Equal(t, 1.0, s.Score("Health", " health "))
	assert.Equal(t, 0.0, s.Score("", "health"))
	assert.Equal(t, 0.0, s.Score("km", "kg"))
	assert.InDelta(t, 0.6, s.Score("min", "minutes"), 1e-9)
	assert.InDelta(t, 0.8, s.Score("Health", "Health & Vitality"), 1e-9)
	assert.InDelta(t, 0.6167, s.Score("Helth", "Health & Vitality"), 1e-3)

	pairs := [][2]string{{"run", "running"}, {"read books", "books to read"}, {"a", "abc def ghi"}, {"x y z", "x y z w"}}
	for _, p := range pairs {
		got := s.Score(p[0], p[1])
		assert.GreaterOrEqual(t, got, 0.0, p)
		assert.LessOrEqual(t, got, 1.0, p)
		assert.InDelta(t, got, s.Score(p[1], p[0]), 1e-9, "symmetric for %v", p)
	}
}

func TestLevenshteinScorer(t *testing.T) {
	s := resolve.LevenshteinScorer{}
	assert.Equal(t, 1.0, s.Score("Kitten", "kitten"))
	assert.InDelta(t, 1-3.0/7.0, s.Score("kitten", "sitting"), 1e-9)
	assert.Equal(t, 0.0, s.Score("kitten", ""))
}
