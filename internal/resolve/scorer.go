package resolve

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"goalline/internal/staging"
)

// Scorer rates how similar two natural keys are, in [0, 1].
type Scorer interface {
	Score(a, b string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(a, b string) float64

func (f ScorerFunc) Score(a, b string) float64 { return f(a, b) }

const (
	containmentWeight = 0.6
	subsequenceWeight = 0.5
	overlapWeight     = 0.4
	tokenMatchFloor   = 0.75
)

// HeuristicScorer combines substring containment (up to 0.6) with the share of
// words both keys have in common (up to 0.4). Near-miss spellings count as a
// weaker containment when one word is a subsequence of the other.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(a, b string) float64 {
	a, b = staging.NormalizeKey(a), staging.NormalizeKey(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ta, tb := tokens(a), tokens(b)
	score := containment(a, b, ta, tb) + overlapWeight*overlap(ta, tb)
	return math.Min(1, score)
}

func containment(a, b string, ta, tb []string) float64 {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return containmentWeight
	}
	best := 0.0
	for _, x := range ta {
		for _, y := range tb {
			if fuzzy.Match(x, y) || fuzzy.Match(y, x) {
				best = math.Max(best, tokenSimilarity(x, y))
			}
		}
	}
	return subsequenceWeight * best
}

func overlap(ta, tb []string) float64 {
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for _, x := range ta {
		for _, y := range tb {
			if tokenSimilarity(x, y) >= tokenMatchFloor {
				shared++
				break
			}
		}
	}
	larger := len(ta)
	if len(tb) > larger {
		larger = len(tb)
	}
	return math.Min(1, float64(shared)/float64(larger))
}

func tokenSimilarity(x, y string) float64 {
	if x == y {
		return 1
	}
	longest := utf8.RuneCountInString(x)
	if n := utf8.RuneCountInString(y); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(fuzzy.LevenshteinDistance(x, y))/float64(longest)
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// LevenshteinScorer is normalized edit distance over the whole key.
type LevenshteinScorer struct{}

func (LevenshteinScorer) Score(a, b string) float64 {
	a, b = staging.NormalizeKey(a), staging.NormalizeKey(b)
	if a == "" || b == "" {
		return 0
	}
	return tokenSimilarity(a, b)
}
