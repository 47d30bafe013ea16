// Package match resolves a loosely typed title against a set of known titles.
package match

import (
	"regexp"
	"slices"

	"github.com/hbollon/go-edlib"
)

var numberRe = regexp.MustCompile(`\b\d+\b`)

// Confidence grades a match score.
type Confidence int

const (
	ConfidenceNone   Confidence = iota // score < 0.70
	ConfidenceLow                      // score >= 0.70
	ConfidenceMedium                   // score >= 0.85
	ConfidenceHigh                     // score >= 0.95
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// ConfidenceFor grades a similarity score.
func ConfidenceFor(score float64) Confidence {
	switch {
	case score >= 0.95:
		return ConfidenceHigh
	case score >= 0.85:
		return ConfidenceMedium
	case score >= 0.70:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// Result is the best candidate for a query. Index is -1 when nothing
// scored at least ConfidenceLow.
type Result struct {
	Index      int
	Title      string
	Score      float64
	Confidence Confidence
}

// Resolved reports whether the match is good enough to act on without asking.
func (r Result) Resolved() bool {
	return r.Index >= 0 && r.Confidence >= ConfidenceMedium
}

// Score returns the Jaro-Winkler similarity of two titles after cleaning,
// adjusted for sequel numbers so that "Alien 3" prefers "Alien 3" over "Aliens".
func Score(query, candidate string) float64 {
	q, c := CleanTitle(query), CleanTitle(candidate)
	if q == "" || c == "" {
		return 0
	}
	s := float64(edlib.JaroWinklerSimilarity(q, c))
	return adjustForNumbers(s, numberRe.FindAllString(q, -1), numberRe.FindAllString(c, -1))
}

// Best scores every candidate against query and returns the highest.
// Ties keep the earliest candidate.
func Best(query string, candidates []string) Result {
	best := Result{Index: -1}
	for i, c := range candidates {
		if s := Score(query, c); s > best.Score {
			best = Result{Index: i, Title: c, Score: s}
		}
	}
	best.Confidence = ConfidenceFor(best.Score)
	if best.Confidence == ConfidenceNone {
		best.Index = -1
		best.Title = ""
	}
	return best
}

func adjustForNumbers(score float64, queryNums, candNums []string) float64 {
	if len(queryNums) == 0 {
		return score
	}
	if len(candNums) == 0 {
		return score * 0.85
	}
	for _, n := range queryNums {
		if slices.Contains(candNums, n) {
			return min(score*1.05, 1.0)
		}
	}
	return score * 0.90
}
