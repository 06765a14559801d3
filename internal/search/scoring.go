package search

import "math"

// saturate maps an unbounded BM25 score into [0, 1) with diminishing
// returns: score / (score + k).
func saturate(score, k float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + k)
}

// cosineToUnit maps cosine similarity from [-1, 1] to [0, 1].
func cosineToUnit(c float64) float64 {
	return (c + 1) / 2
}

func roundTo3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
