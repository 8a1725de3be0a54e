package store

import (
	"math"
	"sort"
)

// cosine returns the cosine similarity of a and b. A zero vector has
// similarity 0 with everything.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// cosineScore maps a cosine similarity in [-1, 1] to [0, 1]. Unrelated
// and opposed vectors both score 0, matching Cosmos searchScore.
func cosineScore(sim float64) float64 {
	return clamp01(sim)
}

// l2Score maps a Euclidean distance in [0, inf) to (0, 1].
func l2Score(d float64) float64 {
	return 1 / (1 + d)
}

// score computes the normalized score of b against query a.
func score(metric Metric, a, b []float32) float64 {
	if metric == MetricL2 {
		return l2Score(l2(a, b))
	}
	return cosineScore(cosine(a, b))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// rank drops hits below minScore, orders the rest by descending score
// with id as tie-break, and keeps at most k.
func rank(hits []ScoredRecord, k int, minScore float64) []ScoredRecord {
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
