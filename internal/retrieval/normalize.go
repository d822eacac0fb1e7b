package retrieval

// NormalizeScores rescales a raw score map to [0,1] with min-max
// normalization: shift so the minimum is 0, then divide by the maximum of
// the shifted values. A uniform map normalizes to 1.0 everywhere — one
// flat signal is treated as maximally confident, not discarded. Min-max
// rather than z-score because fusion is a weighted sum of two
// independently scaled signals; only relative order and bounded range
// matter.
func NormalizeScores(raw map[int]float64) map[int]float64 {
	if len(raw) == 0 {
		return map[int]float64{}
	}

	first := true
	var minimum, maximum float64
	for _, v := range raw {
		if first {
			minimum, maximum = v, v
			first = false
			continue
		}
		if v < minimum {
			minimum = v
		}
		if v > maximum {
			maximum = v
		}
	}

	out := make(map[int]float64, len(raw))
	if maximum == minimum {
		for k := range raw {
			out[k] = 1.0
		}
		return out
	}

	scale := maximum - minimum
	for k, v := range raw {
		out[k] = (v - minimum) / scale
	}
	return out
}
