package patterns

// z95 is the normal quantile for a 95% Wilson interval.
const z95 = 1.96

// DefaultConfidence is assigned to patterns with no observations yet.
const DefaultConfidence = 0.5

// WilsonScore converts (successCount, failCount) into a conservative
// confidence estimate using the 95% Wilson score interval. The returned value
// is the interval's center, algebraically (s + z²/2) / (n + z²): the raw
// success ratio shrunk toward 0.5 by roughly two pseudo-observations on each
// side. Low-sample patterns therefore stay unconfident - one success over
// zero failures scores about 0.60, not the raw ratio of 1.0 - and the score
// is monotone in successes, so a positive observation never lowers it.
// (0, 0) defaults to 0.5.
func WilsonScore(successCount, failCount int) float64 {
	n := float64(successCount + failCount)
	if n == 0 {
		return DefaultConfidence
	}

	phat := float64(successCount) / n
	z2 := z95 * z95

	score := (phat + z2/(2*n)) / (1 + z2/n)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
