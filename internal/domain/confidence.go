package domain

// Confidence converts a cosine distance (0 = identical direction,
// 2 = opposite) to a user-facing score in [0,1].
//
// The low side is clamped at 0 for distances beyond 2. The high side is
// deliberately not clamped: upstream distance is contractually in [0,2],
// so a negative input producing a score above 1 surfaces the contract
// violation instead of hiding it.
func Confidence(distance float64) float64 {
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	return score
}
