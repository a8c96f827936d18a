package types

// ClampConfidence bounds a confidence value to [0, 1].
func ClampConfidence(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WeightedAverage returns sum(v*w)/sum(w) over pairs with positive weight,
// clamped to [0, 1]. Mismatched lengths use the shorter slice.
func WeightedAverage(values, weights []float64) float64 {
	n := len(values)
	if len(weights) < n {
		n = len(weights)
	}
	var sum, total float64
	for i := 0; i < n; i++ {
		if weights[i] <= 0 {
			continue
		}
		sum += values[i] * weights[i]
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return ClampConfidence(sum / total)
}
