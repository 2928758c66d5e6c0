package stats

import (
	"math"
	"slices"
)

// CalculateMedianContinuous finds the median value in a slice of floats.
func CalculateMedianContinuous(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	// Work on a copy to avoid mutating the original
	temp := slices.Clone(values)
	slices.Sort(temp)

	n := len(temp)
	if n%2 == 1 {
		return temp[n/2]
	}
	return (temp[n/2-1] + temp[n/2]) / 2.0
}

// Percentile returns the nearest-rank p-th percentile (0-100) of sorted.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(rank, len(sorted)-1))]
}

// rank returns the share (0-100) of sorted that lies strictly below days.
func rank(sorted []float64, days float64) int {
	if len(sorted) == 0 {
		return 0
	}
	i, _ := slices.BinarySearch(sorted, days)
	return int(float64(i) / float64(len(sorted)) * 100)
}

// roundDays rounds up to a tenth of a day, with 0.1 as the floor.
func roundDays(days float64) float64 {
	return max(0.1, math.Ceil(days*10)/10)
}
