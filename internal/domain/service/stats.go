package service

import (
	"math"
	"sort"
)

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// populationStdDev uses the full population (ddof=0)
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// coefficientOfVariation is zero for fewer than two values or a zero mean
func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	if m == 0 {
		return 0
	}
	return populationStdDev(values) / math.Abs(m)
}

func clamp(value, low, high float64) float64 {
	switch {
	case math.IsNaN(value):
		return low
	case value < low:
		return low
	case value > high:
		return high
	default:
		return value
	}
}

func clamp01(value float64) float64 {
	return clamp(value, 0, 1)
}

func uniqueSortedInts(values []int) []int {
	set := make(map[int]struct{}, len(values))
	unique := make([]int, 0, len(values))
	for _, v := range values {
		if _, seen := set[v]; seen {
			continue
		}
		set[v] = struct{}{}
		unique = append(unique, v)
	}
	sort.Ints(unique)
	return unique
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
