// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "sort"

// filterFloats drops the nil entries from a slice of optional values,
// mirroring the original's `__filter_list__` helper used by every variant.
func filterFloats(vals []*float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// trimF sorts vals and drops the f smallest and f largest entries. If f is
// 0, the full sorted list is returned.
func trimF(vals []float64, f int) []float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	if f == 0 {
		return sorted
	}
	if len(sorted) <= 2*f {
		return nil
	}
	return sorted[f : len(sorted)-f]
}

// trimmedMean returns the midpoint of vals after dropping the f smallest and
// f largest entries: (max+min)/2 of the remainder.
func trimmedMean(vals []float64, f int) float64 {
	trimmed := trimF(vals, f)
	return (maxFloat(trimmed) + minFloat(trimmed)) / 2.0
}

func maxFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// majority returns the value that occurs in vals strictly more than
// len(vals)/2 times, or (0, false) if no such value exists.
func majority(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	counts := make(map[float64]int, len(vals))
	for _, v := range vals {
		counts[v]++
	}
	threshold := float64(len(vals)) / 2.0
	for v, c := range counts {
		if float64(c) > threshold {
			return v, true
		}
	}
	return 0, false
}

func floatPtr(v float64) *float64 {
	return &v
}
