// Package util contains misc internal utilities.
package util

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Subaru-PFS/ics-testsActor/keys"
)

// FloatSliceToCSV formats floats with the given precision, NaN as nan
func FloatSliceToCSV(fs []float64, prec int) string {
	s := make([]string, len(fs))
	for i, v := range fs {
		if math.IsNaN(v) {
			s[i] = "nan"
			continue
		}
		s[i] = strconv.FormatFloat(v, 'f', prec, 64)
	}
	return strings.Join(s, ",")
}

// UniqueString returns the unique strings in a slice, in order of first appearance
func UniqueString(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := []string{}
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// CheckDuplicate returns every key that appears more than once, ignoring
// COMMENT cards.  A key seen n times is reported n-1 times.
func CheckDuplicate(ks []string) []string {
	seen := map[string]struct{}{}
	dup := []string{}
	for _, k := range ks {
		if k == "COMMENT" {
			continue
		}
		if _, ok := seen[k]; ok {
			dup = append(dup, k)
			continue
		}
		seen[k] = struct{}{}
	}
	return dup
}

// NewRow flattens several keyword value lists into one row of floats,
// invalid values become NaN
func NewRow(lists ...[]keys.Value) []float64 {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	row := make([]float64, 0, n)
	for _, l := range lists {
		for _, v := range l {
			row = append(row, v.Float())
		}
	}
	return row
}

// Limiter imposes bounds on a value, inclusive.  A NaN bound is open; the
// config loader leaves a bound that is not configured at NaN.
type Limiter struct {
	Min float64 `koanf:"min" yaml:"min" json:"min"`
	Max float64 `koanf:"max" yaml:"max" json:"max"`
}

// Check returns true if x is within the limits
func (l Limiter) Check(x float64) bool {
	if math.IsNaN(x) {
		return false
	}
	if !math.IsNaN(l.Min) && x < l.Min {
		return false
	}
	if !math.IsNaN(l.Max) && x > l.Max {
		return false
	}
	return true
}
