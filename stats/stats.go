// Package stats accumulates running statistics over trial measurements
// without keeping the samples around.
package stats

import (
	"math"
	"time"
)

const (
	Epsilon = 1e-6
)

func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Statistic is a running mean and variance (Welford's algorithm). The zero
// value is ready to use.
type Statistic struct {
	n    int
	mean float64
	m2   float64
	min  float64
	max  float64
}

func (s *Statistic) Push(val float64) {
	s.n++
	if s.n == 1 {
		s.mean, s.m2, s.min, s.max = val, 0, val, val
		return
	}
	delta := val - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (val - s.mean)
	s.min = math.Min(s.min, val)
	s.max = math.Max(s.max, val)
}

// PushDuration records d in seconds.
func (s *Statistic) PushDuration(d time.Duration) {
	s.Push(d.Seconds())
}

func (s *Statistic) Mean() float64 {
	return s.mean
}

func (s *Statistic) Variance() float64 {
	if s.n <= 1 {
		return 0.0
	}
	return s.m2 / float64(s.n-1)
}

func (s *Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

func (s *Statistic) Min() float64 { return s.min }
func (s *Statistic) Max() float64 { return s.max }

// StandardError returns the standard error of the mean.
func (s *Statistic) StandardError() float64 {
	if s.n == 0 {
		return 0.0
	}
	return math.Sqrt(s.Variance() / float64(s.n))
}

// ConfidenceInterval returns the half-width of the confidence interval around
// the mean, for a confidence level in percent.
func (s *Statistic) ConfidenceInterval(confidence float64) float64 {
	return ZVal(confidence) * s.StandardError()
}

func (s *Statistic) Count() int {
	return s.n
}
