package stats

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestRunningStat(t *testing.T) {
	is := is.New(t)
	type tc struct {
		vals  []float64
		mean  float64
		stdev float64
	}
	cases := []tc{
		{[]float64{10, 12, 23, 23, 16, 23, 21, 16}, 18, 5.2372293656638},
		{[]float64{14, 35, 71, 124, 10, 24, 55, 33, 87, 19}, 47.2, 36.937785531891},
		{[]float64{1}, 1, 0},
		{[]float64{}, 0, 0},
		{[]float64{1, 1}, 1, 0},
	}
	for _, c := range cases {
		s := &Statistic{}
		for _, v := range c.vals {
			s.Push(v)
		}
		is.Equal(s.Count(), len(c.vals))
		is.True(FuzzyEqual(s.Mean(), c.mean))
		is.True(FuzzyEqual(s.Stdev(), c.stdev))
	}
}

func TestMinMax(t *testing.T) {
	is := is.New(t)
	s := &Statistic{}
	for _, d := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		s.PushDuration(d)
	}
	is.True(FuzzyEqual(s.Min(), 1))
	is.True(FuzzyEqual(s.Max(), 3))
	is.True(FuzzyEqual(s.Mean(), 2))
}

func TestConfidenceInterval(t *testing.T) {
	is := is.New(t)
	is.True(FuzzyEqual(ZVal(95), 1.959963984540054))
	is.True(FuzzyEqual(ZVal(99), 2.5758293035489004))

	s := &Statistic{}
	for _, v := range []float64{14, 35, 71, 124, 10, 24, 55, 33, 87, 19} {
		s.Push(v)
	}
	// 1.96 * 36.937785531891 / sqrt(10)
	is.True(FuzzyEqual(s.ConfidenceInterval(95), 22.893855977))
	is.Equal((&Statistic{}).ConfidenceInterval(95), 0.0)
}
