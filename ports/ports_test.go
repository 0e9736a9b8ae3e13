package ports

import (
	"testing"

	"github.com/matryer/is"
)

func TestAllocate(t *testing.T) {
	is := is.New(t)
	is.Equal(Allocate(12340, 0, 0), 12340)
	is.Equal(Allocate(12340, 0, 9), 12349)
	is.Equal(Allocate(12340, 1, 0), 12350)
	is.Equal(Allocate(12340, 4, 3), 12383)
}

func TestDistinctWorkersNeverCollide(t *testing.T) {
	is := is.New(t)
	const base, workers = 12340, 8
	owner := map[int]int{}
	for w := range workers {
		for o := range Stride {
			p := Allocate(base, w, o)
			if prev, ok := owner[p]; ok {
				is.Equal(prev, w) // port handed to two workers
			}
			owner[p] = w
		}
	}
	is.Equal(len(owner), workers*Stride)
}

func TestRotationWraps(t *testing.T) {
	is := is.New(t)
	var r Rotation
	var seen []int
	for range 2*Stride + 1 {
		seen = append(seen, r.Offset())
		r.Advance()
	}
	is.Equal(seen, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0})
}
