// Package job describes the unit of scheduled work: one game trial with a
// forced opening move and a first-mover flag.
package job

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/samber/lo"
	"lukechampine.com/frand"
)

const (
	NumBoards  = 9
	NumSquares = 9
)

// Move is an opening move, 1-indexed as the engines expect it.
type Move [2]int

func (m Move) Board() int  { return m[0] }
func (m Move) Square() int { return m[1] }

func (m Move) String() string {
	return fmt.Sprintf("%d.%d", m[0], m[1])
}

// Job is immutable once created. The JSON field names match the job lists
// the harness has always written, so old checkpoints still load.
type Job struct {
	FirstMove Move `json:"first_move" yaml:"first_move"`
	// GoesFirst is true when the learned agent makes the forced opening move.
	GoesFirst bool `json:"first" yaml:"first"`
}

func New(board, square int, goesFirst bool) Job {
	return Job{FirstMove: Move{board, square}, GoesFirst: goesFirst}
}

func (j Job) Validate() error {
	if j.FirstMove[0] < 1 || j.FirstMove[0] > NumBoards {
		return fmt.Errorf("board %d out of range", j.FirstMove[0])
	}
	if j.FirstMove[1] < 1 || j.FirstMove[1] > NumSquares {
		return fmt.Errorf("square %d out of range", j.FirstMove[1])
	}
	return nil
}

func (j Job) String() string {
	return fmt.Sprintf("move=%v first=%v", j.FirstMove, j.GoesFirst)
}

// Key is a stable identity for the job's parameters. Repeated jobs share a key.
func (j Job) Key() uint64 {
	var buf [9]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(j.FirstMove[0]))
	binary.LittleEndian.PutUint32(buf[4:], uint32(j.FirstMove[1]))
	if j.GoesFirst {
		buf[8] = 1
	}
	return xxhash.Sum64(buf[:])
}

// Enumerate builds the full batch: every opening on every board, with each
// side going first, repeated reps times.
func Enumerate(reps int) []Job {
	boards := lo.RangeFrom(1, NumBoards)
	squares := lo.RangeFrom(1, NumSquares)
	var jobs []Job
	for range reps {
		for _, b := range boards {
			for _, first := range []bool{true, false} {
				jobs = append(jobs, lo.Map(squares, func(s int, _ int) Job {
					return New(b, s, first)
				})...)
			}
		}
	}
	return jobs
}

// Shuffle permutes jobs in place.
func Shuffle(jobs []Job) {
	frand.Shuffle(len(jobs), func(i, j int) {
		jobs[i], jobs[j] = jobs[j], jobs[i]
	})
}
