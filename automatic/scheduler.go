// Package automatic runs a batch of trials across a fixed pool of workers.
package automatic

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/trialrunner/config"
	"github.com/domino14/trialrunner/job"
	"github.com/domino14/trialrunner/queue"
	"github.com/domino14/trialrunner/sink"
	"github.com/domino14/trialrunner/worker"
)

var playing atomic.Bool

// Options are the collaborators a batch needs. Checkpoint and Ledger may be
// nil.
type Options struct {
	Trials     worker.TrialRunner
	Results    sink.Appender
	Checkpoint worker.Checkpointer
	Ledger     worker.Recorder
}

type Scheduler struct {
	settings *config.Settings
	opts     Options
}

func NewScheduler(s *config.Settings, opts Options) *Scheduler {
	return &Scheduler{settings: s, opts: opts}
}

// Run plays every job and returns once the queue has drained. If ctx is
// cancelled or a worker hits a storage failure, Run stops all workers,
// checkpoints what was left undone and returns the cause alongside a partial
// report.
func (s *Scheduler) Run(ctx context.Context, jobs []job.Job) (*Report, error) {
	if !playing.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer playing.Store(false)

	TrialsCompleted.Set(0)
	TrialsFailed.Set(0)
	start := time.Now()
	log.Info().Int("jobs", len(jobs)).Int("workers", s.settings.NumWorkers).Msg("starting-batch")

	q := queue.New()
	q.Put(jobs...)
	prog := newProgress(len(jobs))

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(workCtx)

	workers := make([]*worker.Worker, s.settings.NumWorkers)
	for id := range workers {
		w := worker.New(id, s.settings, worker.Deps{
			Queue:      q,
			Trials:     s.opts.Trials,
			Results:    s.opts.Results,
			Checkpoint: s.opts.Checkpoint,
			Ledger:     s.opts.Ledger,
			Progress:   prog,
		})
		workers[id] = w
		g.Go(func() error {
			WorkersActive.Add(1)
			defer WorkersActive.Add(-1)
			return w.Run(gctx)
		})
	}

	joinErr := q.Join(gctx)
	cancel()
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil && joinErr != nil {
		err = ctx.Err()
		if err == nil {
			err = joinErr
		}
	}

	if w, ok := s.opts.Trials.(interface{ Wait() }); ok {
		w.Wait()
	}

	if err != nil {
		s.abortCheckpoint(workers, q)
	}

	report := prog.snapshot()
	report.Elapsed = time.Since(start)
	log.Info().Dur("total_time", report.Elapsed).Int("jobs", report.Total).
		Int("completed", report.Completed).Msg("batch-finished")
	return &report, err
}

// abortCheckpoint saves the jobs that were in flight followed by the ones
// never taken, so the list can be fed back in with --jobs-file.
func (s *Scheduler) abortCheckpoint(workers []*worker.Worker, q *queue.Queue) {
	if s.opts.Checkpoint == nil {
		return
	}
	var left []job.Job
	for _, w := range workers {
		if j, ok := w.Pending(); ok {
			left = append(left, j)
		}
	}
	left = append(left, q.Snapshot()...)
	if err := s.opts.Checkpoint.Write(left); err != nil {
		log.Err(err).Msg("abort-checkpoint-failed")
		return
	}
	log.Info().Int("remaining", len(left)).Msg("abort-checkpoint-written")
}
