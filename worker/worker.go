// Package worker runs trials one at a time from the shared queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/trialrunner/config"
	"github.com/domino14/trialrunner/job"
	"github.com/domino14/trialrunner/ledger"
	"github.com/domino14/trialrunner/ports"
	"github.com/domino14/trialrunner/runner"
	"github.com/domino14/trialrunner/sink"
)

// Queue is the worker's view of the shared job queue.
type Queue interface {
	Get(ctx context.Context) (job.Job, error)
	TaskDone() error
	Snapshot() []job.Job
}

type TrialRunner interface {
	RunTrial(ctx context.Context, port int, j job.Job) (*runner.Result, error)
}

type Checkpointer interface {
	Write(jobs []job.Job) error
}

type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Progress is told about every finished job, successful or not.
type Progress interface {
	Observe(o Outcome)
	Diagnostic(worker int, msg string)
}

// Outcome summarizes one processed job.
type Outcome struct {
	Worker  int
	Job     job.Job
	Port    int
	Offset  int
	Started time.Time
	Elapsed time.Duration
	Status  runner.Status
	Detail  string
}

func (o Outcome) ledgerEntry() ledger.Entry {
	return ledger.Entry{
		JobKey:    o.Job.Key(),
		Board:     o.Job.FirstMove.Board(),
		Square:    o.Job.FirstMove.Square(),
		GoesFirst: o.Job.GoesFirst,
		Worker:    o.Worker,
		Port:      o.Port,
		Offset:    o.Offset,
		StartedAt: o.Started,
		Elapsed:   o.Elapsed,
		Status:    string(o.Status),
		Detail:    o.Detail,
	}
}

// Deps are the collaborators a worker is built from. Checkpoint, Ledger and
// Progress may be nil.
type Deps struct {
	Queue      Queue
	Trials     TrialRunner
	Results    sink.Appender
	Checkpoint Checkpointer
	Ledger     Recorder
	Progress   Progress
}

type Worker struct {
	id        int
	settings  *config.Settings
	deps      Deps
	rotation  ports.Rotation
	processed int
	pending   *job.Job
	state     atomic.Int32
	logger    zerolog.Logger
}

// New builds worker id. Only worker 0 writes checkpoints; other workers
// ignore deps.Checkpoint.
func New(id int, s *config.Settings, deps Deps) *Worker {
	if id != 0 {
		deps.Checkpoint = nil
	}
	return &Worker{
		id:       id,
		settings: s,
		deps:     deps,
		logger:   log.With().Int("worker", id).Logger(),
	}
}

func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Processed is the number of jobs this worker has finished.
func (w *Worker) Processed() int {
	return w.processed
}

// Pending returns the job taken from the queue but not finished when Run
// returned. Only call it after Run has returned.
func (w *Worker) Pending() (job.Job, bool) {
	if w.pending == nil {
		return job.Job{}, false
	}
	return *w.pending, true
}

// Run loops until ctx is cancelled or a storage failure makes further work
// pointless. Per-job failures are logged and the loop carries on.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug().Msg("worker-starting")
	defer w.setState(StateCancelled)
	for {
		w.setState(StateDequeuing)
		j, err := w.deps.Queue.Get(ctx)
		if err != nil {
			w.logger.Debug().Err(err).Msg("worker-stopping")
			return err
		}
		w.pending = &j

		if w.deps.Checkpoint != nil && w.processed%w.settings.CheckpointEvery == 0 {
			if err := w.deps.Checkpoint.Write(w.deps.Queue.Snapshot()); err != nil {
				return fmt.Errorf("worker %d: writing checkpoint: %w", w.id, err)
			}
		}

		w.setState(StateRunning)
		o, err := w.process(ctx, j)
		w.rotation.Advance()
		w.processed++
		if err != nil {
			return err
		}
		if err := w.deps.Queue.TaskDone(); err != nil {
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
		w.pending = nil
		if w.deps.Progress != nil {
			w.deps.Progress.Observe(o)
		}

		w.setState(StateIdle)
		if err := sleep(ctx, w.settings.ThrottleDelay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// process runs one job and records it. The returned error is either ctx's
// or a result-store failure; everything else is contained here and reported
// through the outcome.
func (w *Worker) process(ctx context.Context, j job.Job) (Outcome, error) {
	offset := w.rotation.Offset()
	port := ports.Allocate(w.settings.BasePort, w.id, offset)
	o := Outcome{Worker: w.id, Job: j, Port: port, Offset: offset, Started: time.Now()}
	logger := w.logger.With().Int("port", port).Stringer("move", j.FirstMove).
		Bool("agent-first", j.GoesFirst).Logger()

	res, err := w.deps.Trials.RunTrial(ctx, port, j)
	o.Elapsed = time.Since(o.Started)
	if err != nil {
		if ctx.Err() != nil {
			return o, ctx.Err()
		}
		logger.Error().Err(err).Msg("trial-failed")
		o.Status = runner.StatusSpawnFailed
		if errors.Is(err, runner.ErrSpawn) {
			o.Detail = err.Error()
		} else {
			o.Detail = "unexpected: " + err.Error()
		}
		w.record(ctx, o)
		return o, nil
	}

	w.setState(StateRecording)
	o.Status = res.Status()
	if diag := res.Diagnostic(); diag != "" {
		w.diagnostic(diag)
	}
	if stderr := strings.TrimSpace(res.PrimaryStderr); stderr != "" {
		w.diagnostic(stderr)
		o.Detail = stderr
	}
	switch o.Status {
	case runner.StatusNoOutput:
		logger.Warn().Err(runner.ErrNoOutput).Msg("trial-produced-nothing")
		if o.Detail == "" {
			o.Detail = runner.ErrNoOutput.Error()
		}
	case runner.StatusRefereeFailed:
		o.Detail = res.RefereeErr.Error()
	case runner.StatusPrimaryFailed:
		if o.Detail == "" {
			o.Detail = res.PrimaryErr.Error()
		} else {
			o.Detail = res.PrimaryErr.Error() + ": " + o.Detail
		}
	}

	if line := res.Line(); line != "" {
		if err := w.deps.Results.Append(line); err != nil {
			return o, fmt.Errorf("worker %d: %w", w.id, err)
		}
	}
	logger.Debug().Dur("elapsed", o.Elapsed).Str("status", string(o.Status)).Msg("trial-finished")
	w.record(ctx, o)
	return o, nil
}

func (w *Worker) diagnostic(msg string) {
	if w.deps.Progress != nil {
		w.deps.Progress.Diagnostic(w.id, msg)
		return
	}
	w.logger.Info().Msg(msg)
}

func (w *Worker) record(ctx context.Context, o Outcome) {
	if w.deps.Ledger == nil {
		return
	}
	if err := w.deps.Ledger.Record(ctx, o.ledgerEntry()); err != nil {
		w.logger.Err(err).Msg("ledger-record-failed")
	}
}
