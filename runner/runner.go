// Package runner plays one trial: a referee process and two player processes
// talking to each other over a single port.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/trialrunner/config"
	"github.com/domino14/trialrunner/job"
)

var (
	ErrSpawn    = errors.New("process failed to start")
	ErrNoOutput = errors.New("primary player produced no output")
)

// Status classifies a finished trial for the operator.
type Status string

const (
	StatusOK            Status = "ok"
	StatusStderr        Status = "stderr"
	StatusNoOutput      Status = "no-output"
	StatusRefereeFailed Status = "referee-failed"
	StatusPrimaryFailed Status = "primary-failed"
	StatusSpawnFailed   Status = "spawn-failed"
)

// Result is what a trial leaves behind once the referee and the primary
// player have exited.
type Result struct {
	Port          int
	PrimaryStdout string
	PrimaryStderr string
	RefereeStdout string
	// RefereeErr and PrimaryErr hold non-nil exit errors.
	RefereeErr error
	PrimaryErr error
	Elapsed    time.Duration
}

// Line is the primary's output as a single result-store line.
func (r *Result) Line() string {
	if r.PrimaryStdout == "" || strings.HasSuffix(r.PrimaryStdout, "\n") {
		return r.PrimaryStdout
	}
	return r.PrimaryStdout + "\n"
}

// Diagnostic is the referee's report, trimmed for the operator log.
func (r *Result) Diagnostic() string {
	return strings.TrimSpace(r.RefereeStdout)
}

func (r *Result) Status() Status {
	switch {
	case strings.TrimSpace(r.PrimaryStdout) == "":
		return StatusNoOutput
	case r.RefereeErr != nil:
		return StatusRefereeFailed
	case r.PrimaryErr != nil:
		return StatusPrimaryFailed
	case r.PrimaryStderr != "":
		return StatusStderr
	}
	return StatusOK
}

// Runner starts trials. It keeps track of the detached player processes so
// they are always reaped; call Wait before exiting.
type Runner struct {
	settings *config.Settings
	reapers  sync.WaitGroup
}

func NewRunner(s *config.Settings) *Runner {
	return &Runner{settings: s}
}

func (r *Runner) command(ctx context.Context, role Role, port int, j job.Job) *exec.Cmd {
	argv := Argv(r.settings, role, port, j)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.settings.KillGrace
	return cmd
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

type trialProc struct {
	role   Role
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// RunTrial plays job j on port and blocks until the referee and the primary
// player have exited. A returned error means no result: either a process
// could not be started (ErrSpawn) or ctx was cancelled mid-trial.
func (r *Runner) RunTrial(ctx context.Context, port int, j job.Job) (*Result, error) {
	logger := log.With().Int("port", port).Stringer("move", j.FirstMove).
		Bool("agent-first", j.GoesFirst).Logger()
	start := time.Now()

	trialCtx, stop := context.WithCancel(ctx)
	defer stop()
	var stopDetached context.CancelFunc

	// abort tears down whatever has been started so far.
	abort := func(started []*trialProc, err error) (*Result, error) {
		stop()
		if stopDetached != nil {
			stopDetached()
		}
		for _, p := range started {
			_ = p.cmd.Wait()
		}
		return nil, err
	}

	referee := &trialProc{role: RoleReferee, cmd: r.command(trialCtx, RoleReferee, port, j)}
	referee.cmd.Stdout = &referee.stdout
	referee.cmd.Stderr = &referee.stderr
	if err := referee.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrSpawn, RoleReferee, err)
	}
	logger.Debug().Int("pid", referee.cmd.Process.Pid).Msg("referee-started")
	started := []*trialProc{referee}

	if err := sleep(ctx, r.settings.SettleDelay); err != nil {
		return abort(started, err)
	}

	var primary *trialProc
	for i, role := range LaunchOrder(j.GoesFirst) {
		if i > 0 {
			if err := sleep(ctx, r.settings.SettleDelay); err != nil {
				return abort(started, err)
			}
		}
		if role == PrimaryRole {
			primary = &trialProc{role: role, cmd: r.command(trialCtx, role, port, j)}
			primary.cmd.Stdout = &primary.stdout
			primary.cmd.Stderr = &primary.stderr
			if err := primary.cmd.Start(); err != nil {
				return abort(started, fmt.Errorf("%w: %v: %w", ErrSpawn, role, err))
			}
			started = append(started, primary)
			logger.Debug().Int("pid", primary.cmd.Process.Pid).Stringer("role", role).Msg("primary-started")
			continue
		}
		detCtx, detStop := context.WithCancel(ctx)
		stopDetached = detStop
		if err := r.detach(detCtx, detStop, role, port, j); err != nil {
			return abort(started, err)
		}
	}

	refErr := referee.cmd.Wait()
	primErr := primary.cmd.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Port:          port,
		PrimaryStdout: primary.stdout.String(),
		PrimaryStderr: primary.stderr.String(),
		RefereeStdout: referee.stdout.String(),
		RefereeErr:    refErr,
		PrimaryErr:    primErr,
		Elapsed:       time.Since(start),
	}
	if refErr != nil {
		logger.Warn().Err(refErr).Str("stderr", strings.TrimSpace(referee.stderr.String())).
			Msg("referee-exited-with-error")
	}
	if primErr != nil {
		logger.Warn().Err(primErr).Msg("primary-exited-with-error")
	}
	return res, nil
}

// detach starts the non-primary player. Nobody waits on it as part of the
// trial; a reaper goroutine collects it when the game ends.
func (r *Runner) detach(ctx context.Context, stop context.CancelFunc, role Role, port int, j job.Job) error {
	cmd := r.command(ctx, role, port, j)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		stop()
		return fmt.Errorf("%w: %v: %w", ErrSpawn, role, err)
	}
	pid := cmd.Process.Pid
	log.Debug().Int("port", port).Int("pid", pid).Stringer("role", role).Msg("detached-started")

	r.reapers.Add(1)
	go func() {
		defer r.reapers.Done()
		defer stop()
		err := cmd.Wait()
		ev := log.Debug()
		if err != nil {
			ev = log.Info().Err(err)
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			ev = ev.Str("stderr", s)
		}
		ev.Int("port", port).Int("pid", pid).Stringer("role", role).Msg("detached-reaped")
	}()
	return nil
}

// Wait blocks until every detached player started so far has been reaped.
func (r *Runner) Wait() {
	r.reapers.Wait()
}
