package automatic

// Batch bookkeeping: process-wide counters, progress tracking and the final
// report.

import (
	"errors"
	"expvar"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/trialrunner/runner"
	"github.com/domino14/trialrunner/stats"
	"github.com/domino14/trialrunner/worker"
)

var (
	TrialsCompleted *expvar.Int
	TrialsFailed    *expvar.Int
	WorkersActive   *expvar.Int
)

func init() {
	TrialsCompleted = expvar.NewInt("trialsCompleted")
	TrialsFailed = expvar.NewInt("trialsFailed")
	WorkersActive = expvar.NewInt("workersActive")
}

var ErrAlreadyRunning = errors.New("trials are already being played, please wait till complete")

// Report summarizes a finished or aborted batch.
type Report struct {
	Total     int
	Completed int
	Failed    int
	Elapsed   time.Duration
	// TrialTimes holds per-trial wall time in seconds.
	TrialTimes stats.Statistic
	ByStatus   map[runner.Status]int
}

func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Trials: %d of %d completed, %d need attention\n", r.Completed, r.Total, r.Failed)
	fmt.Fprintf(&sb, "Total time: %s\n", r.Elapsed.Round(time.Millisecond))
	if r.TrialTimes.Count() > 0 {
		fmt.Fprintf(&sb, "Trial time: mean %.3fs  stdev %.3fs  95%% CI ±%.3fs  min %.3fs  max %.3fs\n",
			r.TrialTimes.Mean(), r.TrialTimes.Stdev(), r.TrialTimes.ConfidenceInterval(95),
			r.TrialTimes.Min(), r.TrialTimes.Max())
	}
	for _, st := range []runner.Status{runner.StatusStderr, runner.StatusNoOutput,
		runner.StatusRefereeFailed, runner.StatusPrimaryFailed, runner.StatusSpawnFailed} {
		if n := r.ByStatus[st]; n > 0 {
			fmt.Fprintf(&sb, "  %s: %d\n", st, n)
		}
	}
	return sb.String()
}

// progress counts finished jobs and passes diagnostics to the log. It is
// shared by every worker in a batch.
type progress struct {
	mu     sync.Mutex
	total  int
	report Report
}

func newProgress(total int) *progress {
	return &progress{total: total, report: Report{Total: total, ByStatus: map[runner.Status]int{}}}
}

func (p *progress) Diagnostic(w int, msg string) {
	log.Info().Int("worker", w).Msg(msg)
}

func (p *progress) Observe(o worker.Outcome) {
	p.mu.Lock()
	p.report.Completed++
	p.report.ByStatus[o.Status]++
	if o.Status != runner.StatusOK {
		p.report.Failed++
		TrialsFailed.Add(1)
	}
	if o.Status != runner.StatusSpawnFailed {
		p.report.TrialTimes.PushDuration(o.Elapsed)
	}
	done := p.report.Completed
	p.mu.Unlock()
	TrialsCompleted.Add(1)

	log.Info().Int("worker", o.Worker).Int("done", done).Int("total", p.total).
		Str("status", string(o.Status)).Msg("progress")
}

// snapshot returns a copy of the report so far.
func (p *progress) snapshot() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.report
	r.ByStatus = make(map[runner.Status]int, len(p.report.ByStatus))
	for k, v := range p.report.ByStatus {
		r.ByStatus[k] = v
	}
	return r
}
