package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/domino14/trialrunner/job"
)

// Checkpoint overwrites a job list file with the queue's remaining jobs.
// Writes go to a temp file that is renamed into place, so a reader never
// sees a half-written list.
type Checkpoint struct {
	path string
}

func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{path: path}
}

func (c *Checkpoint) Path() string {
	return c.path
}

func (c *Checkpoint) Write(jobs []job.Job) error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*")
	if err != nil {
		return fmt.Errorf("creating checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := job.Encode(tmp, jobs, job.FormatFor(c.path)); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	log.Debug().Str("path", c.path).Int("jobs", len(jobs)).Msg("checkpoint-written")
	return nil
}
