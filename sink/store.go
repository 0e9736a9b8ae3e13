// Package sink persists trial output: the append-only result store, the
// queue checkpoint, and optional mirrors of result lines.
package sink

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

// Appender accepts one result line per trial.
type Appender interface {
	Append(line string) error
}

// ResultStore appends lines to a file, opening and closing it on every call
// so each line lands with a single O_APPEND write.
type ResultStore struct {
	path     string
	attempts uint
	delay    time.Duration
}

func NewResultStore(path string) *ResultStore {
	return &ResultStore{path: path, attempts: 5, delay: 50 * time.Millisecond}
}

func (s *ResultStore) Path() string {
	return s.path
}

// transient reports whether an open failure is worth retrying: the host ran
// out of descriptors or process slots for a moment.
func transient(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR)
}

func (s *ResultStore) Append(line string) error {
	if line == "" {
		return nil
	}
	var f *os.File
	err := retry.Do(
		func() error {
			var err error
			f, err = os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			return err
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(transient),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("path", s.path).Msg("result-store-open-retry")
		}),
	)
	if err != nil {
		return fmt.Errorf("opening result store: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("appending to result store: %w", err)
	}
	return f.Close()
}

// Mirror sends every line to a primary appender and then to any number of
// secondaries. Only the primary's errors are returned.
type Mirror struct {
	primary     Appender
	secondaries []Appender
}

func NewMirror(primary Appender, secondaries ...Appender) *Mirror {
	return &Mirror{primary: primary, secondaries: secondaries}
}

func (m *Mirror) Append(line string) error {
	if err := m.primary.Append(line); err != nil {
		return err
	}
	for _, s := range m.secondaries {
		if err := s.Append(line); err != nil {
			log.Err(err).Msg("result-mirror-failed")
		}
	}
	return nil
}
