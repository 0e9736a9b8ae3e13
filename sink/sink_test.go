package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"

	"github.com/domino14/trialrunner/job"
)

func TestResultStoreAppends(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "res.csv")
	s := NewResultStore(path)
	is.NoErr(s.Append("W,O,1.1,15,100\n"))
	is.NoErr(s.Append("L,X,2.2,20,200\n"))
	is.NoErr(s.Append(""))

	b, err := os.ReadFile(path)
	is.NoErr(err)
	is.Equal(string(b), "W,O,1.1,15,100\nL,X,2.2,20,200\n")
}

func TestResultStoreConcurrentAppends(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "res.csv")
	s := NewResultStore(path)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				if err := s.Append(fmt.Sprintf("D,X,%d.%d,81,0\n", w, i)); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	b, err := os.ReadFile(path)
	is.NoErr(err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	is.Equal(len(lines), writers*perWriter)
	for _, l := range lines {
		is.True(strings.HasPrefix(l, "D,X,")) // interleaved write
	}
}

func TestResultStoreUnopenable(t *testing.T) {
	is := is.New(t)
	s := NewResultStore(filepath.Join(t.TempDir(), "missing-dir", "res.csv"))
	err := s.Append("x\n")
	is.True(err != nil)
	is.True(errors.Is(err, os.ErrNotExist))
}

func TestCheckpointOverwrites(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "queue")
	c := NewCheckpoint(path)

	all := job.Enumerate(1)
	is.NoErr(c.Write(all))
	for i := 10; i <= len(all); i += 10 {
		is.NoErr(c.Write(all[i:]))
		got, err := job.LoadFile(path)
		is.NoErr(err)
		is.Equal(len(got), len(all)-i)
	}
	is.NoErr(c.Write(nil))
	got, err := job.LoadFile(path)
	is.NoErr(err)
	is.Equal(len(got), 0)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	is.NoErr(err)
	is.Equal(len(entries), 1)
}

func TestCheckpointYAML(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "queue.yaml")
	c := NewCheckpoint(path)
	jobs := []job.Job{job.New(3, 7, true)}
	is.NoErr(c.Write(jobs))
	got, err := job.LoadFile(path)
	is.NoErr(err)
	is.Equal(got, jobs)
}

type recordingPublisher struct {
	subjects []string
	msgs     []string
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.msgs = append(p.msgs, string(data))
	return nil
}

type failingAppender struct{ err error }

func (f failingAppender) Append(string) error { return f.err }

func TestMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.csv")
	pub := &recordingPublisher{}
	m := NewMirror(NewResultStore(path), NewNatsMirror(pub, "trials"))

	assert.NoError(t, m.Append("W,O,1.1,15,100\n"))
	assert.Equal(t, []string{"trials"}, pub.subjects)
	assert.Equal(t, []string{"W,O,1.1,15,100"}, pub.msgs)

	// a broken secondary is not the batch's problem
	broken := NewMirror(NewResultStore(path), NewNatsMirror(&recordingPublisher{err: errors.New("down")}, "trials"))
	assert.NoError(t, broken.Append("L,X,1.2,10,5\n"))

	// a broken primary is
	boom := errors.New("disk full")
	assert.ErrorIs(t, NewMirror(failingAppender{boom}, NewNatsMirror(pub, "trials")).Append("x\n"), boom)
	assert.Len(t, pub.msgs, 1)
}
