// Package queue is the job queue shared by all workers. An item counts as
// finished only after the worker that took it calls TaskDone; Join waits for
// every item ever put to be finished.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/domino14/trialrunner/job"
)

var ErrTaskDone = errors.New("TaskDone called more times than there were items")

type Queue struct {
	mu         sync.Mutex
	items      []job.Job
	unfinished int
	// closed and replaced whenever items are added
	wake chan struct{}
	// closed and replaced whenever unfinished drops to zero
	drained chan struct{}
}

func New() *Queue {
	return &Queue{
		wake:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Put appends jobs to the tail of the queue.
func (q *Queue) Put(jobs ...job.Job) {
	if len(jobs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, jobs...)
	q.unfinished += len(jobs)
	close(q.wake)
	q.wake = make(chan struct{})
}

// Get removes and returns the head of the queue, blocking until an item is
// available or ctx is done. Each item is returned to exactly one caller.
// Once ctx is done no item is handed out.
func (q *Queue) Get(ctx context.Context) (job.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return job.Job{}, err
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			j := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return j, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return job.Job{}, ctx.Err()
		case <-wake:
		}
	}
}

// TaskDone marks one previously fetched item as finished.
func (q *Queue) TaskDone() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished == 0 {
		return ErrTaskDone
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.drained)
		q.drained = make(chan struct{})
	}
	return nil
}

// Join blocks until every item put so far has been fetched and marked done.
// Items put while Join is waiting must also finish before it returns.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.mu.Unlock()
		return nil
	}
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-drained:
		return nil
	}
}

// Snapshot copies the items not yet fetched. Other workers may change the
// queue right after it returns.
func (q *Queue) Snapshot() []job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]job.Job{}, q.items...)
}

// Len is the number of items not yet fetched.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished is the number of items not yet marked done.
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}
