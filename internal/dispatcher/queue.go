package dispatcher

import (
	"sync"

	"github.com/localjudge/engine/internal/contest"
)

// Job is one queued submission awaiting a sandbox slot.
type Job struct {
	ContestID     string
	ParticipantID string
	TaskID        int64
	Language      contest.Language
	Code          string
	SubmittedAt   int64
}

// queue is an unbounded FIFO of Jobs (spec §4.2 "unbounded FIFO submission
// queue"). A condition variable wakes blocked workers on Push; Pop blocks
// until a Job is available or the queue is closed.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Job
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) Push(j Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, j)
	q.cond.Signal()
}

// Pop blocks until a Job is available, returning ok=false once the queue is
// closed and drained.
func (q *queue) Pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Job{}, false
	}
	j := q.items[0]
	q.items = q.items[1:]
	return j, true
}

func (q *queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes every blocked worker so they can observe closed and exit.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
