package render

import (
	"sync"

	"github.com/roach88/chartgen/internal/ir"
)

// jobQueue is a thread-safe FIFO queue of render jobs shared by the pool.
//
// The scheduler fills the queue and closes it before any worker starts, so
// workers never wait: an empty queue means the batch is fully handed out.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []queuedJob
	closed bool
}

// queuedJob carries the submission index so results keep submission order.
type queuedJob struct {
	pos int
	job ir.Job
}

func newJobQueue(capacity int) *jobQueue {
	return &jobQueue{jobs: make([]queuedJob, 0, capacity)}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(j queuedJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	return true
}

// TryDequeue removes the front job without blocking.
// Returns false if the queue is empty.
func (q *jobQueue) TryDequeue() (queuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return queuedJob{}, false
	}
	j := q.jobs[0]
	q.jobs[0] = queuedJob{}
	q.jobs = q.jobs[1:]
	return j, true
}

// Len returns the current queue length.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close rejects further Enqueue calls. Queued jobs stay dequeuable.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
