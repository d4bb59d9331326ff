package pipeline

import (
	"container/heap"
	"errors"
	"sync"

	"revq.app/revq/internal/model"
)

var (
	// ErrQueueFull is returned when the queue is at its configured depth.
	ErrQueueFull = errors.New("task queue full")
	// ErrQueueClosed is returned for enqueues after shutdown began.
	ErrQueueClosed = errors.New("task queue closed")
)

// TaskQueue is a bounded priority queue of analysis jobs. Ordering is
// (priority desc, arrival asc): higher priority dequeues first, ties within
// a band are FIFO. Enqueue never blocks; Dequeue blocks until a job is
// available or the queue is closed.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  jobHeap
	seq    uint64
	depth  int
	closed bool
}

func NewTaskQueue(depth int) *TaskQueue {
	if depth <= 0 {
		depth = 1024
	}
	q := &TaskQueue{depth: depth}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a job without blocking. A full queue rejects with
// ErrQueueFull rather than growing unbounded.
func (q *TaskQueue) Enqueue(job *model.AnalysisJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.items.Len() >= q.depth {
		return ErrQueueFull
	}

	q.seq++
	heap.Push(&q.items, &queuedJob{job: job, seq: q.seq})
	q.cond.Signal()
	return nil
}

// Dequeue blocks the calling worker until a job is available. After Close,
// remaining jobs are still handed out; once the queue is closed and empty,
// Dequeue returns ok=false as the shutdown sentinel.
func (q *TaskQueue) Dequeue() (*model.AnalysisJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(*queuedJob)
	return item.job, true
}

// Len reports the number of queued, unclaimed jobs.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close stops accepting new jobs and wakes all blocked workers. Jobs still
// queued remain dequeueable (drain); call Discard to drop them instead.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Discard empties the queue and returns the dropped jobs so the caller can
// log them. Dropping queued work must be observable, never silent.
func (q *TaskQueue) Discard() []*model.AnalysisJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := make([]*model.AnalysisJob, 0, q.items.Len())
	for q.items.Len() > 0 {
		item := heap.Pop(&q.items).(*queuedJob)
		dropped = append(dropped, item.job)
	}
	q.cond.Broadcast()
	return dropped
}

type queuedJob struct {
	job *model.AnalysisJob
	seq uint64
}

type jobHeap []*queuedJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	if !h[i].job.EnqueuedAt.Equal(h[j].job.EnqueuedAt) {
		return h[i].job.EnqueuedAt.Before(h[j].job.EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*queuedJob)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
