package jobs

import (
	"sync"
	"time"
)

type Job interface {
	Execute()
}

// Queue hands jobs to the worker pool. Close stops the workers and releases
// any delayed dispatches that have not fired yet.
type Queue struct {
	jobs chan Job
	done chan struct{}
	once sync.Once
}

func NewQueue(size int) *Queue {
	return &Queue{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

// Dispatch enqueues the job after an optional delay without blocking the
// caller. A dispatch racing Close is discarded.
func (q *Queue) Dispatch(job Job, delay time.Duration) {
	go func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()

			select {
			case <-q.done:
				return
			case <-timer.C:
			}
		}

		select {
		case <-q.done:
		case q.jobs <- job:
		}
	}()
}

func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}

type WorkerPool struct {
	workers []Worker
}

func NewWorkerPool(size int, queue *Queue) *WorkerPool {
	workers := make([]Worker, size)
	for i := 0; i < size; i++ {
		workers[i] = NewWorker(queue)
	}

	return &WorkerPool{workers}
}

func (p *WorkerPool) Start() {
	for _, worker := range p.workers {
		worker.Start()
	}
}

type Worker struct {
	queue *Queue
}

func NewWorker(queue *Queue) Worker {
	return Worker{queue}
}

func (w *Worker) Start() {
	go func() {
		for {
			select {
			case <-w.queue.done:
				return
			case job := <-w.queue.jobs:
				job.Execute()
			}
		}
	}()
}
