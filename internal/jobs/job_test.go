package jobs

import (
	"testing"
	"time"
)

type signalJob struct {
	executed chan struct{}
}

func newSignalJob() *signalJob {
	return &signalJob{executed: make(chan struct{}, 1)}
}

func (j *signalJob) Execute() {
	j.executed <- struct{}{}
}

func TestDispatchRunsJob(t *testing.T) {
	t.Parallel()

	queue := NewQueue(1)
	defer queue.Close()

	NewWorkerPool(1, queue).Start()

	job := newSignalJob()

	queue.Dispatch(job, 0)

	select {
	case <-job.executed:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatched job never ran")
	}
}

func TestCloseStopsDelayedDispatch(t *testing.T) {
	t.Parallel()

	queue := NewQueue(1)

	NewWorkerPool(1, queue).Start()

	job := newSignalJob()

	queue.Dispatch(job, 50*time.Millisecond)
	queue.Close()

	select {
	case <-job.executed:
		t.Fatal("job ran after the queue was closed")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	queue := NewQueue(1)

	queue.Close()
	queue.Close()
}
