package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/govambam/macroscope-code-review-sub002/internal/recreate"
)

// Job tracks one recreation run. The full event history is buffered so a
// client attaching late (or reconnecting) still sees every progress step.
type Job struct {
	ID    string `json:"id"`
	PRURL string `json:"pr_url"`

	mu      sync.Mutex
	events  []recreate.Event
	done    bool
	waiters []chan recreate.Event
}

// Subscribe returns the event history so far plus a channel of subsequent
// events. The channel is closed once the job's terminal event has been
// delivered.
func (j *Job) Subscribe() ([]recreate.Event, <-chan recreate.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	history := make([]recreate.Event, len(j.events))
	copy(history, j.events)

	live := make(chan recreate.Event, 64)
	if j.done {
		close(live)
		return history, live
	}
	j.waiters = append(j.waiters, live)
	return history, live
}

// Events returns a snapshot of the job's event history.
func (j *Job) Events() []recreate.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	history := make([]recreate.Event, len(j.events))
	copy(history, j.events)
	return history
}

// Done reports whether the job has delivered its terminal event.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

func (j *Job) append(event recreate.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, event)
	for _, w := range j.waiters {
		select {
		case w <- event:
		default:
			// Slow subscriber; it still has the history endpoint.
		}
	}
}

func (j *Job) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.done = true
	for _, w := range j.waiters {
		close(w)
	}
	j.waiters = nil
}

// Jobs is an in-memory registry of recreation runs.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobs creates an empty registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*Job)}
}

// Create registers a job consuming the given event stream. Consumption runs
// in a background goroutine until the stream closes.
func (r *Jobs) Create(prURL string, stream <-chan recreate.Event) *Job {
	job := &Job{ID: uuid.NewString(), PRURL: prURL}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	go func() {
		for event := range stream {
			job.append(event)
		}
		job.finish()
	}()
	return job
}

// Get looks up a job by ID.
func (r *Jobs) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, found := r.jobs[id]
	return job, found
}
