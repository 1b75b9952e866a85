package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is a unit of work. Data is opaque to the coordinator and is forwarded
// to the worker untouched.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Data        json.RawMessage `json:"data"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

func NewJob(data json.RawMessage) *Job {
	return &Job{
		ID:          uuid.New(),
		Data:        data,
		SubmittedAt: time.Now().UTC(),
	}
}

// QueuedFor returns how long the job has been waiting at the given instant.
func (j *Job) QueuedFor(now time.Time) time.Duration {
	if j.SubmittedAt.IsZero() || now.Before(j.SubmittedAt) {
		return 0
	}
	return now.Sub(j.SubmittedAt)
}

// Worker is a pending claim on the next job. One registration receives at
// most one job.
type Worker struct {
	CallbackURL  string    `json:"callback_url"`
	RegisteredAt time.Time `json:"registered_at"`
}

func NewWorker(callbackURL string) Worker {
	return Worker{
		CallbackURL:  callbackURL,
		RegisteredAt: time.Now().UTC(),
	}
}

func (w Worker) QueuedFor(now time.Time) time.Duration {
	if w.RegisteredAt.IsZero() || now.Before(w.RegisteredAt) {
		return 0
	}
	return now.Sub(w.RegisteredAt)
}

// SubmitResult is the outcome of a job submission. When Assigned is false the
// job was queued at Position (1-based).
type SubmitResult struct {
	Assigned bool
	Position int
	Job      *Job
}

// RegisterResult is the outcome of a worker registration. A nil Job means the
// worker was queued and will be called back.
type RegisterResult struct {
	Job *Job
}

func (r RegisterResult) Queued() bool {
	return r.Job == nil
}

type QueueStats struct {
	Jobs    int `json:"jobs"`
	Workers int `json:"workers"`
}
