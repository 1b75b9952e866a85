package rest

import (
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
)

const (
	StatusAssigned = "Assigned"
	StatusQueued   = "Queued"
)

// Error codes returned in ErrorResponse.
const (
	ErrorMissing        = "Missing"
	ErrorNotAString     = "NotAString"
	ErrorNotAURL        = "NotAUrl"
	ErrorInvalidPayload = "InvalidPayload"
	ErrorUnavailable    = "Unavailable"
	ErrorInternal       = "Internal"
)

// JobResponse is returned to a registering worker that received a job
// immediately. The same shape is PUT to queued workers' callbacks.
type JobResponse struct {
	Job *core.Job `json:"Job"`
}

type QueuedJobResponse struct {
	Queued QueuePosition `json:"Queued"`
}

type QueuePosition struct {
	Position int `json:"position"`
}

type ErrorResponse struct {
	Error string `json:"Error"`
}

type QueueStatsResponse struct {
	Jobs    int `json:"jobs"`
	Workers int `json:"workers"`
}

// PublicConfig is served to the browser UI at /public/config.json.
type PublicConfig struct {
	ServerPort int `json:"server_port"`
}
