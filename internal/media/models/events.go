package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
)

const (
	EventJobCompleted = "job-completed"
	EventJobFailed    = "job-failed"
)

// Event is a job outcome notification. It is never persisted.
type Event struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	JobID      string        `json:"jobId"`
	Status     domain.Status `json:"status"`
	ResultURL  string        `json:"resultUrl,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

func NewJobCompleted(jobID, resultURL string) Event {
	return Event{
		ID:         uuid.New(),
		Name:       EventJobCompleted,
		JobID:      jobID,
		Status:     domain.Completed,
		ResultURL:  resultURL,
		OccurredAt: time.Now().UTC(),
	}
}

func NewJobFailed(jobID, reason string) Event {
	return Event{
		ID:         uuid.New(),
		Name:       EventJobFailed,
		JobID:      jobID,
		Status:     domain.Failed,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

// Payload is the client-facing body: {jobId, status, resultUrl|reason}.
func (e Event) Payload() ([]byte, error) {
	return json.Marshal(struct {
		JobID     string        `json:"jobId"`
		Status    domain.Status `json:"status"`
		ResultURL string        `json:"resultUrl,omitempty"`
		Reason    string        `json:"reason,omitempty"`
	}{
		JobID:     e.JobID,
		Status:    e.Status,
		ResultURL: e.ResultURL,
		Reason:    e.Reason,
	})
}
