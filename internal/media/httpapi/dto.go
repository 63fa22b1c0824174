package httpapi

import (
	"time"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type SubmittedJob struct {
	JobID        string `json:"jobId"`
	OriginalName string `json:"originalName"`
}

// SubmitResponse lists the jobs created by an upload. When a later file
// fails, Error is set and Jobs still holds the files already queued.
type SubmitResponse struct {
	Message string         `json:"message"`
	Error   string         `json:"error,omitempty"`
	Jobs    []SubmittedJob `json:"jobs"`
}

type JobResponse struct {
	ID           string           `json:"jobId"`
	OwnerID      string           `json:"ownerId"`
	OriginalName string           `json:"originalName,omitempty"`
	MimeType     string           `json:"mimeType,omitempty"`
	MediaKind    models.MediaKind `json:"mediaKind"`
	JobKind      models.JobKind   `json:"jobKind"`
	Status       string           `json:"status"`
	ResultURL    string           `json:"resultUrl,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func toJobResponse(j *models.Job) JobResponse {
	return JobResponse{
		ID:           j.ID,
		OwnerID:      j.OwnerID,
		OriginalName: j.OriginalName,
		MimeType:     j.MimeType,
		MediaKind:    j.MediaKind,
		JobKind:      j.JobKind,
		Status:       string(j.Status),
		ResultURL:    j.ResultURL,
		Reason:       j.Reason,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}
