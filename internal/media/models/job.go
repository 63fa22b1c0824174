package models

import (
	"strings"
	"time"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
)

type MediaKind string

const (
	Image   MediaKind = "image"
	Video   MediaKind = "video"
	Unknown MediaKind = "unknown"
)

// MediaKindFromMIME derives the media kind from a content type. Anything that
// is neither image/* nor video/* is Unknown; such jobs are still accepted and
// fail in processing.
func MediaKindFromMIME(mimeType string) MediaKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return Image
	case strings.HasPrefix(mt, "video/"):
		return Video
	default:
		return Unknown
	}
}

type JobKind string

const (
	Thumbnail  JobKind = "thumbnail"
	Conversion JobKind = "conversion"
)

const (
	ThumbnailQueue  = "thumbnail-generation"
	ConversionQueue = "media-conversion"
)

func (k JobKind) Valid() bool {
	return k == Thumbnail || k == Conversion
}

// QueueName is the queue that carries jobs of this kind.
func (k JobKind) QueueName() string {
	switch k {
	case Thumbnail:
		return ThumbnailQueue
	case Conversion:
		return ConversionQueue
	default:
		return ""
	}
}

type Job struct {
	ID           string        `db:"id" json:"jobId"`
	OwnerID      string        `db:"owner_id" json:"ownerId"`
	SourcePath   string        `db:"source_path" json:"sourcePath"`
	OriginalName string        `db:"original_name" json:"originalName"`
	MimeType     string        `db:"mime_type" json:"mimeType"`
	MediaKind    MediaKind     `db:"media_kind" json:"mediaKind"`
	JobKind      JobKind       `db:"job_kind" json:"jobKind"`
	Status       domain.Status `db:"status" json:"status"`
	ResultURL    string        `db:"result_url" json:"resultUrl,omitempty"`
	Reason       string        `db:"reason" json:"reason,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
}

// StatusUpdate is a single-document status write addressed by job id.
// ResultURL is only honoured for Completed, Reason only for Failed.
type StatusUpdate struct {
	Status    domain.Status
	ResultURL string
	Reason    string
}

// Message is the queue payload. It repeats the identifiers of the job record
// so a worker can gate on the owner lock before touching the store.
type Message struct {
	JobID      string     `json:"jobId"`
	OwnerID    string     `json:"ownerId"`
	SourcePath string     `json:"sourcePath"`
	MimeType   string     `json:"mimeType,omitempty"`
	MediaKind  MediaKind  `json:"mediaKind"`
	JobKind    JobKind    `json:"jobKind"`
	RetryAfter *time.Time `json:"retryAfter,omitempty"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	Deferrals  int        `json:"deferrals,omitempty"`
}

func NewMessage(j *Job, now time.Time) Message {
	return Message{
		JobID:      j.ID,
		OwnerID:    j.OwnerID,
		SourcePath: j.SourcePath,
		MimeType:   j.MimeType,
		MediaKind:  j.MediaKind,
		JobKind:    j.JobKind,
		EnqueuedAt: now,
	}
}
