package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/blob"
	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/service"
)

// UserHeader carries the authenticated owner id, set by the gateway in front.
const UserHeader = "X-User-ID"

const filesField = "files"

// Subscriber is the part of the event bus the SSE stream needs.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan models.Event, func())
}

type Handler struct {
	svc    *service.Service
	blobs  blob.Store
	events Subscriber
	logger zerolog.Logger
}

func New(svc *service.Service, blobs blob.Store, events Subscriber, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		blobs:  blobs,
		events: events,
		logger: logger.With().Str("component", "httpapi").Logger(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Upload accepts multipart "files" parts and submits a thumbnail job for each.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.Thumbnail)
}

// Convert is Upload for conversion jobs.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.Conversion)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind models.JobKind) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}

	ctx := r.Context()
	jobs := make([]SubmittedJob, 0)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.submitFailed(w, owner, jobs, http.StatusBadRequest, "invalid multipart body")
			return
		}
		if part.FormName() != filesField || part.FileName() == "" {
			h.logger.Debug().Str("field", part.FormName()).Msg("skipping non-file field")
			_ = part.Close()
			continue
		}

		name := part.FileName()
		mimeType := partMimeType(part.Header.Get("Content-Type"), name)
		key := "uploads/" + uuid.NewString() + strings.ToLower(filepath.Ext(name))

		err = h.blobs.Save(ctx, key, part, -1, mimeType)
		_ = part.Close()
		if err != nil {
			h.logger.Error().Err(err).Str("key", key).Msg("failed to store upload")
			status, message := errorStatus(err)
			h.submitFailed(w, owner, jobs, status, message)
			return
		}

		job, err := h.svc.Submit(ctx, service.SubmitRequest{
			OwnerID:      owner,
			SourcePath:   key,
			OriginalName: name,
			MimeType:     mimeType,
			JobKind:      kind,
		})
		if err != nil {
			h.logger.Error().Err(err).Str("owner_id", owner).Msg("failed to submit job")
			status, message := errorStatus(err)
			h.submitFailed(w, owner, jobs, status, message)
			return
		}
		jobs = append(jobs, SubmittedJob{JobID: job.ID, OriginalName: name})
	}

	if len(jobs) == 0 {
		writeErrorJSON(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Message: "Files uploaded", Jobs: jobs})
}

// submitFailed answers a request whose upload loop stopped early. Jobs
// created before the failure are already queued and are reported back.
func (h *Handler) submitFailed(w http.ResponseWriter, owner string, jobs []SubmittedJob, status int, message string) {
	if len(jobs) == 0 {
		writeErrorJSON(w, status, message)
		return
	}
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.JobID)
	}
	h.logger.Warn().
		Str("owner_id", owner).
		Strs("job_ids", ids).
		Msg("upload stopped after some jobs were queued")
	writeJSON(w, status, SubmitResponse{Message: "Some files were not uploaded", Error: message, Jobs: jobs})
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	jobs, err := h.svc.QueryJobs(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	j, err := h.svc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	// Чужие задачи не показываем
	if j.OwnerID != owner {
		writeErrorJSON(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// Events streams job outcomes as Server-Sent Events until the client leaves.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error().Err(err).Msg("streaming unsupported")
		return
	}

	ch, cancel := h.events.Subscribe(r.Context())
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			payload, err := e.Payload()
			if err != nil {
				h.logger.Error().Err(err).Str("job_id", e.JobID).Msg("encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Name, payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.Header.Get(UserHeader))
	if owner == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
		return "", false
	}
	return owner, true
}

func partMimeType(header, name string) string {
	if header != "" && header != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			return mt
		}
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
	}
	return "application/octet-stream"
}

func writeError(w http.ResponseWriter, err error) {
	status, message := errorStatus(err)
	writeErrorJSON(w, status, message)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid argument"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
