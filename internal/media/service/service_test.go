package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/queue"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
)

func validRequest() SubmitRequest {
	return SubmitRequest{
		OwnerID:      "u1",
		SourcePath:   "uploads/a.png",
		OriginalName: "a.png",
		MimeType:     "image/png",
		JobKind:      models.Thumbnail,
	}
}

func TestGetJob_InvalidID(t *testing.T) {
	ctx := context.Background()
	st := new(StoreMock)
	svc := New(st, new(EnqueuerMock))

	// Invalid input should be rejected before calling the repository.
	got, err := svc.GetJob(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	require.Nil(t, got)
	st.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestGetJob_Found(t *testing.T) {
	ctx := context.Background()
	st := new(StoreMock)
	svc := New(st, new(EnqueuerMock))

	want := &models.Job{ID: "j1", Status: domain.Queued}
	st.On("GetByID", mock.Anything, "j1").Return(want, nil).Once()

	got, err := svc.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, want, got)
	st.AssertExpectations(t)
}

func TestSubmit_InvalidArguments(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(r *SubmitRequest)
	}{
		{name: "empty owner", mutate: func(r *SubmitRequest) { r.OwnerID = "" }},
		{name: "empty source", mutate: func(r *SubmitRequest) { r.SourcePath = "" }},
		{name: "unknown job kind", mutate: func(r *SubmitRequest) { r.JobKind = "resize" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := new(StoreMock)
			enq := new(EnqueuerMock)
			svc := New(st, enq)

			req := validRequest()
			tc.mutate(&req)

			// Invalid arguments should short-circuit without persisting anything.
			got, err := svc.Submit(ctx, req)
			require.ErrorIs(t, err, domain.ErrInvalidArgument)
			require.Nil(t, got)
			st.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			enq.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_CreatesRecordBeforeEnqueue(t *testing.T) {
	ctx := context.Background()
	st := new(StoreMock)
	enq := new(EnqueuerMock)
	svc := New(st, enq)

	fixedID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	fixedTime := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	svc.idGen = func() uuid.UUID { return fixedID }
	svc.clock = func() time.Time { return fixedTime }

	var order []string
	var persisted *models.Job
	st.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			order = append(order, "create")
			persisted = args.Get(1).(*models.Job)
		}).
		Return(nil).
		Once()

	var sent models.Message
	enq.On("Enqueue", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			order = append(order, "enqueue")
			sent = args.Get(1).(models.Message)
		}).
		Return(nil).
		Once()

	got, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, persisted, got)
	require.Equal(t, []string{"create", "enqueue"}, order)

	require.Equal(t, fixedID.String(), got.ID)
	require.Equal(t, domain.Queued, got.Status)
	require.Equal(t, models.Image, got.MediaKind)
	require.Equal(t, "a.png", got.OriginalName)
	require.Equal(t, fixedTime, got.CreatedAt)
	require.Equal(t, fixedTime, got.UpdatedAt)

	assert.Equal(t, got.ID, sent.JobID)
	assert.Equal(t, "u1", sent.OwnerID)
	assert.Equal(t, "uploads/a.png", sent.SourcePath)
	assert.Equal(t, models.Thumbnail, sent.JobKind)
	assert.Nil(t, sent.RetryAfter)

	st.AssertExpectations(t)
	enq.AssertExpectations(t)
}

func TestSubmit_UnknownMimeIsAccepted(t *testing.T) {
	ctx := context.Background()
	st := new(StoreMock)
	enq := new(EnqueuerMock)
	svc := New(st, enq)

	st.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	enq.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()

	req := validRequest()
	req.MimeType = "application/pdf"

	got, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.Unknown, got.MediaKind)
}

func TestSubmit_RepoErrorPropagated(t *testing.T) {
	ctx := context.Background()
	st := new(StoreMock)
	enq := new(EnqueuerMock)
	svc := New(st, enq)

	// Service should pass through repository errors and never enqueue.
	st.On("Create", mock.Anything, mock.Anything).Return(domain.ErrStoreUnavailable).Once()

	got, err := svc.Submit(ctx, validRequest())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.Nil(t, got)
	enq.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	st.AssertExpectations(t)
}

func TestSubmit_EnqueueFailureClosesRecord(t *testing.T) {
	ctx := context.Background()
	st := new(StoreMock)
	enq := new(EnqueuerMock)
	svc := New(st, enq)
	svc.idGen = func() uuid.UUID { return uuid.MustParse("22222222-2222-2222-2222-222222222222") }

	st.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	enq.On("Enqueue", mock.Anything, mock.Anything).Return(domain.ErrTransportUnavailable).Once()
	st.On("UpdateStatus", mock.Anything, "22222222-2222-2222-2222-222222222222",
		mock.MatchedBy(func(u models.StatusUpdate) bool { return u.Status == domain.Failed && u.Reason != "" })).
		Return(&models.Job{Status: domain.Failed}, nil).
		Once()

	got, err := svc.Submit(ctx, validRequest())
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
	require.Nil(t, got)
	st.AssertExpectations(t)
}

func TestQueryJobs_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	q := queue.NewMemoryQueue(models.ThumbnailQueue, queue.Options{})
	svc := New(repo, queue.NewRouter(q, queue.NewMemoryQueue(models.ConversionQueue, queue.Options{})))

	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	tick := 0
	svc.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	req := validRequest()
	req.JobKind = models.Conversion
	second, err := svc.Submit(ctx, req)
	require.NoError(t, err)

	jobs, err := svc.QueryJobs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	ready, _, _ := q.Len()
	assert.Equal(t, 1, ready, "thumbnail job routed to its own queue")

	_, err = svc.QueryJobs(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
