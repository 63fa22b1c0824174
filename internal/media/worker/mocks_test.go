package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/processor"
)

type JobsMock struct {
	mock.Mock
}

func (m *JobsMock) Create(ctx context.Context, j *models.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *JobsMock) GetByID(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *JobsMock) UpdateStatus(ctx context.Context, id string, u models.StatusUpdate) (*models.Job, error) {
	args := m.Called(ctx, id, u)
	if v := args.Get(0); v != nil {
		return v.(*models.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *JobsMock) FindByOwner(ctx context.Context, ownerID string) ([]*models.Job, error) {
	args := m.Called(ctx, ownerID)
	if v := args.Get(0); v != nil {
		return v.([]*models.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, e models.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// fakeProcessor writes a thumbnail into OutDir. Jobs listed in hold block
// until their channel is closed; jobs listed in fail return a processing
// error. It tracks how many jobs per owner run at once.
type fakeProcessor struct {
	mu      sync.Mutex
	owners  map[string]string
	hold    map[string]chan struct{}
	fail    map[string]error
	started map[string]time.Time
	active  map[string]int
	maxSeen map[string]int
	calls   int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		owners:  make(map[string]string),
		hold:    make(map[string]chan struct{}),
		fail:    make(map[string]error),
		started: make(map[string]time.Time),
		active:  make(map[string]int),
		maxSeen: make(map[string]int),
	}
}

func (f *fakeProcessor) Process(ctx context.Context, req processor.Request) (processor.Result, error) {
	f.mu.Lock()
	f.calls++
	owner := f.owners[req.JobID]
	f.active[owner]++
	if f.active[owner] > f.maxSeen[owner] {
		f.maxSeen[owner] = f.active[owner]
	}
	if _, ok := f.started[req.JobID]; !ok {
		f.started[req.JobID] = time.Now()
	}
	hold := f.hold[req.JobID]
	failErr := f.fail[req.JobID]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active[owner]--
		f.mu.Unlock()
	}()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return processor.Result{}, ctx.Err()
		}
	}
	if failErr != nil {
		return processor.Result{}, domain.NewProcessingError("fake", failErr)
	}

	res := processor.Result{
		Path:        filepath.Join(req.OutDir, "thumbnail.png"),
		Name:        "thumbnail.png",
		ContentType: "image/png",
	}
	return res, os.WriteFile(res.Path, []byte("thumb-"+req.JobID), 0o644)
}

func (f *fakeProcessor) maxConcurrent(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen[owner]
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
