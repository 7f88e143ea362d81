package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/eddykim0118/kivo/internal/data/repos"
	"github.com/eddykim0118/kivo/internal/data/repos/testutil"
	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/forecast/mlclient"
	"github.com/eddykim0118/kivo/internal/forecast/poller"
	"github.com/eddykim0118/kivo/internal/ingest/validate"
	"github.com/eddykim0118/kivo/internal/platform/ctxutil"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/realtime"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (s *fakeStore) UploadFile(_ dbctx.Context, key string, file io.Reader, _ string) error {
	if s.failErr != nil {
		return s.failErr
	}
	b, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = b
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) DeleteFile(_ dbctx.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return errors.New("object not found")
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) ObjectURI(key string) string { return "gs://test-bucket/" + key }

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	return out
}

// fakeForecastClient answers every status poll with the current status for
// the job, which tests change with setStatus.
type fakeForecastClient struct {
	mu        sync.Mutex
	seq       int
	submits   []mlclient.SubmitRequest
	submitErr error
	status    map[string]forecast.RemoteStatus
	results   map[string]forecast.ResultPayload
	cancelled []string
	defStatus forecast.RemoteStatus
}

func newFakeForecastClient() *fakeForecastClient {
	return &fakeForecastClient{
		status:    map[string]forecast.RemoteStatus{},
		results:   map[string]forecast.ResultPayload{},
		defStatus: forecast.RemoteStatus{Status: "running"},
	}
}

func (c *fakeForecastClient) Submit(_ context.Context, req mlclient.SubmitRequest) (forecast.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		err := c.submitErr
		c.submitErr = nil
		return forecast.Job{}, err
	}
	c.seq++
	c.submits = append(c.submits, req)
	return forecast.Job{
		ID:          fmt.Sprintf("ml-%d", c.seq),
		State:       forecast.StateSubmitted,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (c *fakeForecastClient) Status(_ context.Context, jobID string) (forecast.RemoteStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.status[jobID]; ok {
		return st, nil
	}
	return c.defStatus, nil
}

func (c *fakeForecastClient) Result(_ context.Context, jobID string) (forecast.ResultPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.results[jobID]
	if !ok {
		return forecast.ResultPayload{}, errors.New("result not ready")
	}
	return p, nil
}

func (c *fakeForecastClient) Cancel(_ context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, jobID)
	return nil
}

func (c *fakeForecastClient) setStatus(jobID, status string) {
	c.mu.Lock()
	c.status[jobID] = forecast.RemoteStatus{Status: status}
	c.mu.Unlock()
}

func (c *fakeForecastClient) setResult(jobID string, p forecast.ResultPayload) {
	c.mu.Lock()
	c.results[jobID] = p
	c.mu.Unlock()
}

func (c *fakeForecastClient) submitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submits)
}

func (c *fakeForecastClient) cancelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cancelled)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.JobEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.JobEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) states(jobID string) []forecast.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []forecast.State
	for _, ev := range p.events {
		if ev.JobID == jobID {
			out = append(out, ev.State)
		}
	}
	return out
}

func userCtx(userID string) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID})
}

func fastPolicy() poller.Policy {
	return poller.Policy{
		BaseDelay:            time.Millisecond,
		MaxDelay:             5 * time.Millisecond,
		MaxTransientFailures: 3,
		Timeout:              10 * time.Second,
	}
}

type forecastFixture struct {
	db      *gorm.DB
	svc     ForecastService
	client  *fakeForecastClient
	store   *fakeStore
	events  *recordingPublisher
	files   repos.UploadedFileRepo
	jobs    repos.ForecastJobRepo
	results repos.ForecastResultRepo
}

func newForecastFixture(t *testing.T) *forecastFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &forecastFixture{
		db:      db,
		client:  newFakeForecastClient(),
		store:   newFakeStore(),
		events:  &recordingPublisher{},
		files:   repos.NewUploadedFileRepo(db, log),
		jobs:    repos.NewForecastJobRepo(db, log),
		results: repos.NewForecastResultRepo(db, log),
	}
	f.svc = NewForecastService(log, validate.New(validate.DefaultConstraints()), f.client, f.store,
		poller.NewMemoryGuard(), fastPolicy(), f.files, f.jobs, f.results, f.events)
	t.Cleanup(f.svc.Close)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ptr(v float64) *float64 { return &v }
