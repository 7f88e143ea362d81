package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/eddykim0118/kivo/internal/data/repos"
	"github.com/eddykim0118/kivo/internal/domain/jobs"
	"github.com/eddykim0118/kivo/internal/domain/uploads"
	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/forecast/mlclient"
	"github.com/eddykim0118/kivo/internal/forecast/poller"
	"github.com/eddykim0118/kivo/internal/forecast/reconcile"
	"github.com/eddykim0118/kivo/internal/ingest/roles"
	"github.com/eddykim0118/kivo/internal/ingest/sampler"
	"github.com/eddykim0118/kivo/internal/ingest/validate"
	"github.com/eddykim0118/kivo/internal/observability"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/platform/logger"
	"github.com/eddykim0118/kivo/internal/realtime"
)

const persistTimeout = 30 * time.Second

type ForecastService interface {
	SubmitJob(ctx context.Context, fileID uuid.UUID, cfg forecast.ModelConfig) (*forecast.Job, error)
	GetStatus(ctx context.Context, jobID string) (*forecast.Job, error)
	GetResult(ctx context.Context, jobID string) (*forecast.Result, error)
	CancelJob(ctx context.Context, jobID string) (*forecast.Job, error)
	// ResumeInFlight restarts polling for every persisted non-terminal job.
	ResumeInFlight(ctx context.Context) (int, error)
	// Close stops all pollers and waits for them. Jobs stay non-terminal in
	// storage and are picked up by the next ResumeInFlight.
	Close()
}

// trackedJob is the in-memory view of a job this process is polling.
type trackedJob struct {
	mu sync.Mutex
	// persistMu serializes observe so a transition is fully written before
	// the next one for the same job starts.
	persistMu  sync.Mutex
	job        forecast.Job
	userID     string
	sessionKey string
	guardRef   string
	fileID     uuid.UUID
	token      *poller.CancelToken
}

func trackedFromRow(row *jobs.ForecastJob) *trackedJob {
	return &trackedJob{
		job:        row.Job(),
		userID:     row.UserID,
		sessionKey: row.SessionKey,
		guardRef:   row.ID.String(),
		fileID:     row.FileID,
		token:      poller.NewCancelToken(),
	}
}

func (t *trackedJob) snapshot() forecast.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

// update stores next unless the job already reached a terminal state.
func (t *trackedJob) update(next forecast.Job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.State.Terminal() {
		return false
	}
	t.job = next
	return true
}

type forecastService struct {
	log       *logger.Logger
	validator *validate.Validator
	client    ForecastClient
	store     ObjectStore
	guard     poller.Guard
	policy    poller.Policy
	clock     poller.Clock
	files     repos.UploadedFileRepo
	jobs      repos.ForecastJobRepo
	results   repos.ForecastResultRepo
	events    EventPublisher
	metrics   *observability.Metrics

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[string]*trackedJob
}

type ForecastOption func(*forecastService)

func WithForecastMetrics(m *observability.Metrics) ForecastOption {
	return func(s *forecastService) { s.metrics = m }
}

func WithForecastClock(c poller.Clock) ForecastOption {
	return func(s *forecastService) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewForecastService(
	baseLog *logger.Logger,
	validator *validate.Validator,
	client ForecastClient,
	store ObjectStore,
	guard poller.Guard,
	policy poller.Policy,
	files repos.UploadedFileRepo,
	jobRepo repos.ForecastJobRepo,
	results repos.ForecastResultRepo,
	events EventPublisher,
	opts ...ForecastOption,
) ForecastService {
	baseCtx, stop := context.WithCancel(context.Background())
	s := &forecastService{
		log:       baseLog.With("service", "ForecastService"),
		validator: validator,
		client:    client,
		store:     store,
		guard:     guard,
		policy:    policy,
		clock:     poller.SystemClock(),
		files:     files,
		jobs:      jobRepo,
		results:   results,
		events:    events,
		baseCtx:   baseCtx,
		stop:      stop,
		running:   map[string]*trackedJob{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *forecastService) SubmitJob(ctx context.Context, fileID uuid.UUID, cfg forecast.ModelConfig) (*forecast.Job, error) {
	rd, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Of(ctx)
	file, err := s.files.GetForUser(dbc, rd.UserID, fileID)
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}
	if file == nil {
		return nil, uploads.ErrFileNotFound
	}
	if file.StoragePath == "" {
		return nil, fmt.Errorf("%w: raw file was never stored", uploads.ErrFileNotFound)
	}
	columns := roles.RoleMap{Date: file.DateCol, Group: file.GroupCol, Target: file.TargetCol}
	if len(columns.Missing()) > 0 {
		return nil, forecast.ErrFileNotMapped
	}
	table, err := storedTable(file)
	if err != nil {
		return nil, err
	}
	// Config and mapping errors never reach the network.
	req, err := s.validator.Validate(table, columns, cfg, rd.UserID)
	if err != nil {
		return nil, err
	}

	sessionKey := rd.SessionKey()
	rowID := uuid.New()
	guardRef := rowID.String()
	if err := s.guard.Acquire(ctx, sessionKey, guardRef); err != nil {
		return nil, err
	}
	// A persisted non-terminal job holds the session even when the guard has no record of it.
	busy, err := s.jobs.ExistsNonTerminalForSession(dbc, sessionKey)
	if err != nil {
		s.release(sessionKey, guardRef)
		return nil, fmt.Errorf("check in-flight jobs: %w", err)
	}
	if busy {
		s.release(sessionKey, guardRef)
		return nil, poller.ErrJobAlreadyInFlight
	}

	job, err := s.client.Submit(ctx, mlclient.SubmitRequest{
		DataURL:    s.store.ObjectURI(file.StoragePath),
		FileID:     file.ID.String(),
		Filename:   file.Filename,
		Columns:    req.Roles,
		Config:     req.Config,
		LocationID: file.LocationID.String(),
		UserID:     req.Requester,
	})
	if err != nil {
		s.release(sessionKey, guardRef)
		return nil, err
	}

	log := s.log.With("job_id", job.ID, "user_id", rd.UserID, "file_id", file.ID)
	cfgJSON, _ := json.Marshal(cfg)
	row := &jobs.ForecastJob{
		ID:          rowID,
		ExternalID:  job.ID,
		UserID:      rd.UserID,
		SessionKey:  sessionKey,
		FileID:      file.ID,
		Config:      datatypes.JSON(cfgJSON),
		State:       string(job.State),
		SubmittedAt: job.SubmittedAt,
	}
	if _, err := s.jobs.Create(dbc, row); err != nil {
		log.Error("Failed to record submitted job; cancelling remotely", "error", err)
		if cerr := s.client.Cancel(context.WithoutCancel(ctx), job.ID); cerr != nil {
			log.Warn("Remote cancel after failed insert also failed", "error", cerr)
		}
		s.release(sessionKey, guardRef)
		return nil, fmt.Errorf("record job: %w", err)
	}
	if err := s.files.UpdateStatus(dbc, file.ID, uploads.StatusProcessing); err != nil {
		log.Warn("Failed to mark file processing", "error", err)
	}

	t := trackedFromRow(row)
	t.job = job
	s.register(t)
	s.metrics.IncJobSubmitted(string(cfg.Model))
	s.publish(ctx, t.userID, job)
	s.start(t)
	log.Info("Forecast job submitted", "model", cfg.Model, "horizon", cfg.Horizon, "rows", req.Table.TotalRows)
	return &job, nil
}

// storedTable rebuilds the table shape recorded at upload time. It has no rows.
func storedTable(file *uploads.UploadedFile) (*sampler.RawTable, error) {
	var columns []string
	if len(file.Columns) > 0 {
		if err := json.Unmarshal(file.Columns, &columns); err != nil {
			return nil, fmt.Errorf("decode stored columns: %w", err)
		}
	}
	return &sampler.RawTable{
		Format:    sampler.Format(file.Format),
		Columns:   columns,
		TotalRows: file.TotalRows,
	}, nil
}

func (s *forecastService) GetStatus(ctx context.Context, jobID string) (*forecast.Job, error) {
	rd, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	t, row, err := s.lookup(ctx, rd.UserID, jobID)
	if err != nil {
		return nil, err
	}
	if t != nil {
		job := t.snapshot()
		return &job, nil
	}
	job := row.Job()
	if job.State.Terminal() {
		return &job, nil
	}

	// Persisted but not polled by this process: refresh once, then keep polling.
	t, fresh := s.adopt(row)
	if !fresh {
		job = t.snapshot()
		return &job, nil
	}
	if err := s.guard.Acquire(ctx, t.sessionKey, t.guardRef); err != nil {
		s.log.Warn("Could not re-acquire in-flight guard", "job_id", job.ID, "error", err)
	}
	s.metrics.JobResumed()
	ev := poller.Event{Kind: poller.EventStatus, At: s.clock.Now()}
	status, perr := s.client.Status(ctx, job.ID)
	if perr != nil {
		ev = poller.Event{Kind: poller.EventPollError, At: ev.At, Err: perr}
	} else {
		ev.Status = status
	}
	next, _ := poller.Step(job, ev, s.policy)
	s.observe(t, job, next)
	if !next.State.Terminal() {
		s.start(t)
	} else {
		s.unregister(t)
	}
	job = t.snapshot()
	return &job, nil
}

func (s *forecastService) GetResult(ctx context.Context, jobID string) (*forecast.Result, error) {
	rd, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	t, row, err := s.lookup(ctx, rd.UserID, jobID)
	if err != nil {
		return nil, err
	}
	var job forecast.Job
	var fileID uuid.UUID
	if t != nil {
		job, fileID = t.snapshot(), t.fileID
	} else {
		job, fileID = row.Job(), row.FileID
	}
	if job.State != forecast.StateCompleted {
		return nil, fmt.Errorf("job %s is %s: %w", job.ID, job.State, forecast.ErrJobNotCompleted)
	}

	dbc := dbctx.Of(ctx)
	stored, err := s.results.GetByJobID(dbc, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	if stored == nil {
		if err := s.storeResult(ctx, job.ID, fileID); err != nil {
			return nil, err
		}
		if stored, err = s.results.GetByJobID(dbc, job.ID); err != nil {
			return nil, fmt.Errorf("load result: %w", err)
		}
		if stored == nil {
			return nil, fmt.Errorf("result for job %s was not stored", job.ID)
		}
	}
	if stored.Failure != "" {
		return nil, fmt.Errorf("job %s: %w", job.ID, reconcile.ErrEmptyResultSet)
	}
	return stored.Result()
}

func (s *forecastService) CancelJob(ctx context.Context, jobID string) (*forecast.Job, error) {
	rd, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	t, row, err := s.lookup(ctx, rd.UserID, jobID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = trackedFromRow(row)
	}
	job := t.snapshot()
	if job.State.Terminal() {
		return &job, nil
	}

	t.token.Cancel("")
	if err := s.client.Cancel(ctx, job.ID); err != nil {
		s.log.Warn("Remote cancel failed; cancelling locally", "job_id", job.ID, "error", err)
	}
	next, _ := poller.Step(job, poller.Event{Kind: poller.EventCancel, At: s.clock.Now()}, s.policy)
	s.observe(t, job, next)
	out := t.snapshot()
	return &out, nil
}

func (s *forecastService) ResumeInFlight(ctx context.Context) (int, error) {
	rows, err := s.jobs.ListNonTerminal(dbctx.Of(ctx))
	if err != nil {
		return 0, fmt.Errorf("list in-flight jobs: %w", err)
	}
	resumed := 0
	for _, row := range rows {
		t, fresh := s.adopt(row)
		if !fresh {
			continue
		}
		if err := s.guard.Acquire(ctx, t.sessionKey, t.guardRef); err != nil {
			s.log.Warn("Could not re-acquire in-flight guard", "job_id", row.ExternalID, "error", err)
		}
		s.metrics.JobResumed()
		s.start(t)
		resumed++
	}
	if resumed > 0 {
		s.log.Info("Resumed in-flight forecast jobs", "count", resumed)
	}
	return resumed, nil
}

func (s *forecastService) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *forecastService) lookup(ctx context.Context, userID, jobID string) (*trackedJob, *jobs.ForecastJob, error) {
	s.mu.Lock()
	t := s.running[jobID]
	s.mu.Unlock()
	if t != nil {
		if t.userID != userID {
			return nil, nil, forecast.ErrJobNotFound
		}
		return t, nil, nil
	}
	row, err := s.jobs.GetForUser(dbctx.Of(ctx), userID, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("load job: %w", err)
	}
	if row == nil {
		return nil, nil, forecast.ErrJobNotFound
	}
	return nil, row, nil
}

func (s *forecastService) register(t *trackedJob) {
	s.mu.Lock()
	s.running[t.job.ID] = t
	s.mu.Unlock()
}

func (s *forecastService) unregister(t *trackedJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := t.snapshot().ID
	if s.running[id] == t {
		delete(s.running, id)
	}
}

// adopt registers a persisted job unless it is already tracked.
func (s *forecastService) adopt(row *jobs.ForecastJob) (*trackedJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.running[row.ExternalID]; t != nil {
		return t, false
	}
	t := trackedFromRow(row)
	s.running[row.ExternalID] = t
	return t, true
}

func (s *forecastService) start(t *trackedJob) {
	runner := poller.NewRunner(s.log, s.client, s.policy,
		poller.WithClock(s.clock),
		poller.WithObserver(func(prev, next forecast.Job) { s.observe(t, prev, next) }),
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		final := runner.Run(s.baseCtx, t.snapshot(), t.token)
		if final.State.Terminal() {
			s.unregister(t)
		}
	}()
}

// observe applies one transition: result capture on completion, then the
// job row, guard and file status, then the event.
func (s *forecastService) observe(t *trackedJob, prev, next forecast.Job) {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	if t.snapshot().State.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if next.State == forecast.StateCompleted && !prev.State.Terminal() {
		if err := s.storeResult(ctx, next.ID, t.fileID); err != nil {
			s.log.Warn("Result capture deferred to first read", "job_id", next.ID, "error", err)
		}
	}
	if !t.update(next) {
		return
	}
	if next.ConsecutiveErrors > prev.ConsecutiveErrors {
		s.metrics.IncPollError("poll")
	}

	changed, err := s.jobs.UpdateState(dbctx.Of(ctx), next)
	if err != nil {
		s.log.Error("Failed to persist job state", "job_id", next.ID, "state", next.State, "error", err)
	}
	if next.State.Terminal() {
		s.release(t.sessionKey, t.guardRef)
		if changed {
			s.markFile(ctx, t.fileID, next.State)
			if next.FinishedAt != nil {
				s.metrics.ObserveJobFinished(string(next.State), next.FinishedAt.Sub(next.SubmittedAt))
			}
		}
	}
	if changed {
		s.publish(ctx, t.userID, next)
	}
}

// storeResult fetches and reconciles the remote result. Reconcile failures
// are stored so the job reports them on every read; fetch failures are not.
func (s *forecastService) storeResult(ctx context.Context, jobID string, fileID uuid.UUID) error {
	payload, err := s.client.Result(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: fetch result: %w", mlclient.ErrSubmissionUnavailable, err)
	}
	dbc := dbctx.Of(ctx)
	res, recErr := reconcile.Reconcile(jobID, payload)
	if recErr != nil {
		s.log.Warn("Forecast result unusable", "job_id", jobID, "records", len(payload.Records))
		return s.results.Save(dbc, &jobs.ForecastResult{JobID: jobID, Failure: recErr.Error()})
	}
	row, err := jobs.NewForecastResult(res)
	if err != nil {
		return err
	}
	if err := s.results.Save(dbc, row); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	summary, _ := json.Marshal(map[string]any{
		"job_id":  jobID,
		"records": len(res.Records),
		"dropped": res.Dropped,
		"metrics": res.Metrics,
	})
	if err := s.files.UpdateFields(dbc, fileID, map[string]interface{}{"ml_result": datatypes.JSON(summary)}); err != nil {
		s.log.Warn("Failed to attach result summary to file", "file_id", fileID, "error", err)
	}
	return nil
}

func (s *forecastService) markFile(ctx context.Context, fileID uuid.UUID, state forecast.State) {
	status := ""
	switch state {
	case forecast.StateCompleted:
		status = uploads.StatusCompleted
	case forecast.StateFailed, forecast.StateTimedOut:
		status = uploads.StatusProcessingFailed
	case forecast.StateCancelled:
		status = uploads.StatusUploaded
	}
	if status == "" {
		return
	}
	if err := s.files.UpdateStatus(dbctx.Of(ctx), fileID, status); err != nil {
		s.log.Warn("Failed to update file status", "file_id", fileID, "status", status, "error", err)
	}
}

func (s *forecastService) release(sessionKey, guardRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.guard.Release(ctx, sessionKey, guardRef); err != nil {
		s.log.Warn("Failed to release in-flight guard", "session_key", sessionKey, "error", err)
	}
}

func (s *forecastService) publish(ctx context.Context, userID string, job forecast.Job) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, realtime.NewJobEvent(userID, job, s.clock.Now())); err != nil {
		s.log.Warn("Failed to publish job event", "job_id", job.ID, "error", err)
	}
}
