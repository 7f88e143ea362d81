package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/eddykim0118/kivo/internal/data/repos/testutil"
	"github.com/eddykim0118/kivo/internal/domain/uploads"
	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/forecast/poller"
	"github.com/eddykim0118/kivo/internal/forecast/reconcile"
	"github.com/eddykim0118/kivo/internal/ingest/validate"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
)

func (f *forecastFixture) seedFile(t *testing.T, userID string) *uploads.UploadedFile {
	t.Helper()
	return testutil.SeedUploadedFile(t, context.Background(), f.db, userID, uuid.New(), time.Now().UTC())
}

func (f *forecastFixture) fileStatus(t *testing.T, id uuid.UUID) string {
	t.Helper()
	row, err := f.files.GetByID(dbctx.Of(context.Background()), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	return row.Status
}

func (f *forecastFixture) waitState(t *testing.T, ctx context.Context, jobID string, want forecast.State) *forecast.Job {
	t.Helper()
	var last *forecast.Job
	waitFor(t, "job "+jobID+" to reach "+string(want), func() bool {
		job, err := f.svc.GetStatus(ctx, jobID)
		if err != nil {
			return false
		}
		last = job
		return job.State == want
	})
	return last
}

func TestSubmitJobRunsToCompletion(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")

	job, err := f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
	require.Equal(t, forecast.StateSubmitted, job.State)

	sub := f.client.submits[0]
	require.Equal(t, "gs://test-bucket/"+file.StoragePath, sub.DataURL)
	require.Equal(t, "sales", sub.Columns.Target)
	require.Equal(t, "user-1", sub.UserID)
	require.Equal(t, uploads.StatusProcessing, f.fileStatus(t, file.ID))

	f.client.setResult(job.ID, forecast.ResultPayload{Records: []forecast.PayloadRecord{
		{Date: "2025-01-01", Group: "latte", Actual: ptr(10), Predicted: ptr(12)},
		{Date: "2025-01-02", Group: "latte", Actual: ptr(14), Predicted: ptr(12)},
		{Date: "", Group: "latte", Predicted: ptr(3)},
	}})
	f.client.setStatus(job.ID, "completed")

	done := f.waitState(t, ctx, job.ID, forecast.StateCompleted)
	require.Equal(t, "forecast completed", done.Reason)
	require.NotNil(t, done.FinishedAt)

	res, err := f.svc.GetResult(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	require.Equal(t, 1, res.Dropped)
	require.NotNil(t, res.Metrics)
	require.InDelta(t, 2.0, res.Metrics.MAE, 1e-9)

	waitFor(t, "completion event", func() bool {
		states := f.events.states(job.ID)
		return len(states) > 0 && states[len(states)-1] == forecast.StateCompleted
	})
	require.Equal(t, uploads.StatusCompleted, f.fileStatus(t, file.ID))
	row, err := f.jobs.GetByExternalID(dbctx.Of(context.Background()), job.ID)
	require.NoError(t, err)
	require.Equal(t, string(forecast.StateCompleted), row.State)

	require.Equal(t, forecast.StateSubmitted, f.events.states(job.ID)[0])

	// The guard is released on completion.
	_, err = f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
}

func TestSubmitJobSingleFlightPerSession(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")

	first, err := f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)

	_, err = f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.ErrorIs(t, err, poller.ErrJobAlreadyInFlight)
	require.Equal(t, 1, f.client.submitCount())

	// Another user is not blocked.
	other := f.seedFile(t, "user-2")
	_, err = f.svc.SubmitJob(userCtx("user-2"), other.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)

	cancelled, err := f.svc.CancelJob(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, forecast.StateCancelled, cancelled.State)
	require.Equal(t, "cancelled by user", cancelled.Reason)
	require.GreaterOrEqual(t, f.client.cancelCount(), 1)
	require.Equal(t, uploads.StatusUploaded, f.fileStatus(t, file.ID))

	_, err = f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
}

func TestSubmitJobBlockedByPersistedInFlightJob(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")
	orphan := testutil.SeedForecastJob(t, context.Background(), f.db, "ml-orphan", "user-1", forecast.StateProcessing)

	_, err := f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.ErrorIs(t, err, poller.ErrJobAlreadyInFlight)
	require.Equal(t, 0, f.client.submitCount())

	require.NoError(t, f.db.Model(orphan).Update("state", string(forecast.StateFailed)).Error)
	_, err = f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
}

func TestCancelJobIsIdempotentOnTerminalJobs(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")

	job, err := f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
	first, err := f.svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)

	again, err := f.svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, forecast.StateCancelled, again.State)
	require.NotNil(t, again.FinishedAt)
	require.WithinDuration(t, *first.FinishedAt, *again.FinishedAt, time.Millisecond)
}

func TestSubmitJobRejectsBadConfigBeforeSubmitting(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")

	cfg := forecast.DefaultModelConfig()
	cfg.Horizon = 90
	_, err := f.svc.SubmitJob(ctx, file.ID, cfg)
	require.ErrorIs(t, err, validate.ErrConfigOutOfBounds)
	require.Equal(t, 0, f.client.submitCount())
}

func TestSubmitJobValidatesStoredShape(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")

	renamed := f.seedFile(t, "user-1")
	require.NoError(t, f.db.Model(renamed).Update("columns", datatypes.JSON([]byte(`["date","menu","revenue"]`))).Error)
	_, err := f.svc.SubmitJob(ctx, renamed.ID, forecast.DefaultModelConfig())
	require.ErrorIs(t, err, validate.ErrUnknownColumn)

	empty := f.seedFile(t, "user-1")
	require.NoError(t, f.db.Model(empty).Update("total_rows", 0).Error)
	_, err = f.svc.SubmitJob(ctx, empty.ID, forecast.DefaultModelConfig())
	require.ErrorIs(t, err, validate.ErrEmptyDataset)

	require.Equal(t, 0, f.client.submitCount())

	// A rejected request does not hold the session guard.
	ok := f.seedFile(t, "user-1")
	_, err = f.svc.SubmitJob(ctx, ok.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
	require.Equal(t, forecast.DefaultModelConfig(), f.client.submits[0].Config)
}

func TestSubmitJobFileOwnership(t *testing.T) {
	f := newForecastFixture(t)
	file := f.seedFile(t, "user-1")

	_, err := f.svc.SubmitJob(userCtx("user-2"), file.ID, forecast.DefaultModelConfig())
	require.ErrorIs(t, err, uploads.ErrFileNotFound)

	_, err = f.svc.SubmitJob(context.Background(), file.ID, forecast.DefaultModelConfig())
	require.Error(t, err)
	require.Equal(t, 0, f.client.submitCount())
}

func TestSubmitJobFailureReleasesGuard(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")

	f.client.submitErr = errors.New("connection refused")
	_, err := f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.Error(t, err)

	_, err = f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
}

func TestGetResultBeforeCompletion(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")

	job, err := f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)

	_, err = f.svc.GetResult(ctx, job.ID)
	require.ErrorIs(t, err, forecast.ErrJobNotCompleted)

	_, err = f.svc.GetStatus(userCtx("user-2"), job.ID)
	require.ErrorIs(t, err, forecast.ErrJobNotFound)
	_, err = f.svc.GetStatus(ctx, "no-such-job")
	require.ErrorIs(t, err, forecast.ErrJobNotFound)
}

func TestGetResultEmptyResultSet(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")

	job, err := f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
	f.client.setResult(job.ID, forecast.ResultPayload{Records: []forecast.PayloadRecord{
		{Date: "2025-01-01", Group: "latte"},
	}})
	f.client.setStatus(job.ID, "completed")
	f.waitState(t, ctx, job.ID, forecast.StateCompleted)

	_, err = f.svc.GetResult(ctx, job.ID)
	require.ErrorIs(t, err, reconcile.ErrEmptyResultSet)
}

func TestRemoteFailureMarksFile(t *testing.T) {
	f := newForecastFixture(t)
	ctx := userCtx("user-1")
	file := f.seedFile(t, "user-1")

	job, err := f.svc.SubmitJob(ctx, file.ID, forecast.DefaultModelConfig())
	require.NoError(t, err)
	f.client.mu.Lock()
	f.client.status[job.ID] = forecast.RemoteStatus{Status: "failed", Message: "not enough history"}
	f.client.mu.Unlock()

	failed := f.waitState(t, ctx, job.ID, forecast.StateFailed)
	require.Equal(t, "not enough history", failed.Reason)
	waitFor(t, "file marked failed", func() bool {
		return f.fileStatus(t, file.ID) == uploads.StatusProcessingFailed
	})
}

func TestResumeInFlightPicksUpPersistedJobs(t *testing.T) {
	f := newForecastFixture(t)
	bg := context.Background()
	testutil.SeedForecastJob(t, bg, f.db, "ml-restored", "user-1", forecast.StateProcessing)
	testutil.SeedForecastJob(t, bg, f.db, "ml-finished", "user-1", forecast.StateCompleted)
	f.client.setStatus("ml-restored", "completed")
	f.client.setResult("ml-restored", forecast.ResultPayload{Records: []forecast.PayloadRecord{
		{Date: "2025-01-01", Group: "latte", Predicted: ptr(4)},
	}})

	n, err := f.svc.ResumeInFlight(bg)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	waitFor(t, "resumed job to complete", func() bool {
		row, err := f.jobs.GetByExternalID(dbctx.Of(bg), "ml-restored")
		return err == nil && row != nil && row.State == string(forecast.StateCompleted)
	})

	res, err := f.svc.GetResult(userCtx("user-1"), "ml-restored")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Nil(t, res.Metrics)
}

func TestGetStatusAdoptsUntrackedJob(t *testing.T) {
	f := newForecastFixture(t)
	bg := context.Background()
	testutil.SeedForecastJob(t, bg, f.db, "ml-orphan", "user-1", forecast.StateSubmitted)
	f.client.setStatus("ml-orphan", "running")

	job, err := f.svc.GetStatus(userCtx("user-1"), "ml-orphan")
	require.NoError(t, err)
	require.Equal(t, forecast.StateProcessing, job.State)
	require.NotNil(t, job.LastPolledAt)
}
