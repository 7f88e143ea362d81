package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/eddykim0118/kivo/internal/data/repos/testutil"
	types "github.com/eddykim0118/kivo/internal/domain/jobs"
	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
)

func TestForecastJobRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewForecastJobRepo(db, testutil.Logger(t))

	running := testutil.SeedForecastJob(t, ctx, tx, "job-running", "user-a", forecast.StateProcessing)
	testutil.SeedForecastJob(t, ctx, tx, "job-done", "user-a", forecast.StateCompleted)
	testutil.SeedForecastJob(t, ctx, tx, "job-queued", "user-b", forecast.StateSubmitted)

	open, err := repo.ListNonTerminal(dbc)
	if err != nil {
		t.Fatalf("ListNonTerminal: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("ListNonTerminal: expected 2, got %d", len(open))
	}

	if got, err := repo.GetForUser(dbc, "user-b", running.ExternalID); err != nil || got != nil {
		t.Fatalf("GetForUser(foreign): got=%+v err=%v", got, err)
	}
	if got, err := repo.GetByExternalID(dbc, "missing"); err != nil || got != nil {
		t.Fatalf("GetByExternalID(missing): got=%+v err=%v", got, err)
	}

	progress := 40
	polled := time.Now().UTC()
	job := running.Job()
	job.Progress = &progress
	job.Attempts = 3
	job.LastPolledAt = &polled
	changed, err := repo.UpdateState(dbc, job)
	if err != nil || !changed {
		t.Fatalf("UpdateState: changed=%v err=%v", changed, err)
	}

	job.State = forecast.StateCancelled
	job.Reason = "user cancelled"
	job.FinishedAt = &polled
	if changed, err := repo.UpdateState(dbc, job); err != nil || !changed {
		t.Fatalf("UpdateState(terminal): changed=%v err=%v", changed, err)
	}

	// Terminal rows are never rewritten.
	job.State = forecast.StateCompleted
	job.Reason = "forecast completed"
	if changed, err := repo.UpdateState(dbc, job); err != nil || changed {
		t.Fatalf("UpdateState(after terminal): changed=%v err=%v", changed, err)
	}

	stored, err := repo.GetByExternalID(dbc, running.ExternalID)
	if err != nil || stored == nil {
		t.Fatalf("GetByExternalID: got=%+v err=%v", stored, err)
	}
	if stored.State != string(forecast.StateCancelled) || stored.Reason != "user cancelled" {
		t.Fatalf("stored state: %s %q", stored.State, stored.Reason)
	}
	if stored.Progress == nil || *stored.Progress != 40 || stored.Attempts != 3 {
		t.Fatalf("stored progress: %+v attempts=%d", stored.Progress, stored.Attempts)
	}

	busy, err := repo.ExistsNonTerminalForSession(dbc, "user-b")
	if err != nil || !busy {
		t.Fatalf("ExistsNonTerminalForSession(user-b): %v %v", busy, err)
	}
	busy, err = repo.ExistsNonTerminalForSession(dbc, "user-a")
	if err != nil || busy {
		t.Fatalf("ExistsNonTerminalForSession(user-a): %v %v", busy, err)
	}
}

func TestForecastResultRepoKeepsFirstSave(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewForecastResultRepo(db, testutil.Logger(t))

	actual, predicted := 10.0, 12.0
	res := &forecast.Result{
		JobID:   "job-1",
		Records: []forecast.Record{{Date: "2025-01-01", Group: "latte", Actual: &actual, Predicted: predicted}},
		Dropped: 1,
		Metrics: &forecast.Metrics{MAE: 2, MSE: 4, RMSE: 2, Pairs: 1},
	}
	row, err := types.NewForecastResult(res)
	if err != nil {
		t.Fatalf("NewForecastResult: %v", err)
	}
	if err := repo.Save(dbc, row); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(dbc, &types.ForecastResult{JobID: "job-1", Failure: "late"}); err != nil {
		t.Fatalf("Save duplicate: %v", err)
	}

	got, err := repo.GetByJobID(dbc, "job-1")
	if err != nil || got == nil {
		t.Fatalf("GetByJobID: got=%+v err=%v", got, err)
	}
	if got.Failure != "" {
		t.Fatalf("second save overwrote the first: %+v", got)
	}
	decoded, err := got.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(decoded.Records) != 1 || decoded.Dropped != 1 || decoded.Metrics == nil || decoded.Metrics.MAE != 2 {
		t.Fatalf("decoded result: %+v", decoded)
	}
}
