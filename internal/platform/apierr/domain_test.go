package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/eddykim0118/kivo/internal/domain/uploads"
	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/forecast/mlclient"
	"github.com/eddykim0118/kivo/internal/forecast/poller"
	"github.com/eddykim0118/kivo/internal/forecast/reconcile"
	"github.com/eddykim0118/kivo/internal/ingest/sampler"
	"github.com/eddykim0118/kivo/internal/ingest/validate"
)

func TestFromDomain(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("check: %w", validate.ErrFileTooLarge), http.StatusRequestEntityTooLarge, "file_too_large"},
		{validate.ErrUnsupportedFormat, http.StatusBadRequest, "unsupported_format"},
		{fmt.Errorf("parse xlsx: %w", sampler.ErrCorruptFile), http.StatusBadRequest, "corrupt_file"},
		{validate.ErrDuplicateRoleAssignment, http.StatusBadRequest, "duplicate_role_assignment"},
		{&validate.ConfigError{Violations: []validate.FieldViolation{{Field: "horizon", Rule: "max", Param: "30"}}}, http.StatusBadRequest, "config_out_of_bounds"},
		{poller.ErrJobAlreadyInFlight, http.StatusConflict, "job_already_in_flight"},
		{forecast.ErrJobNotCompleted, http.StatusConflict, "job_not_completed"},
		{forecast.ErrJobNotFound, http.StatusNotFound, "not_found"},
		{uploads.ErrLocationNotFound, http.StatusNotFound, "location_not_found"},
		{fmt.Errorf("%w: %w", mlclient.ErrSubmissionRejected, errors.New("bad columns")), http.StatusUnprocessableEntity, "submission_rejected"},
		{reconcile.ErrEmptyResultSet, http.StatusUnprocessableEntity, "empty_result_set"},
		{mlclient.ErrSubmissionUnavailable, http.StatusServiceUnavailable, "submission_unavailable"},
		{fmt.Errorf("%w: timeout", uploads.ErrStorageFailed), http.StatusBadGateway, "storage_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		got := FromDomain(tc.err)
		if got.Status != tc.status || got.Code != tc.code {
			t.Fatalf("FromDomain(%v): want %d/%s got %d/%s", tc.err, tc.status, tc.code, got.Status, got.Code)
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("FromDomain(%v) lost the cause", tc.err)
		}
	}
}

func TestFromDomainKeepsExplicitErrorsAndDetails(t *testing.T) {
	explicit := New(http.StatusUnauthorized, "unauthorized", errors.New("no token"))
	if got := FromDomain(fmt.Errorf("auth: %w", explicit)); got != explicit {
		t.Fatalf("expected the wrapped *Error back, got %+v", got)
	}

	cfgErr := &validate.ConfigError{Violations: []validate.FieldViolation{{Field: "model", Rule: "oneof"}}}
	got := FromDomain(cfgErr)
	violations, ok := got.Details.([]validate.FieldViolation)
	if !ok || len(violations) != 1 || violations[0].Field != "model" {
		t.Fatalf("details: %#v", got.Details)
	}
	if FromDomain(nil) != nil {
		t.Fatalf("nil in, nil out")
	}
}
