package apierr

import (
	"errors"
	"net/http"

	"github.com/eddykim0118/kivo/internal/domain/uploads"
	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/forecast/mlclient"
	"github.com/eddykim0118/kivo/internal/forecast/poller"
	"github.com/eddykim0118/kivo/internal/forecast/reconcile"
	"github.com/eddykim0118/kivo/internal/ingest/sampler"
	"github.com/eddykim0118/kivo/internal/ingest/validate"
)

const CodeInternal = "internal_error"

type mapping struct {
	target error
	status int
	code   string
}

// Order matters only where one sentinel wraps another.
var domainMappings = []mapping{
	{validate.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "file_too_large"},
	{sampler.ErrUnsupportedFormat, http.StatusBadRequest, "unsupported_format"},
	{sampler.ErrCorruptFile, http.StatusBadRequest, "corrupt_file"},
	{sampler.ErrEmptyFile, http.StatusBadRequest, "empty_file"},
	{validate.ErrIncompleteMapping, http.StatusBadRequest, "incomplete_mapping"},
	{validate.ErrUnknownColumn, http.StatusBadRequest, "unknown_column"},
	{validate.ErrDuplicateRoleAssignment, http.StatusBadRequest, "duplicate_role_assignment"},
	{validate.ErrEmptyDataset, http.StatusBadRequest, "empty_dataset"},
	{validate.ErrConfigOutOfBounds, http.StatusBadRequest, "config_out_of_bounds"},
	{forecast.ErrFileNotMapped, http.StatusBadRequest, "incomplete_mapping"},
	{poller.ErrJobAlreadyInFlight, http.StatusConflict, "job_already_in_flight"},
	{forecast.ErrJobNotCompleted, http.StatusConflict, "job_not_completed"},
	{forecast.ErrJobNotFound, http.StatusNotFound, "not_found"},
	{uploads.ErrFileNotFound, http.StatusNotFound, "not_found"},
	{uploads.ErrLocationNotFound, http.StatusNotFound, "location_not_found"},
	{mlclient.ErrSubmissionRejected, http.StatusUnprocessableEntity, "submission_rejected"},
	{reconcile.ErrEmptyResultSet, http.StatusUnprocessableEntity, "empty_result_set"},
	{mlclient.ErrSubmissionUnavailable, http.StatusServiceUnavailable, "submission_unavailable"},
	{uploads.ErrStorageFailed, http.StatusBadGateway, "storage_unavailable"},
}

// FromDomain maps a service error onto its HTTP status and stable code.
// Unknown errors become 500 internal_error.
func FromDomain(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range domainMappings {
		if errors.Is(err, m.target) {
			out := New(m.status, m.code, err)
			var cfgErr *validate.ConfigError
			if errors.As(err, &cfgErr) {
				out.Details = cfgErr.Violations
			}
			return out
		}
	}
	return New(http.StatusInternalServerError, CodeInternal, err)
}
