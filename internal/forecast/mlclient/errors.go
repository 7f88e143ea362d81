package mlclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/eddykim0118/kivo/internal/forecast"
)

var (
	// ErrSubmissionRejected means the service refused the job; resubmitting the same payload will not help.
	ErrSubmissionRejected = errors.New("forecast submission rejected")
	// ErrSubmissionUnavailable means the service could not be reached or failed; the caller may retry later.
	ErrSubmissionUnavailable = errors.New("forecast service unavailable")
)

type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "http error"
	}
	if e.Code != "" {
		return fmt.Sprintf("http error: status=%d code=%s message=%s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("http error: status=%d message=%s", e.StatusCode, msg)
}

func (e *HTTPError) ClientError() bool { return e.StatusCode >= 400 && e.StatusCode < 500 }

// Permanent is a client error other than a timeout or rate limit.
func (e *HTTPError) Permanent() bool {
	return e.ClientError() && e.StatusCode != http.StatusRequestTimeout && e.StatusCode != http.StatusTooManyRequests
}

// parseHTTPError understands both {"error":{"message","code"}} and FastAPI's {"detail": ...}.
func parseHTTPError(status int, raw []byte) *HTTPError {
	out := &HTTPError{StatusCode: status, Body: strings.TrimSpace(string(raw))}

	var env struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return out
	}
	if msg := strings.TrimSpace(env.Error.Message); msg != "" {
		out.Message = msg
		out.Code = strings.TrimSpace(env.Error.Code)
		return out
	}
	if len(env.Detail) > 0 {
		var s string
		if json.Unmarshal(env.Detail, &s) == nil {
			out.Message = strings.TrimSpace(s)
		} else {
			out.Message = string(env.Detail)
		}
	}
	return out
}

// classifySubmit maps a failed create call onto the two submission outcomes.
func classifySubmit(err error) error {
	var herr *HTTPError
	if errors.As(err, &herr) && herr.ClientError() {
		return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrSubmissionUnavailable, err)
}

// classifyStatus marks permanent client errors so the poller stops instead of retrying.
func classifyStatus(err error) error {
	var herr *HTTPError
	if !errors.As(err, &herr) || !herr.Permanent() {
		return err
	}
	msg := strings.TrimSpace(herr.Message)
	if msg == "" {
		msg = http.StatusText(herr.StatusCode)
	}
	return fmt.Errorf("%w: %s: %w", forecast.ErrStatusRejected, msg, err)
}
