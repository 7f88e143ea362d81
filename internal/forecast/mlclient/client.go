// Package mlclient talks to the external forecasting service over JSON/HTTP.
//
// Every method performs exactly one request. Retry policy for status polling lives
// in the poller; submissions are never retried here.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/ingest/roles"
)

const tracerName = "github.com/eddykim0118/kivo/internal/forecast/mlclient"

type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	SubmitTimeout time.Duration
	HTTPClient    *http.Client
	Clock         func() time.Time
}

type Client struct {
	baseURL       string
	apiKey        string
	timeout       time.Duration
	submitTimeout time.Duration
	httpClient    *http.Client
	now           func() time.Time
	tracer        trace.Tracer
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid baseURL %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 60 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(opts.APIKey),
		timeout:       timeout,
		submitTimeout: submitTimeout,
		httpClient:    hc,
		now:           now,
		tracer:        otel.Tracer(tracerName),
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

type SubmitRequest struct {
	DataURL    string               `json:"data_url"`
	FileID     string               `json:"file_id"`
	Filename   string               `json:"filename"`
	Columns    roles.RoleMap        `json:"columns"`
	Config     forecast.ModelConfig `json:"config"`
	LocationID string               `json:"location_id,omitempty"`
	UserID     string               `json:"user_id,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit creates one job on the forecasting service. Client-error responses wrap
// ErrSubmissionRejected; everything else wraps ErrSubmissionUnavailable.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (forecast.Job, error) {
	ctx, span := c.tracer.Start(ctx, "mlclient.submit", trace.WithAttributes(
		attribute.String("forecast.file_id", req.FileID),
		attribute.String("forecast.model", string(req.Config.Model)),
		attribute.Int("forecast.horizon", req.Config.Horizon),
	))
	defer span.End()

	var resp submitResponse
	if err := c.doJSON(ctx, c.submitTimeout, http.MethodPost, "/api/v1/jobs", req, &resp); err != nil {
		err = classifySubmit(err)
		recordErr(span, err)
		return forecast.Job{}, err
	}
	jobID := strings.TrimSpace(resp.JobID)
	if jobID == "" {
		err := fmt.Errorf("%w: response missing job_id", ErrSubmissionUnavailable)
		recordErr(span, err)
		return forecast.Job{}, err
	}
	span.SetAttributes(attribute.String("forecast.job_id", jobID))
	return forecast.Job{
		ID:          jobID,
		State:       forecast.StateSubmitted,
		SubmittedAt: c.now().UTC(),
	}, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (forecast.RemoteStatus, error) {
	ctx, span := c.tracer.Start(ctx, "mlclient.status", trace.WithAttributes(attribute.String("forecast.job_id", jobID)))
	defer span.End()

	var out forecast.RemoteStatus
	if err := c.doJSON(ctx, c.timeout, http.MethodGet, jobPath(jobID, ""), nil, &out); err != nil {
		err = classifyStatus(err)
		recordErr(span, err)
		return forecast.RemoteStatus{}, err
	}
	span.SetAttributes(attribute.String("forecast.remote_status", out.Status))
	return out, nil
}

func (c *Client) Result(ctx context.Context, jobID string) (forecast.ResultPayload, error) {
	ctx, span := c.tracer.Start(ctx, "mlclient.result", trace.WithAttributes(attribute.String("forecast.job_id", jobID)))
	defer span.End()

	var out forecast.ResultPayload
	if err := c.doJSON(ctx, c.submitTimeout, http.MethodGet, jobPath(jobID, "/result"), nil, &out); err != nil {
		recordErr(span, err)
		return forecast.ResultPayload{}, err
	}
	span.SetAttributes(attribute.Int("forecast.records", len(out.Records)))
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, jobID string) error {
	ctx, span := c.tracer.Start(ctx, "mlclient.cancel", trace.WithAttributes(attribute.String("forecast.job_id", jobID)))
	defer span.End()

	if err := c.doJSON(ctx, c.timeout, http.MethodPost, jobPath(jobID, "/cancel"), nil, nil); err != nil {
		recordErr(span, err)
		return err
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, 5*time.Second, http.MethodGet, "/health", nil, nil)
}

func jobPath(jobID, suffix string) string {
	return "/api/v1/jobs/" + url.PathEscape(jobID) + suffix
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method string, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		payload = &buf
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	c.setHeaders(req, body != nil)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
