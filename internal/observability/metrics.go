package observability

import (
	"io"
	"net/http"
	"strconv"
	"time"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver so callers
// never branch on whether metrics are enabled.
type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *Gauge
	uploads       *CounterVec
	jobsSubmitted *CounterVec
	jobsFinished  *CounterVec
	jobDuration   *HistogramVec
	jobsInFlight  *Gauge
	pollErrors    *CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("kivo_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"kivo_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		apiInflight:   NewGauge("kivo_api_inflight_requests", "In-flight API requests."),
		uploads:       NewCounterVec("kivo_uploads_total", "File uploads by format/status.", []string{"format", "status"}),
		jobsSubmitted: NewCounterVec("kivo_forecast_jobs_submitted_total", "Forecast jobs accepted by the forecasting service by model.", []string{"model"}),
		jobsFinished:  NewCounterVec("kivo_forecast_jobs_finished_total", "Forecast jobs reaching a terminal state.", []string{"state"}),
		jobDuration: NewHistogramVec(
			"kivo_forecast_job_duration_seconds",
			"Submission to terminal state, in seconds.",
			[]string{"state"},
			[]float64{1, 5, 15, 30, 60, 120, 300, 600},
		),
		jobsInFlight: NewGauge("kivo_forecast_jobs_in_flight", "Jobs currently polled by this process."),
		pollErrors:   NewCounterVec("kivo_forecast_poll_errors_total", "Failed status polls.", []string{"kind"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = m.WritePrometheus(w)
	})
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.uploads,
		m.jobsSubmitted, m.jobsFinished, m.jobDuration, m.jobsInFlight, m.pollErrors,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncUpload(format, status string) {
	if m == nil {
		return
	}
	m.uploads.Inc(format, status)
}

func (m *Metrics) IncJobSubmitted(model string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc(model)
	m.jobsInFlight.Inc()
}

// ObserveJobFinished records a terminal transition; dur is measured from submission.
func (m *Metrics) ObserveJobFinished(state string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.Inc(state)
	m.jobDuration.Observe(dur.Seconds(), state)
	m.jobsInFlight.Dec()
}

// JobResumed counts a job picked up from storage toward the in-flight gauge.
func (m *Metrics) JobResumed() {
	if m == nil {
		return
	}
	m.jobsInFlight.Inc()
}

func (m *Metrics) IncPollError(kind string) {
	if m == nil {
		return
	}
	m.pollErrors.Inc(kind)
}
