package forecast

import "encoding/json"

// ResultPayload is the raw body returned by the forecasting service for a completed job.
type ResultPayload struct {
	Records   []PayloadRecord `json:"records"`
	ModelInfo json.RawMessage `json:"model_info,omitempty"`
}

// PayloadRecord keeps every field optional so the reconciler can tell missing from zero.
type PayloadRecord struct {
	Date      string   `json:"date"`
	Menu      string   `json:"menu,omitempty"`
	Group     string   `json:"group,omitempty"`
	Actual    *float64 `json:"actual,omitempty"`
	Predicted *float64 `json:"predicted,omitempty"`
	Lower     *float64 `json:"lower,omitempty"`
	Upper     *float64 `json:"upper,omitempty"`
}

// GroupLabel prefers the explicit group field and falls back to the legacy menu field.
func (r PayloadRecord) GroupLabel() string {
	if r.Group != "" {
		return r.Group
	}
	return r.Menu
}

type Record struct {
	Date      string   `json:"date"`
	Group     string   `json:"group"`
	Actual    *float64 `json:"actual,omitempty"`
	Predicted float64  `json:"predicted"`
	Lower     *float64 `json:"lower,omitempty"`
	Upper     *float64 `json:"upper,omitempty"`
}

type Metrics struct {
	MAE   float64 `json:"mae"`
	MSE   float64 `json:"mse"`
	RMSE  float64 `json:"rmse"`
	R2    float64 `json:"r2"`
	Pairs int     `json:"pairs"`
}

type Result struct {
	JobID     string          `json:"job_id"`
	Records   []Record        `json:"records"`
	Dropped   int             `json:"dropped"`
	Metrics   *Metrics        `json:"metrics,omitempty"`
	ModelInfo json.RawMessage `json:"model_info,omitempty"`
}
