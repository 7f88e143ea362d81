package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eddykim0118/kivo/internal/forecast"
)

type ForecastResult struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     string         `gorm:"column:job_id;not null;uniqueIndex" json:"job_id"`
	Records   datatypes.JSON `gorm:"column:records;type:jsonb" json:"records"`
	Dropped   int            `gorm:"column:dropped;not null;default:0" json:"dropped"`
	Metrics   datatypes.JSON `gorm:"column:metrics;type:jsonb" json:"metrics,omitempty"`
	ModelInfo datatypes.JSON `gorm:"column:model_info;type:jsonb" json:"model_info,omitempty"`
	// Failure is set instead of Records when the remote payload could not be reconciled.
	Failure   string    `gorm:"column:failure" json:"failure,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ForecastResult) TableName() string { return "forecast_results" }

func (r *ForecastResult) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func NewForecastResult(res *forecast.Result) (*ForecastResult, error) {
	records, err := json.Marshal(res.Records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	row := &ForecastResult{
		JobID:     res.JobID,
		Records:   datatypes.JSON(records),
		Dropped:   res.Dropped,
		ModelInfo: datatypes.JSON(res.ModelInfo),
	}
	if res.Metrics != nil {
		metrics, err := json.Marshal(res.Metrics)
		if err != nil {
			return nil, fmt.Errorf("encode metrics: %w", err)
		}
		row.Metrics = datatypes.JSON(metrics)
	}
	return row, nil
}

func (r *ForecastResult) Result() (*forecast.Result, error) {
	out := &forecast.Result{JobID: r.JobID, Dropped: r.Dropped}
	if len(r.Records) > 0 {
		if err := json.Unmarshal(r.Records, &out.Records); err != nil {
			return nil, fmt.Errorf("decode records for job %s: %w", r.JobID, err)
		}
	}
	if len(r.Metrics) > 0 && string(r.Metrics) != "null" {
		out.Metrics = &forecast.Metrics{}
		if err := json.Unmarshal(r.Metrics, out.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for job %s: %w", r.JobID, err)
		}
	}
	if len(r.ModelInfo) > 0 && string(r.ModelInfo) != "null" {
		out.ModelInfo = json.RawMessage(r.ModelInfo)
	}
	return out, nil
}
