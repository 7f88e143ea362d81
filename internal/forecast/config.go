package forecast

type ModelKind string

const (
	ModelProphet ModelKind = "prophet"
	ModelARIMA   ModelKind = "arima"
	ModelLSTM    ModelKind = "lstm"
)

const (
	MinHorizon = 1
	MaxHorizon = 30
)

// ModelConfig is forwarded to the forecasting service verbatim once it passes validation.
type ModelConfig struct {
	Model                 ModelKind `json:"model" validate:"required,oneof=prophet arima lstm"`
	Horizon               int       `json:"horizon" validate:"min=1,max=30"`
	Seasonality           bool      `json:"seasonality"`
	Holidays              bool      `json:"holidays"`
	ChangepointPriorScale float64   `json:"changepoint_prior_scale" validate:"gt=0"`
	SeasonalityPriorScale float64   `json:"seasonality_prior_scale" validate:"gt=0"`
	HolidaysPriorScale    float64   `json:"holidays_prior_scale" validate:"gt=0"`
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:                 ModelProphet,
		Horizon:               7,
		Seasonality:           true,
		Holidays:              false,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		HolidaysPriorScale:    10,
	}
}
