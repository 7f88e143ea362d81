package reconcile

import (
	"errors"
	"math"
	"strings"

	"github.com/eddykim0118/kivo/internal/forecast"
)

var ErrEmptyResultSet = errors.New("forecast result has no valid records")

// Reconcile keeps records that carry a date, a group and a prediction, in input order,
// and scores the kept records that also carry an actual value.
func Reconcile(jobID string, payload forecast.ResultPayload) (*forecast.Result, error) {
	out := &forecast.Result{JobID: jobID, ModelInfo: payload.ModelInfo}
	var actual, predicted []float64
	for _, rec := range payload.Records {
		date := strings.TrimSpace(rec.Date)
		group := strings.TrimSpace(rec.GroupLabel())
		if date == "" || group == "" || !finite(rec.Predicted) {
			out.Dropped++
			continue
		}
		kept := forecast.Record{
			Date:      date,
			Group:     group,
			Predicted: *rec.Predicted,
			Lower:     rec.Lower,
			Upper:     rec.Upper,
		}
		if finite(rec.Actual) {
			kept.Actual = rec.Actual
			actual = append(actual, *rec.Actual)
			predicted = append(predicted, *rec.Predicted)
		}
		out.Records = append(out.Records, kept)
	}
	if len(out.Records) == 0 {
		return nil, ErrEmptyResultSet
	}
	out.Metrics = Score(actual, predicted)
	return out, nil
}

// Score returns nil when there are no pairs to compare.
func Score(actual, predicted []float64) *forecast.Metrics {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	if n == 0 {
		return nil
	}
	var absSum, sqSum, mean float64
	for i := 0; i < n; i++ {
		diff := actual[i] - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		mean += actual[i]
	}
	mean /= float64(n)
	var ssTot float64
	for i := 0; i < n; i++ {
		d := actual[i] - mean
		ssTot += d * d
	}
	mse := sqSum / float64(n)
	r2 := 0.0
	switch {
	case ssTot > 0:
		r2 = 1 - sqSum/ssTot
	case sqSum == 0:
		r2 = 1
	}
	return &forecast.Metrics{
		MAE:   absSum / float64(n),
		MSE:   mse,
		RMSE:  math.Sqrt(mse),
		R2:    r2,
		Pairs: n,
	}
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
