package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// RMSE is the root mean squared error of per-instance errors, ignoring NaN
// entries (missing predictions).
func RMSE(errs []float64) float64 {
	sum, n := 0.0, 0
	for _, e := range errs {
		if math.IsNaN(e) {
			continue
		}
		sum += e * e
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}

// MisclassificationRate returns the percentage of misclassified test
// instances. errs holds 1 for a wrong prediction and 0 otherwise; instances
// without a prediction count as wrong. It returns -1 when there are more
// predictions than test instances.
func MisclassificationRate(errs []float64, testSize int) float64 {
	if len(errs) > testSize || testSize <= 0 {
		return -1
	}
	rate := 0.0
	for _, e := range errs {
		rate += e
	}
	rate += float64(testSize - len(errs))
	return 100 * rate / float64(testSize)
}

// Prediction is one row of a Weka prediction CSV.
type Prediction struct {
	Actual    string
	Predicted string
	Error     string
}

// ReadPredictions reads a Weka CSV prediction file
// (inst#,actual,predicted,error,...). The header line is skipped and rows
// with fewer than four fields are ignored.
func ReadPredictions(r io.Reader) ([]Prediction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var out []Prediction
	header := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read predictions: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) < 4 {
			continue
		}
		out = append(out, Prediction{
			Actual:    strings.TrimSpace(rec[1]),
			Predicted: strings.TrimSpace(rec[2]),
			Error:     strings.TrimSpace(rec[3]),
		})
	}
	return out, nil
}

// PredictionErrors converts predictions to per-instance errors. Regression
// errors are the numeric error column (NaN when missing); a classification
// prediction is wrong when it is flagged or missing.
func PredictionErrors(preds []Prediction, regression bool) []float64 {
	out := make([]float64, len(preds))
	for i, p := range preds {
		if regression {
			v, err := strconv.ParseFloat(p.Error, 64)
			if err != nil {
				v = math.NaN()
			}
			out[i] = v
			continue
		}
		if p.Error == "" && p.Predicted != "?" {
			out[i] = 0
		} else {
			out[i] = 1
		}
	}
	return out
}

// NumericColumn parses the actual or predicted values of regression
// predictions, NaN where a value is missing.
func NumericColumn(preds []Prediction, predicted bool) []float64 {
	out := make([]float64, len(preds))
	for i, p := range preds {
		s := p.Actual
		if predicted {
			s = p.Predicted
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}
