// Package profiling summarizes the execution-time distribution of a batch.
package profiling

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"ctleak/domain/core"
)

// BatchSummary describes the in-window ticks of one batch. Wrapped ticks are
// counted but left out of every moment and quantile.
type BatchSummary struct {
	Count       int     `json:"count"`
	Wraparounds int     `json:"wraparounds"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Median      float64 `json:"median"`
	Q25         float64 `json:"q25"`
	Q75         float64 `json:"q75"`
	P99         float64 `json:"p99"`
	Skewness    float64 `json:"skewness"`
}

// SummarizeTicks computes a BatchSummary.
func SummarizeTicks(ticks []int64) (BatchSummary, error) {
	summary := BatchSummary{}
	data := make(stats.Float64Data, 0, len(ticks))
	for _, t := range ticks {
		if t < 0 {
			summary.Wraparounds++
			continue
		}
		data = append(data, float64(t))
	}
	summary.Count = len(data)
	if len(data) == 0 {
		if summary.Wraparounds > 0 {
			return summary, fmt.Errorf("%w: %w on all %d ticks", core.ErrNoSamples, core.ErrWraparound, summary.Wraparounds)
		}
		return summary, core.ErrNoSamples
	}

	var err error
	if summary.Mean, err = stats.Mean(data); err != nil {
		return summary, err
	}
	if len(data) > 1 {
		if summary.StdDev, err = stats.StandardDeviationSample(data); err != nil {
			return summary, err
		}
	}
	if summary.Min, err = stats.Min(data); err != nil {
		return summary, err
	}
	if summary.Max, err = stats.Max(data); err != nil {
		return summary, err
	}
	if summary.Median, err = stats.Median(data); err != nil {
		return summary, err
	}
	if summary.Q25, err = stats.Percentile(data, 25); err != nil {
		return summary, err
	}
	if summary.Q75, err = stats.Percentile(data, 75); err != nil {
		return summary, err
	}
	if summary.P99, err = stats.Percentile(data, 99); err != nil {
		return summary, err
	}
	summary.Skewness = calculateSkewness(data, summary.Mean, summary.StdDev)
	return summary, nil
}

// calculateSkewness returns the adjusted Fisher-Pearson coefficient.
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	n := float64(len(data))
	if n < 3 || stdDev == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range data {
		d := (x - mean) / stdDev
		sum += d * d * d
	}
	return n / ((n - 1) * (n - 2)) * sum
}
