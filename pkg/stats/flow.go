package stats

import (
	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

// FlowMeasures summarises the flow lengths of a set of pipelines and how
// often each preprocessing stage was used.
type FlowMeasures struct {
	MinLength      int     `json:"minLength"`
	MaxLength      int     `json:"maxLength"`
	MeanLength     float64 `json:"meanLength"`
	VarianceLength float64 `json:"varianceLength"`
	// Usage counts, per preprocessing stage, the runs out of numberSeeds that
	// did not leave the stage empty.
	Usage map[models.Stage]int `json:"usage"`
	// PercentUsed is the share of pipelines using each stage.
	PercentUsed map[models.Stage]float64 `json:"percentUsed"`
}

// ComputeFlowMeasures measures pipelines, assuming numberSeeds runs were
// started.
func ComputeFlowMeasures(pipelines []*wekaopt.Pipeline, numberSeeds int) FlowMeasures {
	m := FlowMeasures{
		Usage:       make(map[models.Stage]int),
		PercentUsed: make(map[models.Stage]float64),
	}
	for _, s := range models.PreprocessingStages {
		m.Usage[s] = numberSeeds
	}
	if len(pipelines) == 0 {
		return m
	}

	lengths := make([]float64, len(pipelines))
	used := make(map[models.Stage]int)
	for i, p := range pipelines {
		lengths[i] = float64(p.Length())
		for _, s := range models.PreprocessingStages {
			if p.Uses(s) {
				used[s]++
			} else {
				m.Usage[s]--
			}
		}
	}

	m.MinLength = int(Min(lengths))
	m.MaxLength = int(Max(lengths))
	m.MeanLength = Mean(lengths)
	m.VarianceLength = Variance(lengths)
	for _, s := range models.PreprocessingStages {
		m.PercentUsed[s] = 100 * float64(used[s]) / float64(len(pipelines))
	}
	return m
}
