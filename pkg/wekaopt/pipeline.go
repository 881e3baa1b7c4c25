package wekaopt

import (
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// Nothing names an empty stage, the AllFilter pass-through included.
const Nothing = "Nothing"

// Placeholder marks a stage that the configuration does not describe at all.
const Placeholder = "-"

const allFilter = "weka.filters.AllFilter"

// Method is a Weka class with its options.
type Method struct {
	Name   string `json:"method"`
	Params string `json:"params"`
}

// Pipeline is a configuration broken into its MCPS stages.
type Pipeline struct {
	Stages [models.NumStages]Method `json:"stages"`
	// Predictors holds the base classifiers of an ensemble meta method.
	Predictors []Method `json:"predictors,omitempty"`
	// Complete is false for predictor-only configurations.
	Complete bool `json:"complete"`
}

// Stage returns the method chosen for s.
func (p *Pipeline) Stage(s models.Stage) Method {
	return p.Stages[s]
}

// Flow flattens the pipeline into comparable columns: the five
// preprocessing stages, one column per predictor and the meta method.
// Stages a predictor-only configuration does not describe are "-".
func (p *Pipeline) Flow() []string {
	flow := make([]string, 0, models.NumStages+len(p.Predictors))
	for _, s := range models.PreprocessingStages {
		flow = append(flow, p.column(s))
	}
	if len(p.Predictors) > 0 {
		for _, m := range p.Predictors {
			flow = append(flow, m.Name)
		}
	} else {
		flow = append(flow, p.column(models.StagePredictor))
	}
	return append(flow, p.column(models.StageMeta))
}

func (p *Pipeline) column(s models.Stage) string {
	if name := p.Stages[s].Name; name != "" {
		return name
	}
	if p.Complete {
		return Nothing
	}
	return Placeholder
}

// FlowString renders the flow from the last stage to the first with short
// class names, e.g. "Bagging ← J48 ← Nothing ← ...".
func (p *Pipeline) FlowString() string {
	return FlowString(p.Flow())
}

// FlowString renders any flattened flow the way Pipeline.FlowString does.
func FlowString(flow []string) string {
	parts := make([]string, 0, len(flow))
	for i := len(flow) - 1; i >= 0; i-- {
		c := ShortName(flow[i])
		if c == Placeholder || c == "" {
			continue
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, " ← ")
}

// Length counts the preprocessing stages that do something.
func (p *Pipeline) Length() int {
	n := 0
	for _, s := range models.PreprocessingStages {
		if used(p.Stages[s].Name) {
			n++
		}
	}
	return n
}

// Uses reports whether stage s holds an actual method.
func (p *Pipeline) Uses(s models.Stage) bool {
	return used(p.Stages[s].Name)
}

func used(name string) bool {
	return name != "" && name != Nothing && name != Placeholder
}

func normalizeMethod(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == allFilter {
		return Nothing
	}
	return name
}
