package models

// Stage is one step of an MCPS flow, in the order data passes through it.
type Stage int

const (
	StageMissingValues Stage = iota
	StageOutliers
	StageTransformation
	StageDimensionalityReduction
	StageSampling
	StagePredictor
	StageMeta
)

// NumStages is the length of a complete flow.
const NumStages = 7

// Stages lists every stage in flow order.
var Stages = []Stage{
	StageMissingValues,
	StageOutliers,
	StageTransformation,
	StageDimensionalityReduction,
	StageSampling,
	StagePredictor,
	StageMeta,
}

// PreprocessingStages are the filters applied before the predictor.
var PreprocessingStages = Stages[:StagePredictor]

var stageKeys = [NumStages]string{
	"missing_values",
	"outliers",
	"transformation",
	"dimensionality_reduction",
	"sampling",
	"predictor",
	"meta",
}

var stageLabels = [NumStages]string{
	"missing values",
	"outliers",
	"transformation",
	"dimensionality reduction",
	"sampling",
	"predictor",
	"meta",
}

// Key is the snake_case identifier used in tables and the Java option dump.
func (s Stage) Key() string {
	if s < 0 || int(s) >= NumStages {
		return "unknown"
	}
	return stageKeys[s]
}

// Label is the human readable column title.
func (s Stage) Label() string {
	if s < 0 || int(s) >= NumStages {
		return "unknown"
	}
	return stageLabels[s]
}

func (s Stage) String() string { return s.Key() }

// ParseStage maps a key such as "dimensionality_reduction" back to its stage.
func ParseStage(key string) (Stage, bool) {
	for i, k := range stageKeys {
		if k == key {
			return Stage(i), true
		}
	}
	return 0, false
}
