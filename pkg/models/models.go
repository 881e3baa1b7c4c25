package models

import (
	"fmt"
	"strings"
	"time"
)

// Optimization strategies known to the reports. DEFAULT and RAND runs have
// no SMAC-style trajectory and no trained model.
const (
	StrategyDefault = "DEFAULT"
	StrategyRandom  = "RAND"
	StrategySMAC    = "SMAC"
	StrategyTPE     = "TPE"
)

// Generations name how the validation folds were produced.
const (
	GenerationCV  = "CV"
	GenerationDPS = "DPS"
)

// ExperimentKey identifies one dataset/strategy/generation combination
type ExperimentKey struct {
	Dataset    string `json:"dataset"`
	Strategy   string `json:"strategy"`
	Generation string `json:"generation"`
}

// Name returns "dataset.strategy.generation".
func (k ExperimentKey) Name() string {
	return fmt.Sprintf("%s.%s.%s", k.Dataset, k.Strategy, k.Generation)
}

// FolderName returns the Auto-WEKA experiment folder name "d.s.g-d".
func (k ExperimentKey) FolderName() string {
	return fmt.Sprintf("%s-%s", k.Name(), k.Dataset)
}

// RunName is the job name of a single seed, "d.s.g.seed".
func (k ExperimentKey) RunName(seed string) string {
	return fmt.Sprintf("%s.%s", k.Name(), seed)
}

// TrajectoryFileName is the trajectory file written by Auto-WEKA for one seed.
func (k ExperimentKey) TrajectoryFileName(seed string) string {
	return fmt.Sprintf("%s.trajectories.%s", k.FolderName(), seed)
}

// HasTrajectory reports whether the strategy records a SMAC-style trajectory.
func (k ExperimentKey) HasTrajectory() bool {
	return k.Strategy != StrategyDefault && k.Strategy != StrategyRandom
}

// ParseExperimentName reads a key back from an experiment or folder name.
// The dataset is the first dotted segment, the strategy the second and the
// generation the third up to an optional "-dataset" suffix.
func ParseExperimentName(name string) (ExperimentKey, error) {
	parts := strings.SplitN(strings.TrimSpace(name), ".", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" {
		return ExperimentKey{}, fmt.Errorf("malformed experiment name %q", name)
	}
	generation := parts[2]
	if i := strings.IndexAny(generation, "-."); i >= 0 {
		generation = generation[:i]
	}
	if generation == "" {
		return ExperimentKey{}, fmt.Errorf("malformed experiment name %q", name)
	}
	return ExperimentKey{Dataset: parts[0], Strategy: parts[1], Generation: generation}, nil
}

// Dataset is a registry entry for the train/test split of a dataset
type Dataset struct {
	Name  string `json:"name"`
	Train string `json:"train"`
	Test  string `json:"test"`
}

// NewDataset uses the "<name>/train.arff" layout of the datasets folder.
func NewDataset(name string) Dataset {
	return Dataset{Name: name, Train: name + "/train.arff", Test: name + "/test.arff"}
}

// Result is the best configuration found by one optimization run
type Result struct {
	ExperimentKey
	Seed               string   `json:"seed"`
	Batch              *int     `json:"batch,omitempty"`
	NumTrajectories    int      `json:"numTrajectories"`
	NumEvaluations     int      `json:"numEvaluations"`
	TotalEvaluations   int      `json:"totalEvaluations"`
	MemoutEvaluations  int      `json:"memoutEvaluations"`
	TimeoutEvaluations int      `json:"timeoutEvaluations"`
	Error              *float64 `json:"error"`
	TestError          *float64 `json:"testError"`
	FullCVError        *float64 `json:"fullCvError"`
	Configuration      string   `json:"configuration"`
}

// BestError returns the full CV error when known and the search error otherwise.
func (r Result) BestError() (float64, bool) {
	if r.FullCVError != nil {
		return *r.FullCVError, true
	}
	if r.Error != nil {
		return *r.Error, true
	}
	return 0, false
}

// TrajectoryPoint is one incumbent along an optimization run
type TrajectoryPoint struct {
	ExperimentKey
	Seed          string  `json:"seed"`
	Time          float64 `json:"time"`
	Error         float64 `json:"error"`
	Configuration string  `json:"configuration"`
}

// SubmissionStatus is the launcher's view of a submitted job.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionFailed    SubmissionStatus = "failed"
	SubmissionPretend   SubmissionStatus = "pretend"
)

// Submission records one command sent to the cluster scheduler
type Submission struct {
	BatchID     string           `json:"batchId" yaml:"batch_id"`
	Name        string           `json:"name" yaml:"name"`
	Command     string           `json:"command" yaml:"command"`
	Dataset     string           `json:"dataset" yaml:"dataset"`
	Strategy    string           `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Generation  string           `json:"generation,omitempty" yaml:"generation,omitempty"`
	Seed        string           `json:"seed" yaml:"seed"`
	Status      SubmissionStatus `json:"status" yaml:"status"`
	Output      string           `json:"output,omitempty" yaml:"output,omitempty"`
	SubmittedAt time.Time        `json:"submittedAt" yaml:"submitted_at"`
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
