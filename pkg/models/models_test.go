package models

import "testing"

func TestExperimentKeyNames(t *testing.T) {
	k := ExperimentKey{Dataset: "abalone", Strategy: "SMAC", Generation: "CV"}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Name", k.Name(), "abalone.SMAC.CV"},
		{"FolderName", k.FolderName(), "abalone.SMAC.CV-abalone"},
		{"RunName", k.RunName("3"), "abalone.SMAC.CV.3"},
		{"TrajectoryFileName", k.TrajectoryFileName("3"), "abalone.SMAC.CV-abalone.trajectories.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, tt.got)
			}
		})
	}

	if !k.HasTrajectory() {
		t.Error("SMAC should have a trajectory")
	}
	for _, s := range []string{StrategyDefault, StrategyRandom} {
		if (ExperimentKey{Dataset: "car", Strategy: s, Generation: "CV"}).HasTrajectory() {
			t.Errorf("%s should not have a trajectory", s)
		}
	}
}

func TestParseExperimentName(t *testing.T) {
	tests := []struct {
		input    string
		expected ExperimentKey
		wantErr  bool
	}{
		{"abalone.SMAC.CV-abalone", ExperimentKey{"abalone", "SMAC", "CV"}, false},
		{"car.TPE.DPS", ExperimentKey{"car", "TPE", "DPS"}, false},
		{"yeast.RAND.CV.12", ExperimentKey{"yeast", "RAND", "CV"}, false},
		{" madelon.DEFAULT.CV-madelon ", ExperimentKey{"madelon", "DEFAULT", "CV"}, false},
		{"abalone.SMAC", ExperimentKey{}, true},
		{"..", ExperimentKey{}, true},
		{"abalone.SMAC.-abalone", ExperimentKey{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseExperimentName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestResultBestError(t *testing.T) {
	r := Result{}
	if _, ok := r.BestError(); ok {
		t.Error("Expected no error value")
	}

	r.Error = Float(12.5)
	if v, ok := r.BestError(); !ok || v != 12.5 {
		t.Errorf("Expected search error 12.5, got %v", v)
	}

	r.FullCVError = Float(11)
	if v, _ := r.BestError(); v != 11 {
		t.Errorf("Expected full CV error 11, got %v", v)
	}
}

func TestNewDataset(t *testing.T) {
	d := NewDataset("car")
	if d.Train != "car/train.arff" || d.Test != "car/test.arff" {
		t.Errorf("Unexpected dataset files %+v", d)
	}
}
