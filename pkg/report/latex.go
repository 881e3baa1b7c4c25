package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/stats"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

// BestConfiguration is the lowest-error pipeline found for a dataset.
type BestConfiguration struct {
	Dataset  string
	Pipeline *wekaopt.Pipeline
}

func writeLatexTable(w io.Writer, caption string, rows []BestConfiguration, stages []models.Stage) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, `\begin{table*}`)
	fmt.Fprintln(bw, `\centering`)
	fmt.Fprintf(bw, "\\caption{%s}\n", caption)
	fmt.Fprintln(bw, `\begin{tabular}{l l l l l l}`)
	fmt.Fprintln(bw, `\hline`)
	for _, r := range rows {
		line := r.Dataset
		for _, s := range stages {
			line += " & " + wekaopt.ShortName(r.Pipeline.Stage(s).Name)
		}
		fmt.Fprintln(bw, line, `\\`)
	}
	fmt.Fprintln(bw, `\hline`)
	fmt.Fprintln(bw, `\end{tabular}`)
	fmt.Fprintln(bw, `\label{tab:test-error}`)
	fmt.Fprintln(bw, `\end{table*}`)
	return bw.Flush()
}

// BestConfigurationsLatex writes the preprocessing table and the model table
// of the best configuration of every dataset.
func BestConfigurationsLatex(w io.Writer, rows []BestConfiguration) error {
	if err := writeLatexTable(w, "Best pre-processing configuration for each dataset", rows, models.PreprocessingStages); err != nil {
		return err
	}
	return writeLatexTable(w, "Best model configuration for each dataset", rows,
		[]models.Stage{models.StagePredictor, models.StageMeta})
}

// ParameterCount describes the search space of one method.
type ParameterCount struct {
	Method    string
	Numerical int
	// Simple categorical parameters choose among literals, complex ones
	// among Weka classes.
	Simple  int
	Complex int
}

// ReadParameterFile counts the parameters of a .params file. Reading stops
// at the first line without a domain.
func ReadParameterFile(path string) (ParameterCount, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParameterCount{}, err
	}
	defer f.Close()

	pc := ParameterCount{Method: strings.TrimSuffix(filepath.Base(path), ".params")}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens := strings.Split(strings.TrimRight(scanner.Text(), " \t\r"), " ")
		if len(tokens) < 2 {
			break
		}
		switch domain := tokens[1]; {
		case strings.HasPrefix(domain, "["):
			pc.Numerical++
		case strings.HasPrefix(domain, "{"):
			if strings.Contains(domain, "weka") {
				pc.Complex++
			} else {
				pc.Simple++
			}
		}
	}
	return pc, scanner.Err()
}

// ReadParameters counts the parameters of every <dir>/*/<method>.params
// file, sorted by method.
func ReadParameters(dir string) ([]ParameterCount, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*", "*"))
	if err != nil {
		return nil, err
	}
	var out []ParameterCount
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		pc, err := ReadParameterFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out, nil
}

// ParametersLatex writes one "method & numerical & simple:complex" row per
// method.
func ParametersLatex(w io.Writer, params []ParameterCount) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "method & numerical & categorical (simple:complex)")
	for _, p := range params {
		fmt.Fprintf(bw, "%s & %d & %d:%d\n", p.Method, p.Numerical, p.Simple, p.Complex)
	}
	return bw.Flush()
}

// FlowMeasuresRow is the flow summary of one experiment.
type FlowMeasuresRow struct {
	Key      models.ExperimentKey
	Measures stats.FlowMeasures
}

// FlowMeasuresCSV writes how many runs used each preprocessing stage and the
// flow length statistics of every experiment.
func FlowMeasuresCSV(w io.Writer, rows []FlowMeasuresRow) error {
	bw := bufio.NewWriter(w)
	header := []string{"dataset", "strategy", "generation"}
	for _, s := range models.PreprocessingStages {
		header = append(header, s.Key())
	}
	header = append(header, "min length", "max length", "mean length", "variance length")
	fmt.Fprintln(bw, strings.Join(header, ", "))

	for _, r := range rows {
		fields := []string{r.Key.Dataset, r.Key.Strategy, r.Key.Generation}
		for _, s := range models.PreprocessingStages {
			fields = append(fields, fmt.Sprintf("%d", r.Measures.Usage[s]))
		}
		m := r.Measures
		fields = append(fields,
			fmt.Sprintf("%d", m.MinLength),
			fmt.Sprintf("%d", m.MaxLength),
			fmt.Sprintf("%0.2f", m.MeanLength),
			fmt.Sprintf("%0.2f", m.VarianceLength))
		fmt.Fprintln(bw, strings.Join(fields, ", "))
	}
	return bw.Flush()
}

// PercentUsedLine renders the share of runs using every stage as one
// comma separated line.
func PercentUsedLine(m stats.FlowMeasures) string {
	parts := make([]string, 0, len(models.PreprocessingStages))
	for _, s := range models.PreprocessingStages {
		parts = append(parts, fmt.Sprintf("%0.2f", m.PercentUsed[s]))
	}
	return strings.Join(parts, ",")
}
