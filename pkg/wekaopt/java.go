package wekaopt

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// OptionDumper runs Weka's own option parser and returns its
// "stage=method params" listing.
type OptionDumper interface {
	ParseOptions(ctx context.Context, configuration string) (string, error)
}

// JavaParser delegates option parsing to weka.core.Utils through the JVM.
// It is slower than NativeParser but follows whatever the installed Weka
// build does.
type JavaParser struct {
	dumper OptionDumper
}

// NewJavaParser creates a parser backed by dumper.
func NewJavaParser(dumper OptionDumper) *JavaParser {
	return &JavaParser{dumper: dumper}
}

func (j *JavaParser) Parse(ctx context.Context, configuration string, complete bool) (*Pipeline, error) {
	if !complete {
		return Parse(configuration, false)
	}
	out, err := j.dumper.ParseOptions(ctx, configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse options in java: %w", err)
	}
	p := ParseOptionDump(out)
	if p.Stages[models.StagePredictor].Name == Nothing {
		return nil, fmt.Errorf("%w: java parser found no predictor", ErrMalformed)
	}
	return p, nil
}

// ParseOptionDump reads the "stage=method params" lines printed by the Java
// option parser. Unknown stages and lines without exactly one '=' are
// ignored.
func ParseOptionDump(output string) *Pipeline {
	p := newCompletePipeline()
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r ")
		if strings.Count(line, "=") != 1 {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		stage, ok := models.ParseStage(key)
		if !ok {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		name := normalizeMethod(fields[0])
		m := Method{Name: name}
		if name != Nothing {
			m.Params = strings.Join(fields[1:], " ")
		}
		p.Stages[stage] = m
	}
	return p
}
