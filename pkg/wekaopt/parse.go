package wekaopt

import (
	"context"
	"fmt"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

const maxNesting = 8

// Filter flags of weka.filters.CategorizedMultiFilter.
var categorizedFlags = []struct {
	flag  string
	stage models.Stage
}{
	{"M", models.StageMissingValues},
	{"O", models.StageOutliers},
	{"T", models.StageTransformation},
	{"R", models.StageDimensionalityReduction},
	{"S", models.StageSampling},
}

// Parser turns configuration strings into pipelines.
type Parser interface {
	Parse(ctx context.Context, configuration string, complete bool) (*Pipeline, error)
}

// NativeParser parses configurations in process.
type NativeParser struct{}

func (NativeParser) Parse(_ context.Context, configuration string, complete bool) (*Pipeline, error) {
	return Parse(configuration, complete)
}

// Parse splits a Weka configuration into its MCPS stages.
//
// With complete=false the configuration is a bare predictor (default
// hyperparameter runs) and only the predictor stage is filled. Otherwise the
// string is a MyFilteredClassifier, optionally wrapped by a meta classifier,
// whose CategorizedMultiFilter carries the preprocessing stages.
func Parse(configuration string, complete bool) (*Pipeline, error) {
	configuration = strings.TrimSpace(configuration)
	if configuration == "" {
		return nil, fmt.Errorf("%w: empty configuration", ErrMalformed)
	}

	if !complete {
		p := &Pipeline{}
		p.Stages[models.StagePredictor] = Method{Name: configuration}
		return p, nil
	}

	tokens, err := SplitOptions(configuration)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no options in %q", ErrMalformed, configuration)
	}

	p := newCompletePipeline()
	class, opts := tokens[0], tokens[1:]
	if strings.HasPrefix(class, "-") {
		// option string without its target class
		class, opts = "weka.classifiers.meta.MyFilteredClassifier", tokens
	}
	if err := p.readClassifier(class, opts, 0); err != nil {
		return nil, err
	}
	if p.Stages[models.StagePredictor].Name == Nothing {
		return nil, fmt.Errorf("%w: no predictor in %q", ErrMalformed, configuration)
	}
	return p, nil
}

func newCompletePipeline() *Pipeline {
	p := &Pipeline{Complete: true}
	for _, s := range models.Stages {
		p.Stages[s].Name = Nothing
	}
	return p
}

func isFilteredClassifier(class string) bool {
	short := ShortName(class)
	return short == "MyFilteredClassifier" || short == "FilteredClassifier"
}

func (p *Pipeline) readClassifier(class string, opts []string, depth int) error {
	if depth > maxNesting {
		return fmt.Errorf("%w: classifiers nested too deeply", ErrMalformed)
	}
	if isFilteredClassifier(class) {
		return p.readFiltered(opts, depth)
	}

	// -W and -B are plain flags on many base learners (IBk window, J48
	// binary splits), so they only name nested classifiers when the value
	// is a class name.
	if inner, rest, err := GetOption("W", opts); err == nil && isClassName(inner) {
		outer, nested := PartitionOptions(rest)
		p.setMeta(class, outer)
		return p.readClassifier(inner, nested, depth+1)
	}
	if isMetaClass(class) {
		if bases, rest, err := GetOptions("B", opts); err == nil && len(bases) > 0 && isClassName(firstToken(bases[0])) {
			outer, _ := PartitionOptions(rest)
			p.setMeta(class, outer)
			return p.readEnsemble(bases, depth+1)
		}
	}

	p.Stages[models.StagePredictor] = Method{Name: class, Params: JoinOptions(opts)}
	return nil
}

func isClassName(s string) bool {
	return strings.HasPrefix(s, "weka.")
}

func isMetaClass(class string) bool {
	return strings.Contains(class, ".meta.")
}

func firstToken(spec string) string {
	tokens, err := SplitOptions(spec)
	if err != nil || len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

func (p *Pipeline) setMeta(class string, opts []string) {
	if p.Stages[models.StageMeta].Name != Nothing {
		return
	}
	p.Stages[models.StageMeta] = Method{Name: class, Params: JoinOptions(opts)}
}

func (p *Pipeline) readFiltered(opts []string, depth int) error {
	filter, rest, err := GetOption("F", opts)
	if err != nil {
		return err
	}
	inner, rest, err := GetOption("W", rest)
	if err != nil {
		return err
	}
	if filter != "" {
		if err := p.readFilter(filter); err != nil {
			return err
		}
	}
	if inner == "" {
		return fmt.Errorf("%w: filtered classifier without -W", ErrMalformed)
	}
	_, nested := PartitionOptions(rest)
	return p.readClassifier(inner, nested, depth+1)
}

func (p *Pipeline) readEnsemble(bases []string, depth int) error {
	for _, spec := range bases {
		tokens, err := SplitOptions(spec)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			continue
		}
		sub := newCompletePipeline()
		if err := sub.readClassifier(tokens[0], tokens[1:], depth); err != nil {
			return err
		}
		p.Predictors = append(p.Predictors, sub.Stages[models.StagePredictor])
		if p.Length() == 0 {
			for _, s := range models.PreprocessingStages {
				p.Stages[s] = sub.Stages[s]
			}
		}
	}
	if len(p.Predictors) > 0 {
		p.Stages[models.StagePredictor] = p.Predictors[0]
	}
	return nil
}

func (p *Pipeline) readFilter(spec string) error {
	tokens, err := SplitOptions(spec)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	class, opts := tokens[0], tokens[1:]

	switch {
	case class == allFilter:
		return nil
	case ShortName(class) == "CategorizedMultiFilter":
		for _, cf := range categorizedFlags {
			var value string
			value, opts, err = GetOption(cf.flag, opts)
			if err != nil {
				return err
			}
			if value == "" {
				continue
			}
			m, err := methodFromSpec(value)
			if err != nil {
				return err
			}
			p.Stages[cf.stage] = m
		}
	default:
		p.Stages[ClassifyFilter(class)] = Method{Name: class, Params: JoinOptions(opts)}
	}
	return nil
}

func methodFromSpec(spec string) (Method, error) {
	tokens, err := SplitOptions(spec)
	if err != nil {
		return Method{}, err
	}
	if len(tokens) == 0 {
		return Method{Name: Nothing}, nil
	}
	name := normalizeMethod(tokens[0])
	if name == Nothing {
		return Method{Name: Nothing}, nil
	}
	return Method{Name: name, Params: JoinOptions(tokens[1:])}, nil
}

// ClassifyFilter guesses the stage of a filter used on its own, outside a
// CategorizedMultiFilter.
func ClassifyFilter(class string) models.Stage {
	short := ShortName(class)
	switch {
	case strings.Contains(short, "Missing"):
		return models.StageMissingValues
	case strings.Contains(short, "Outlier"), strings.HasPrefix(short, "InterquartileRange"):
		return models.StageOutliers
	case short == "AttributeSelection", short == "PrincipalComponents",
		short == "RandomProjection", short == "RandomSubset":
		return models.StageDimensionalityReduction
	case strings.Contains(class, ".instance."):
		return models.StageSampling
	default:
		return models.StageTransformation
	}
}
