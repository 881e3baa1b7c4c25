package config

import (
	"fmt"
	"strings"
)

// Selection is the subset of the experiment grid picked on the command line.
// An empty filter selects every configured value.
type Selection struct {
	Datasets    []string
	Strategies  []string
	Generations []string
	Seeds       []string
}

// Filter holds the optional --dataset/--strategy/--generation/--seed values.
type Filter struct {
	Dataset    string
	Strategy   string
	Generation string
	Seed       string
}

// Select validates f against the configured choices and returns the selection.
func (c *Config) Select(f Filter) (Selection, error) {
	var sel Selection
	var err error

	if sel.Datasets, err = pick("dataset", f.Dataset, c.Datasets()); err != nil {
		return sel, err
	}
	if sel.Strategies, err = pick("strategy", f.Strategy, c.Strategies()); err != nil {
		return sel, err
	}
	if sel.Generations, err = pick("generation", f.Generation, c.Generations()); err != nil {
		return sel, err
	}
	if sel.Seeds, err = pick("seed", f.Seed, c.Seeds()); err != nil {
		return sel, err
	}
	return sel, nil
}

// ValidateChoice reports whether value is one of choices.
func ValidateChoice(name, value string, choices []string) error {
	for _, ch := range choices {
		if ch == value {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (choose from %s)", name, value, strings.Join(choices, ", "))
}

func pick(name, value string, choices []string) ([]string, error) {
	if value == "" {
		out := make([]string, len(choices))
		copy(out, choices)
		return out, nil
	}
	if err := ValidateChoice(name, value, choices); err != nil {
		return nil, err
	}
	return []string{value}, nil
}
