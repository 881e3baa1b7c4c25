// Package wekaopt reads Weka command-line configurations into MCPS pipelines.
package wekaopt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ErrMalformed is returned for configuration strings that cannot be read as
// Weka options.
var ErrMalformed = errors.New("malformed weka configuration")

// SplitOptions tokenizes a Weka option string. Double-quoted groups are kept
// as single tokens with their backslash escapes resolved, so a nested filter
// specification comes back as one option value.
func SplitOptions(s string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Position >= 0 {
		// the parser stopped at a shell operator (Position counts runes)
		runes := []rune(s)
		rest, err := SplitOptions(string(runes[p.Position+1:]))
		if err != nil {
			return nil, err
		}
		args = append(args, string(runes[p.Position]))
		args = append(args, rest...)
	}
	return args, nil
}

// JoinOptions quotes tokens that need it so SplitOptions can read them back.
func JoinOptions(opts []string) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		if o == "" {
			continue
		}
		if strings.ContainsAny(o, " \t\"\\") {
			o = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(o) + `"`
		}
		parts = append(parts, o)
	}
	return strings.Join(parts, " ")
}

// GetOption removes "-flag value" from opts and returns the value. Scanning
// stops at "--", after which options belong to a nested classifier. A flag
// that is absent yields an empty value.
func GetOption(flag string, opts []string) (string, []string, error) {
	want := "-" + flag
	for i, o := range opts {
		if o == "--" {
			break
		}
		if o != want {
			continue
		}
		if i+1 >= len(opts) {
			return "", opts, fmt.Errorf("%w: no value given for %s", ErrMalformed, want)
		}
		value := opts[i+1]
		rest := make([]string, 0, len(opts)-2)
		rest = append(rest, opts[:i]...)
		rest = append(rest, opts[i+2:]...)
		return value, rest, nil
	}
	return "", opts, nil
}

// GetOptions removes every occurrence of "-flag value", in order.
func GetOptions(flag string, opts []string) ([]string, []string, error) {
	var values []string
	for {
		v, rest, err := GetOption(flag, opts)
		if err != nil {
			return values, opts, err
		}
		if len(rest) == len(opts) {
			return values, opts, nil
		}
		values = append(values, v)
		opts = rest
	}
}

// PartitionOptions splits opts at "--" into the outer options and the
// options of the nested classifier.
func PartitionOptions(opts []string) (outer, inner []string) {
	for i, o := range opts {
		if o == "--" {
			return opts[:i], opts[i+1:]
		}
	}
	return opts, nil
}

// ShortName returns the class name without its package.
func ShortName(method string) string {
	method = strings.TrimSpace(method)
	if i := strings.LastIndex(method, "."); i >= 0 {
		return method[i+1:]
	}
	return method
}
