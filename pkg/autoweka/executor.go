// Package autoweka wraps the Java tools shipped in autoweka.jar.
package autoweka

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Executor runs an external program and returns its standard output.
type Executor interface {
	Output(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecExecutor runs commands with os/exec.
type ExecExecutor struct {
	// Env is appended to the inherited environment.
	Env []string
}

func (e ExecExecutor) Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("%s failed: %w: %s", CommandLine(name, args...), err, msg)
	}
	return stdout.String(), nil
}

// DryRunExecutor prints commands instead of running them.
type DryRunExecutor struct {
	Out io.Writer
}

func (d DryRunExecutor) Output(_ context.Context, dir, name string, args ...string) (string, error) {
	line := CommandLine(name, args...)
	if dir != "" {
		line = fmt.Sprintf("(cd %s && %s)", dir, line)
	}
	_, err := fmt.Fprintln(d.Out, line)
	return "", err
}

// CommandLine renders a command the way a shell user would type it.
func CommandLine(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'$\\") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`).Replace(a) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
