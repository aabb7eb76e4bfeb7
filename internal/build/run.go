package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is one external program run during a build.
type Command struct {
	Dir  string
	Name string
	Args []string
	// Env holds overrides applied on top of the process environment.
	Env map[string]string
	// Log, when set, receives a copy of the output.
	Log io.Writer
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs build commands.
type Runner interface {
	Run(ctx context.Context, cmd *Command) error
}

// execRunner runs commands as child processes, streaming their output.
type execRunner struct {
	stdout io.Writer
	stderr io.Writer
}

func (r *execRunner) Run(ctx context.Context, c *Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	if c.Log != nil {
		cmd.Stdout = io.MultiWriter(r.stdout, c.Log)
		cmd.Stderr = io.MultiWriter(r.stderr, c.Log)
	}
	if len(c.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), c.Env)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	return nil
}

// mergeEnv returns base with every key in overrides replaced or appended.
func mergeEnv(base []string, overrides map[string]string) []string {
	idx := make(map[string]int, len(base))
	for i, kv := range base {
		if k, _, ok := strings.Cut(kv, "="); ok {
			idx[k] = i
		}
	}
	for k, v := range overrides {
		if i, ok := idx[k]; ok {
			base[i] = k + "=" + v
		} else {
			base = append(base, k+"="+v)
		}
	}
	return base
}
