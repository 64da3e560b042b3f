// Package process runs external tools like the docker CLI with a clean,
// explicit environment.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/go-logr/logr"
)

// Command describes one external process invocation.
type Command struct {
	// Step names the build step for error messages, e.g. "docker build".
	Step string
	Name string
	Args []string
	Dir  string
	// Env is the complete environment of the process. Nothing is inherited.
	Env    map[string]string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// ExitError is returned when the process ran but exited non-zero.
type ExitError struct {
	Step     string
	Command  string
	ExitCode int
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d, see the output of %q above", e.Step, e.ExitCode, e.Command)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code carried by err, or -1 if the process did
// not run to completion.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}

	return -1
}

type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

func NewExecRunner(opts ...ExecRunnerOption) *ExecRunner {
	var cfg ExecRunnerConfig

	cfg.Option(opts...)
	cfg.Default()

	return &ExecRunner{cfg: cfg}
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	cfg ExecRunnerConfig
}

type ExecRunnerConfig struct {
	Log    logr.Logger
	Stdout io.Writer
	Stderr io.Writer
}

func (c *ExecRunnerConfig) Option(opts ...ExecRunnerOption) {
	for _, opt := range opts {
		opt.ConfigureExecRunner(c)
	}
}

func (c *ExecRunnerConfig) Default() {
	if c.Log.GetSink() == nil {
		c.Log = logr.Discard()
	}
	if c.Stdout == nil {
		c.Stdout = os.Stderr
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
}

type ExecRunnerOption interface {
	ConfigureExecRunner(*ExecRunnerConfig)
}

type WithLog struct{ Log logr.Logger }

func (w WithLog) ConfigureExecRunner(c *ExecRunnerConfig) {
	c.Log = w.Log
}

// WithOutput sets the default writers for process output.
type WithOutput struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (w WithOutput) ConfigureExecRunner(c *ExecRunnerConfig) {
	c.Stdout = w.Stdout
	c.Stderr = w.Stderr
}

func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.cfg.Log.V(1).Info("running", "step", c.Step, "command", c.String(), "dir", c.Dir)

	// ctx only guards the start. A started step always runs to completion.
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	// A non-nil empty slice keeps the parent environment out.
	cmd.Env = EnvList(c.Env)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = r.cfg.Stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = r.cfg.Stderr
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Step: c.Step, Command: c.String(), ExitCode: exitErr.ExitCode(), Err: err}
	}

	return fmt.Errorf("%s: starting %q: %w", c.Step, c.String(), err)
}

// EnvList turns env into a sorted KEY=VALUE list. It never returns nil.
func EnvList(env map[string]string) []string {
	res := make([]string, 0, len(env))
	for k, v := range env {
		res = append(res, k+"="+v)
	}
	sort.Strings(res)

	return res
}
