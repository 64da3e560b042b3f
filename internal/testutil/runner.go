package testutil

import (
	"context"
	"io"
	"strings"
	"sync"

	"layercake.run/internal/process"
)

// RunnerCall is one recorded invocation of FakeRunner.
type RunnerCall struct {
	process.Command
	// StdinData is everything read from Stdin.
	StdinData []byte
}

// Line is the command as it would be typed, e.g. "docker image build .".
func (c RunnerCall) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// FakeRunner records commands instead of executing them. Handler decides
// the outcome of each call; a nil Handler succeeds.
type FakeRunner struct {
	Handler func(call RunnerCall) error

	mux   sync.Mutex
	calls []RunnerCall
}

func (r *FakeRunner) Run(_ context.Context, cmd process.Command) error {
	call := RunnerCall{Command: cmd}
	if cmd.Stdin != nil {
		data, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return err
		}
		call.StdinData = data
	}

	r.mux.Lock()
	r.calls = append(r.calls, call)
	r.mux.Unlock()

	if r.Handler == nil {
		return nil
	}

	return r.Handler(call)
}

func (r *FakeRunner) Calls() []RunnerCall {
	r.mux.Lock()
	defer r.mux.Unlock()

	return append([]RunnerCall(nil), r.calls...)
}

// Lines returns Line() of every recorded call.
func (r *FakeRunner) Lines() []string {
	var res []string
	for _, c := range r.Calls() {
		res = append(res, c.Line())
	}

	return res
}

// ExitWith builds the error a real runner returns for a non-zero exit.
func ExitWith(call RunnerCall, code int) error {
	return &process.ExitError{Step: call.Step, Command: call.Line(), ExitCode: code}
}
