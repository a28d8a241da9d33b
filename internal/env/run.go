package env

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// RunSpec describes one subprocess invocation. Path must already be
// resolved to an executable; Args is argv without the program itself.
type RunSpec struct {
	Path     string
	Args     []string
	Dir      string
	ExtraEnv []string
}

// RunResult carries everything a builder needs to classify a tool run.
// A nonzero ReturnCode is not an error at this layer; builders decide what
// it means.
type RunResult struct {
	ReturnCode int
	Stdout     string
	Stderr     string
	Duration   time.Duration
}

// Runner executes external tools. The process-backed implementation is
// ExecRunner; tests substitute script-driven fakes.
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (RunResult, error)
}

// ExecRunner runs tools as real subprocesses. It holds no locks while
// waiting, so concurrent builders never serialize on a tool run.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.ExtraEnv) > 0 {
		cmd.Env = append(os.Environ(), spec.ExtraEnv...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ReturnCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	return res, nil
}
