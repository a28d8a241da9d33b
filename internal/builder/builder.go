// Package builder implements the build engine's unit of work. A builder
// owns a set of input paths, an optional output path and an action; it can
// report its status and drive itself to completion. Composite builders
// (Sequential, Parallel) arrange other builders; leaf builders run external
// tools through the environment or do the work in-process.
//
// Lifecycle: missing -> ready -> building -> done | error. Done and error
// are terminal for an instance. A fresh instance over the same paths
// re-derives its state, which is how previously built outputs come back as
// done without any tool running.
//
// A builder instance is driven by one goroutine at a time. Parallel
// composites hand each child to its own goroutine; the children never share
// state with each other.
package builder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/logfields"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Builder is the engine's unit of work.
type Builder interface {
	Name() string
	// Core exposes the shared builder state for composition plumbing
	// (input/output rewiring during chaining). Control flow goes through
	// Status and Build, never through Core's.
	Core() *Core
	Status(ctx context.Context) Status
	// Build advances the builder. With complete=false it performs a single
	// increment and returns the resulting status; with complete=true it
	// drives until done or error. Building with missing prerequisites
	// returns the missing status without side effects.
	Build(ctx context.Context, complete bool) Status
}

// Core carries the state every builder shares and implements the leaf
// state machine. Concrete leaf builders configure argvFn (the resolved
// command) and stepFn (one build increment); composites embed Core for its
// bookkeeping and replace Status/Build entirely.
type Core struct {
	env    *env.Env
	name   string
	inputs []paths.Path
	output paths.TargetPath
	outExt string
	// outSuffix is appended to the stem of derived cache outputs so
	// same-extension stages in a chain never overwrite each other
	// (sample.pdf -> sample_crop.pdf).
	outSuffix string
	// keepExt derives cache outputs with the input's own extension
	// instead of outExt (copy-like builders).
	keepExt bool
	params  attrs.List

	requiredExecs []string
	argvFn        func() []string
	stepFn        func(ctx context.Context) error

	availOnce sync.Once
	availErr  error

	building bool
	done     bool
	failed   error
}

func (c *Core) Name() string { return c.name }

func (c *Core) Core() *Core { return c }

// Env returns the environment handle the builder operates through.
func (c *Core) Env() *env.Env { return c.env }

func (c *Core) Inputs() []paths.Path { return c.inputs }

// SetInputs rewires the builder's inputs. Used by sequential chaining.
func (c *Core) SetInputs(in []paths.Path) { c.inputs = in }

func (c *Core) Params() attrs.List { return c.params }

// DeclaredOutput returns the explicitly set output, zero if none.
func (c *Core) DeclaredOutput() paths.TargetPath { return c.output }

// SetOutput pins the output path.
func (c *Core) SetOutput(out paths.TargetPath) { c.output = out }

// ClearOutput removes a pinned output so OutPath derives a cache location
// again. Sequential chaining clears every non-terminal stage.
func (c *Core) ClearOutput() { c.output = paths.TargetPath{} }

// OutPath resolves where this builder writes: the declared output if set,
// otherwise a location in the media cache mirroring the first input's
// subpath with the product extension. Derived locations are computed fresh
// on every call so rewired inputs take effect.
func (c *Core) OutPath() paths.TargetPath {
	if !c.output.IsZero() {
		return c.output
	}
	if len(c.inputs) == 0 {
		return paths.TargetPath{}
	}
	sub := c.inputs[0].Sub()
	if sub == "" {
		return paths.TargetPath{}
	}
	ext := filepath.Ext(sub)
	if !c.keepExt {
		if c.outExt == "" {
			return paths.TargetPath{}
		}
		ext = c.outExt
	}
	sub = strings.TrimSuffix(sub, filepath.Ext(sub)) + c.outSuffix + ext
	return paths.NewTarget(c.env.CacheRoot(), "media", sub)
}

// Argv returns the resolved command for this builder, nil for builders
// without one.
func (c *Core) Argv() []string {
	if c.argvFn == nil {
		return nil
	}
	return c.argvFn()
}

// ActionLine is the canonical resolved action string used for decider
// fingerprints and error reporting.
func (c *Core) ActionLine() string { return ActionString(c.Argv()) }

// Err returns the terminal failure, nil unless status is error.
func (c *Core) Err() error { return c.failed }

// fail marks the builder terminally failed.
func (c *Core) fail(err error) { c.failed = err }

// available probes the required executables once and caches the outcome
// for the life of the instance.
func (c *Core) available() error {
	c.availOnce.Do(func() {
		for _, name := range c.requiredExecs {
			if _, err := c.env.FindExecutable(name); err != nil {
				c.availErr = err
				return
			}
		}
	})
	return c.availErr
}

// missingInputs reports whether any input file is absent. A builder with no
// inputs has nothing to build from and counts as missing.
func (c *Core) missingInputs() bool {
	if len(c.inputs) == 0 {
		return true
	}
	for _, in := range c.inputs {
		if _, err := os.Stat(in.Abs()); err != nil {
			return true
		}
	}
	return false
}

// Status implements the leaf state machine.
func (c *Core) Status(ctx context.Context) Status {
	switch {
	case c.failed != nil:
		return ErrorStatus(c.failed)
	case c.done:
		return Done()
	case c.building:
		return Building()
	}

	if err := c.available(); err != nil {
		return Missing("executable")
	}
	if c.missingInputs() {
		return Missing("infilepaths")
	}
	out := c.OutPath()
	if out.IsZero() {
		return Missing("outfilepath")
	}

	need, reason, err := c.env.Decider().Decide(ctx, c.inputs, c.ActionLine(), out)
	if err != nil {
		slog.Debug("Build decision failed, assuming rebuild",
			logfields.Builder(c.name), logfields.Error(err))
		return Ready()
	}
	if !need {
		c.done = true
		return Done()
	}
	slog.Debug("Build needed", logfields.Builder(c.name), slog.String("reason", reason))
	return Ready()
}

// Build drives the leaf state machine.
func (c *Core) Build(ctx context.Context, complete bool) Status {
	for {
		st := c.Status(ctx)
		if st.Kind != KindReady {
			return st
		}
		c.runStep(ctx)
		if !complete {
			return c.Status(ctx)
		}
	}
}

// runStep performs one increment: the configured step, output verification
// and decider recording.
func (c *Core) runStep(ctx context.Context) {
	rec := c.env.Metrics()
	start := time.Now()

	c.building = true
	err := c.stepFn(ctx)
	c.building = false
	rec.ObserveBuilderDuration(c.name, time.Since(start))

	if err != nil {
		c.fail(err)
		rec.IncBuilderResult(c.name, metrics.ResultError)
		return
	}

	out := c.OutPath()
	if _, statErr := os.Stat(out.Abs()); statErr != nil {
		c.fail(&OutputMissingError{Builder: c.name, Path: out.Abs()})
		rec.IncBuilderResult(c.name, metrics.ResultError)
		return
	}

	if recErr := c.env.Decider().Record(ctx, c.inputs, c.ActionLine(), out); recErr != nil {
		slog.Warn("Failed to record build decision",
			logfields.Builder(c.name), logfields.Error(recErr))
	}
	c.done = true
	rec.IncBuilderResult(c.name, metrics.ResultSuccess)
}
