package builder

import (
	"context"
	"path/filepath"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Func is a leaf builder whose increment runs in-process rather than
// through an external tool. The name doubles as the action verb for
// fingerprinting, so two Func builders doing different work need
// different names.
type Func struct {
	Core
	step func(ctx context.Context, inputs []paths.Path, output paths.TargetPath) error
}

var _ Builder = (*Func)(nil)

// NewFunc constructs an in-process builder. The output directory exists by
// the time step runs.
func NewFunc(e *env.Env, name, outExt string, inputs []paths.Path, output paths.TargetPath,
	params attrs.List, step func(ctx context.Context, inputs []paths.Path, output paths.TargetPath) error) *Func {

	b := &Func{step: step}
	b.Core = Core{
		env:    e,
		name:   name,
		inputs: inputs,
		output: output,
		outExt: outExt,
		params: params,
	}
	c := &b.Core
	c.argvFn = func() []string {
		argv := []string{name}
		for _, in := range c.inputs {
			argv = append(argv, in.Abs())
		}
		return append(argv, c.OutPath().Abs())
	}
	c.stepFn = func(ctx context.Context) error {
		out := c.OutPath()
		if err := env.EnsureDir(filepath.Dir(out.Abs())); err != nil {
			return err
		}
		return b.step(ctx, c.inputs, out)
	}
	return b
}
