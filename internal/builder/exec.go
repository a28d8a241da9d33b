package builder

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Exec is the leaf builder that runs one external tool per increment. Its
// behavior is fully described by an action template ("pdf2svg {in} {out}"),
// the executables it requires and the product extension used to derive
// cache outputs.
type Exec struct {
	Core
	template  string
	extraArgs []string
}

var _ Builder = (*Exec)(nil)

// NewExec constructs an action-driven builder. Output may be zero; the
// builder then derives a media cache location from its first input.
func NewExec(e *env.Env, name, template string, requiredExecs []string, outExt string,
	inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {

	b := &Exec{template: template}
	b.Core = Core{
		env:           e,
		name:          name,
		inputs:        inputs,
		output:        output,
		outExt:        outExt,
		params:        params,
		requiredExecs: requiredExecs,
	}
	c := &b.Core
	c.argvFn = func() []string {
		argv := ResolveAction(b.template, c.inputs, c.OutPath())
		return append(argv, b.extraArgs...)
	}
	c.stepFn = b.step
	return b
}

// WithExtraArgs appends fixed arguments after the expanded template.
func (b *Exec) WithExtraArgs(args ...string) *Exec {
	b.extraArgs = append(b.extraArgs, args...)
	return b
}

// WithOutSuffix appends a marker to derived cache filenames so chained
// stages with the same extension stay distinct.
func (b *Exec) WithOutSuffix(suffix string) *Exec {
	b.outSuffix = suffix
	return b
}

func (b *Exec) step(ctx context.Context) error {
	argv := b.Argv()
	if len(argv) == 0 {
		return fmt.Errorf("%s: empty action", b.name)
	}
	out := b.OutPath()
	if err := env.EnsureDir(filepath.Dir(out.Abs())); err != nil {
		return err
	}

	res, err := b.env.Run(ctx, argv, env.RunOpts{})
	if err != nil {
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	if res.ReturnCode != 0 {
		return &ToolError{
			Cmd:        ActionString(argv),
			ReturnCode: res.ReturnCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
		}
	}
	return nil
}
