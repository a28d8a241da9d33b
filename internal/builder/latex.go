package builder

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Latex compiles a .tex source to PDF. The compile runs in a scratch
// directory so auxiliary files (.aux, .log) never land next to sources or
// in the media cache; only the PDF product is copied out. The scratch
// location stays out of the action line so fingerprints remain stable
// across sessions.
type Latex struct {
	Core
	scratch string
}

var _ Builder = (*Latex)(nil)

// NewLatex constructs the pdflatex builder.
func NewLatex(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Latex {
	b := &Latex{}
	b.Core = Core{
		env:           e,
		name:          "pdflatex",
		inputs:        inputs,
		output:        output,
		outExt:        ".pdf",
		params:        params,
		requiredExecs: []string{"pdflatex"},
	}
	c := &b.Core
	c.argvFn = func() []string {
		argv := []string{"pdflatex", "-interaction=nonstopmode", "-halt-on-error"}
		for _, in := range c.inputs {
			argv = append(argv, in.Abs())
		}
		return argv
	}
	c.stepFn = b.step
	return b
}

func (b *Latex) step(ctx context.Context) error {
	if len(b.inputs) == 0 {
		return fmt.Errorf("pdflatex: no input")
	}
	if b.scratch == "" {
		dir, err := b.env.ScratchDir("latex")
		if err != nil {
			return fmt.Errorf("pdflatex: scratch dir: %w", err)
		}
		b.scratch = dir
	}

	argv := b.Argv()
	res, err := b.env.Run(ctx, argv, env.RunOpts{Dir: b.scratch})
	if err != nil {
		return fmt.Errorf("run pdflatex: %w", err)
	}
	if res.ReturnCode != 0 {
		return &ToolError{
			Cmd:        ActionString(argv),
			ReturnCode: res.ReturnCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
		}
	}

	product := filepath.Join(b.scratch, paths.Stem(b.inputs[0].Abs())+".pdf")
	return copyFile(product, b.OutPath().Abs())
}
