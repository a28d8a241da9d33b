package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Copy places its first input at the output path. It runs in-process, needs
// no executables and is always available, which is what makes it a safe
// terminal stage for sequential chains.
type Copy struct {
	Core
}

var _ Builder = (*Copy)(nil)

// NewCopy constructs a copy builder.
func NewCopy(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Copy {
	b := &Copy{}
	b.Core = Core{
		env:     e,
		name:    "copy",
		inputs:  inputs,
		output:  output,
		params:  params,
		keepExt: true,
	}
	c := &b.Core
	c.argvFn = func() []string {
		argv := []string{"copy"}
		for _, in := range c.inputs {
			argv = append(argv, in.Abs())
		}
		return append(argv, c.OutPath().Abs())
	}
	c.stepFn = b.step
	return b
}

func (b *Copy) step(_ context.Context) error {
	if len(b.inputs) == 0 {
		return fmt.Errorf("copy: no input")
	}
	src := b.inputs[0].Abs()
	dst := b.OutPath().Abs()
	if src == dst {
		return nil
	}

	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	if err := env.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
