package builder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/logfields"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// chainer is implemented by composites that must re-derive their internal
// wiring after their inputs or output were rewired from outside.
type chainer interface {
	chain()
}

// builderOut resolves a builder's effective output through any composite
// shadowing.
func builderOut(b Builder) paths.TargetPath {
	if o, ok := b.(interface{ OutPath() paths.TargetPath }); ok {
		return o.OutPath()
	}
	return b.Core().OutPath()
}

// builderAction resolves a builder's action line through any composite
// shadowing.
func builderAction(b Builder) string {
	if a, ok := b.(interface{ ActionLine() string }); ok {
		return a.ActionLine()
	}
	return b.Core().ActionLine()
}

// Sequential runs its subbuilders in declared order, wiring each stage's
// input to the previous stage's output. Unless disabled with a copy=false
// param, a trivial copy stage is appended so the chain's last step always
// places the final artifact, keeping every real conversion stage cacheable
// in the media tree.
type Sequential struct {
	Core
	subs []Builder
}

var _ Builder = (*Sequential)(nil)
var _ chainer = (*Sequential)(nil)

// NewSequential builds the composite and chains it. Subbuilder inputs and
// outputs are rewired immediately; nested composites are re-chained.
func NewSequential(e *env.Env, name string, subs []Builder,
	inputs []paths.Path, output paths.TargetPath, params attrs.List) *Sequential {

	s := &Sequential{subs: subs}
	s.Core = Core{
		env:    e,
		name:   name,
		inputs: inputs,
		output: output,
		params: params,
	}
	if len(s.subs) > 0 && !copyDisabled(params) {
		s.subs = append(s.subs, NewCopy(e, nil, paths.TargetPath{}, nil))
	}
	s.chain()
	return s
}

func copyDisabled(params attrs.List) bool {
	v, ok := params.Get("copy")
	return ok && v == "false"
}

// Subbuilders exposes the chained stages.
func (s *Sequential) Subbuilders() []Builder { return s.subs }

// chain rewires the stage graph: stage k+1 reads what stage k wrote, every
// non-terminal stage has its output cleared so it re-derives a cache
// location, and the final stage writes the composite's declared output.
func (s *Sequential) chain() {
	cur := s.inputs
	last := len(s.subs) - 1
	for i, sub := range s.subs {
		c := sub.Core()
		if len(cur) > 0 {
			c.SetInputs(cur)
		}
		if i < last {
			c.ClearOutput()
		} else if !s.output.IsZero() {
			c.SetOutput(s.output)
		}
		if ch, ok := sub.(chainer); ok {
			ch.chain()
		}
		if out := builderOut(sub); !out.IsZero() {
			cur = []paths.Path{out}
		} else {
			cur = nil
		}
	}
}

// OutPath is the declared output, or the last stage's output when the
// composite floats in the cache tree.
func (s *Sequential) OutPath() paths.TargetPath {
	if !s.output.IsZero() {
		return s.output
	}
	if n := len(s.subs); n > 0 {
		return builderOut(s.subs[n-1])
	}
	return paths.TargetPath{}
}

// ActionLine summarizes the whole chain for composite fingerprinting.
func (s *Sequential) ActionLine() string {
	parts := make([]string, len(s.subs))
	for i, sub := range s.subs {
		parts[i] = builderAction(sub)
	}
	return "sequential(" + strings.Join(parts, "; ") + ")"
}

// scan walks the stages once and returns the first non-done status along
// with the stage reporting it. All done yields (done, nil). The scan is
// never repeated within one control decision.
func (s *Sequential) scan(ctx context.Context) (Status, Builder) {
	for _, sub := range s.subs {
		st := sub.Status(ctx)
		if !st.Done() {
			return st, sub
		}
	}
	return Done(), nil
}

// deciderShortcut answers done for a fresh composite instance whose
// recorded output is still valid, without polling any stage.
func (s *Sequential) deciderShortcut(ctx context.Context) bool {
	out := s.OutPath()
	if out.IsZero() || len(s.inputs) == 0 {
		return false
	}
	need, _, err := s.env.Decider().Decide(ctx, s.inputs, s.ActionLine(), out)
	return err == nil && !need
}

// recordComposite stores the chain-level decision. Called only after a scan
// that reached the end of the stage list.
func (s *Sequential) recordComposite(ctx context.Context) {
	out := s.OutPath()
	if out.IsZero() || len(s.inputs) == 0 {
		return
	}
	if err := s.env.Decider().Record(ctx, s.inputs, s.ActionLine(), out); err != nil {
		slog.Debug("Failed to record composite decision",
			logfields.Builder(s.name), logfields.Error(err))
	}
}

func (s *Sequential) Status(ctx context.Context) Status {
	switch {
	case s.failed != nil:
		return ErrorStatus(s.failed)
	case s.done:
		return Done()
	}

	if s.deciderShortcut(ctx) {
		s.done = true
		return Done()
	}

	st, _ := s.scan(ctx)
	if st.Done() {
		s.recordComposite(ctx)
		s.done = true
	}
	return st
}

// Build drives the chain stage by stage, failing fast on the first stage
// error. With complete=false exactly one stage increment happens.
func (s *Sequential) Build(ctx context.Context, complete bool) Status {
	for {
		if err := ctx.Err(); err != nil {
			s.fail(fmt.Errorf("build canceled: %w", err))
			return ErrorStatus(s.failed)
		}

		switch {
		case s.failed != nil:
			return ErrorStatus(s.failed)
		case s.done:
			return Done()
		}

		if s.deciderShortcut(ctx) {
			s.done = true
			return Done()
		}

		st, sub := s.scan(ctx)
		if st.Done() {
			s.recordComposite(ctx)
			s.done = true
			return Done()
		}
		if st.Kind == KindMissing {
			return st
		}
		if st.Kind == KindError {
			s.fail(stageErr(sub, st))
			return ErrorStatus(s.failed)
		}

		sst := sub.Build(ctx, complete)
		if sst.Kind == KindError {
			s.fail(stageErr(sub, sst))
			return ErrorStatus(s.failed)
		}
		if !complete {
			return s.Status(ctx)
		}
	}
}

func stageErr(sub Builder, st Status) error {
	if err := sub.Core().Err(); err != nil {
		return fmt.Errorf("stage %s: %w", sub.Name(), err)
	}
	return fmt.Errorf("stage %s: %s", sub.Name(), st)
}
