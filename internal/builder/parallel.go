package builder

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/env"
)

// Parallel runs independent subbuilders concurrently. Children must not
// share an output path. A child failure is reported only after every
// sibling that already started has finished; nothing is force-killed.
type Parallel struct {
	Core
	subs  []Builder
	limit int
	seen  map[string]string
}

var _ Builder = (*Parallel)(nil)

// NewParallel validates output uniqueness across the children before
// accepting them. limit caps concurrent children; zero means unbounded.
func NewParallel(e *env.Env, name string, subs []Builder, limit int, params attrs.List) (*Parallel, error) {
	p := &Parallel{
		limit: limit,
		seen:  make(map[string]string),
	}
	p.Core = Core{
		env:    e,
		name:   name,
		params: params,
	}
	for _, sub := range subs {
		if err := p.Add(sub); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add appends a child, rejecting it when its output collides with an
// already registered sibling.
func (p *Parallel) Add(b Builder) error {
	if out := builderOut(b); !out.IsZero() {
		key := out.Abs()
		if prev, ok := p.seen[key]; ok {
			return fmt.Errorf("builders %s and %s share output %s", prev, b.Name(), key)
		}
		p.seen[key] = b.Name()
	}
	p.subs = append(p.subs, b)
	return nil
}

// Subbuilders exposes the registered children.
func (p *Parallel) Subbuilders() []Builder { return p.subs }

// Status aggregates one scan over the children: error wins, then building,
// then missing, then ready. All done caches done on the instance.
func (p *Parallel) Status(ctx context.Context) Status {
	switch {
	case p.failed != nil:
		return ErrorStatus(p.failed)
	case p.done:
		return Done()
	}

	var missing, ready, building *Status
	for _, sub := range p.subs {
		st := sub.Status(ctx)
		switch st.Kind {
		case KindError:
			return st
		case KindBuilding:
			if building == nil {
				building = &st
			}
		case KindMissing:
			if missing == nil {
				missing = &st
			}
		case KindReady:
			if ready == nil {
				ready = &st
			}
		}
	}
	switch {
	case building != nil:
		return *building
	case missing != nil:
		return *missing
	case ready != nil:
		return *ready
	}
	p.done = true
	return Done()
}

// Build advances every non-done child. With complete=true each child is
// driven to a terminal state; with complete=false each gets one increment.
// Children observe ctx themselves; a cancellation stops further children
// from starting but started ones run to completion.
func (p *Parallel) Build(ctx context.Context, complete bool) Status {
	switch {
	case p.failed != nil:
		return ErrorStatus(p.failed)
	case p.done:
		return Done()
	}

	var pending []Builder
	for _, sub := range p.subs {
		if !sub.Status(ctx).Done() {
			pending = append(pending, sub)
		}
	}
	if len(pending) == 0 {
		p.done = true
		return Done()
	}

	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}

	var mu sync.Mutex
	var firstErr error
	for _, sub := range pending {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			st := sub.Build(ctx, complete)
			if st.Kind == KindError {
				mu.Lock()
				if firstErr == nil {
					firstErr = stageErr(sub, st)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if firstErr != nil {
		p.fail(firstErr)
		return ErrorStatus(p.failed)
	}
	if err := ctx.Err(); err != nil {
		p.fail(fmt.Errorf("build canceled: %w", err))
		return ErrorStatus(p.failed)
	}
	return p.Status(ctx)
}
