// Package target assembles the per-format pipelines that turn one document
// source into its rendered products. Pipelines for one document share
// upstream stages through a StageSet: when both the tex and pdf targets are
// requested, the render-to-tex stage exists once, runs once, and both
// pipelines consume its product.
package target

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/builder"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Renderer turns document source into target markup. The project layer
// provides the implementation; this package only schedules it.
type Renderer interface {
	Render(ctx context.Context, doc paths.SourcePath, format string, out paths.TargetPath) error
}

// StageSet is the per-document shared stage table. Lookup-or-create is
// atomic so concurrent pipeline construction never duplicates a stage.
type StageSet struct {
	mu     sync.Mutex
	stages map[string]builder.Builder
}

func NewStageSet() *StageSet {
	return &StageSet{stages: make(map[string]builder.Builder)}
}

func (s *StageSet) lookupOrCreate(key string, create func() builder.Builder) builder.Builder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.stages[key]; ok {
		return b
	}
	b := create()
	s.stages[key] = b
	return b
}

// Len reports how many distinct stages exist.
func (s *StageSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stages)
}

// Config carries everything a pipeline needs beyond the environment.
type Config struct {
	Doc        paths.SourcePath
	TargetRoot string
	Renderer   Renderer
	Stages     *StageSet
	Params     attrs.List
}

// Target is one document-format pipeline. It is a sequential composite
// with a leading parallel slot for dependency builds (media conversions
// registered through AddBuild run before the document renders).
type Target struct {
	*builder.Sequential
	format string
	deps   *builder.Parallel
}

// New dispatches on the format tag.
func New(e *env.Env, format string, cfg Config) (*Target, error) {
	switch strings.TrimPrefix(format, ".") {
	case "html":
		return NewHtml(e, cfg), nil
	case "tex":
		return NewTex(e, cfg), nil
	case "pdf":
		return NewPdf(e, cfg), nil
	default:
		return nil, fmt.Errorf("no target pipeline for format %q", format)
	}
}

// NewTex renders the document to LaTeX source.
func NewTex(e *env.Env, cfg Config) *Target {
	return newTarget(e, "tex", cfg, []builder.Builder{
		renderStage(e, cfg, "tex", ".tex"),
	})
}

// NewHtml renders the document to hypertext.
func NewHtml(e *env.Env, cfg Config) *Target {
	return newTarget(e, "html", cfg, []builder.Builder{
		renderStage(e, cfg, "html", ".html"),
	})
}

// NewPdf renders to LaTeX through the shared stage, then typesets. The
// render stage instance is the same one a tex pipeline for this document
// uses, so it executes once for both.
func NewPdf(e *env.Env, cfg Config) *Target {
	return newTarget(e, "pdf", cfg, []builder.Builder{
		renderStage(e, cfg, "tex", ".tex"),
		builder.NewLatex(e, nil, paths.TargetPath{}, cfg.Params),
	})
}

func newTarget(e *env.Env, format string, cfg Config, stages []builder.Builder) *Target {
	deps, err := builder.NewParallel(e, format+"-deps", nil, 0, cfg.Params)
	if err != nil {
		// Unreachable: an empty child set cannot collide.
		panic(err)
	}

	product := paths.NewTarget(cfg.TargetRoot, format, withExtSub(cfg.Doc.Sub(), "."+format))
	subs := append([]builder.Builder{deps}, stages...)
	seq := builder.NewSequential(e, format+"-target", subs,
		[]paths.Path{cfg.Doc}, product, cfg.Params)

	return &Target{Sequential: seq, format: format, deps: deps}
}

// renderStage returns the shared render builder for ext, creating it on
// first use. Its product floats in the media cache; each pipeline's
// terminal copy places it where that pipeline needs it.
func renderStage(e *env.Env, cfg Config, format, ext string) builder.Builder {
	return cfg.Stages.lookupOrCreate(ext, func() builder.Builder {
		r := cfg.Renderer
		return builder.NewFunc(e, "render-"+format, ext,
			[]paths.Path{cfg.Doc}, paths.TargetPath{}, cfg.Params,
			func(ctx context.Context, inputs []paths.Path, output paths.TargetPath) error {
				return r.Render(ctx, cfg.Doc, format, output)
			})
	})
}

// Format is the pipeline's target tag ("html", "pdf", "tex").
func (t *Target) Format() string { return t.format }

// Product is where the finished rendering lands.
func (t *Target) Product() paths.TargetPath { return t.OutPath() }

// AddBuild registers a dependency build (typically a media conversion)
// that must finish before the document renders. Rejects builds whose
// output collides with an already registered one.
func (t *Target) AddBuild(b builder.Builder) error {
	return t.deps.Add(b)
}

// withExtSub swaps the extension on a slash-separated subpath.
func withExtSub(sub, ext string) string {
	if i := strings.LastIndex(sub, "."); i > strings.LastIndex(sub, "/") {
		sub = sub[:i]
	}
	return sub + ext
}
