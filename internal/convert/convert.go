package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/builder"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/logfields"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Request asks for one source file in one of the acceptable target
// formats. Base is the product path without its extension; the selection
// decides which extension it gets.
type Request struct {
	Source  paths.Path
	Base    paths.TargetPath
	Targets []string
	Params  attrs.List
	// NoCache forces a rebuild even when the existing product is newer
	// than the source.
	NoCache bool
}

// Convert selects a converter, honors the product cache and drives the
// build to completion. It returns the product path.
func (r *Registry) Convert(ctx context.Context, e *env.Env, req Request) (paths.TargetPath, error) {
	sel, err := r.Select(e, req.Source, req.Targets)
	if err != nil {
		return paths.TargetPath{}, err
	}
	out := req.Base.WithExt(sel.Format)

	if !req.NoCache && productCurrent(req.Source, out) {
		e.Metrics().IncConvertCacheHit(sel.Format)
		slog.Debug("Reusing converted product",
			logfields.Path(req.Source.Abs()), logfields.Output(out.Abs()))
		return out, nil
	}

	b := sel.Descriptor.New(e, sel.Format, []paths.Path{req.Source}, out, req.Params)
	st := b.Build(ctx, true)
	switch st.Kind {
	case builder.KindDone:
		return out, nil
	case builder.KindMissing:
		if st.Detail == "infilepaths" {
			return paths.TargetPath{}, &builder.MissingInputError{Path: req.Source.Abs()}
		}
		return paths.TargetPath{}, fmt.Errorf("convert %s: %s", req.Source.Abs(), st)
	default:
		if buildErr := b.Core().Err(); buildErr != nil {
			return paths.TargetPath{}, fmt.Errorf("convert %s: %w", req.Source.Abs(), buildErr)
		}
		return paths.TargetPath{}, fmt.Errorf("convert %s: %s", req.Source.Abs(), st)
	}
}

// productCurrent is the mtime fast path for finished products: an output
// at least as new as its source is served as-is. Content-level staleness
// is the decider's job once a builder actually runs.
func productCurrent(src paths.Path, out paths.TargetPath) bool {
	oi, err := os.Stat(out.Abs())
	if err != nil {
		return false
	}
	si, err := os.Stat(src.Abs())
	if err != nil {
		return false
	}
	return !oi.ModTime().Before(si.ModTime())
}
