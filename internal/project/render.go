package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/docgen/internal/builder"
	"git.home.luguber.info/inful/docgen/internal/events"
	"git.home.luguber.info/inful/docgen/internal/logfields"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/paths"
	"git.home.luguber.info/inful/docgen/internal/target"
)

// renderDocument builds every requested target for one document. The
// targets share one stage table and run in order: pipelines of the same
// document may drive the same shared stage instance, which is not safe to
// build from two goroutines.
func (p *Project) renderDocument(ctx context.Context, sessionID string, doc paths.SourcePath, targets []string) []TargetOutcome {
	refs, err := p.mediaRefs(doc)
	if err != nil {
		outs := make([]TargetOutcome, len(targets))
		for i, t := range targets {
			outs[i] = TargetOutcome{Document: doc.Sub(), Target: t, Status: "error", Error: err.Error()}
		}
		return outs
	}

	stages := target.NewStageSet()
	outs := make([]TargetOutcome, 0, len(targets))
	for _, format := range targets {
		outs = append(outs, p.buildTarget(ctx, sessionID, doc, format, stages, refs))
	}
	return outs
}

// buildTarget assembles and drives one document-target pipeline.
func (p *Project) buildTarget(ctx context.Context, sessionID string, doc paths.SourcePath,
	format string, stages *target.StageSet, refs []MediaRef) TargetOutcome {

	start := time.Now()
	outcome := TargetOutcome{Document: doc.Sub(), Target: format}

	finish := func(status, product string, err error) TargetOutcome {
		d := time.Since(start)
		outcome.Status = status
		outcome.Output = product
		outcome.DurationMS = float64(d.Milliseconds())
		if err != nil {
			outcome.Error = err.Error()
		}

		p.env.Metrics().ObserveTargetDuration(format, d)
		p.env.Metrics().IncTargetResult(format, resultLabel(status))
		p.publish(ctx, events.TargetBuilt(sessionID, doc.Sub(), format, status, product, d, err))

		if err != nil {
			slog.Error("Target build failed",
				logfields.Document(doc.Sub()), logfields.Target(format),
				logfields.Status(status), logfields.Error(err))
		} else {
			slog.Info("Target built",
				logfields.Document(doc.Sub()), logfields.Target(format),
				logfields.Output(product), logfields.DurationMS(outcome.DurationMS))
		}
		return outcome
	}

	tgt, err := target.New(p.env, format, target.Config{
		Doc:        doc,
		TargetRoot: p.targetRoot,
		Renderer:   p.rend,
		Stages:     stages,
	})
	if err != nil {
		return finish("error", "", err)
	}

	for _, ref := range refs {
		if err := p.addMediaBuild(tgt, doc, ref); err != nil {
			return finish(mediaErrStatus(err), "", err)
		}
	}

	st := tgt.Build(ctx, true)
	if st.Kind == builder.KindDone {
		p.publish(ctx, events.BuilderFinished(sessionID, doc.Sub(), tgt.Name(), st.String(), nil))
		return finish(st.String(), tgt.Product().Abs(), nil)
	}

	err = tgt.Core().Err()
	if err == nil {
		err = fmt.Errorf("target %s: %s", format, st)
	}
	p.publish(ctx, events.BuilderFinished(sessionID, doc.Sub(), tgt.Name(), st.String(), err))
	return finish(st.String(), "", err)
}

// mediaRefs extracts the media dependencies of a markdown document. Other
// document kinds have no scanner and contribute no requests.
func (p *Project) mediaRefs(doc paths.SourcePath) ([]MediaRef, error) {
	if doc.Ext() != ".md" {
		return nil, nil
	}
	data, err := os.ReadFile(doc.Abs())
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return ExtractMediaRefs(data), nil
}

// addMediaBuild turns one scanned reference into a dependency request
// anchored at the document's directory.
func (p *Project) addMediaBuild(tgt *target.Target, doc paths.SourcePath, ref MediaRef) error {
	sub := path.Join(path.Dir(doc.Sub()), ref.Dest)
	if sub == ".." || strings.HasPrefix(sub, "../") {
		return fmt.Errorf("media reference %q escapes the source tree", ref.Dest)
	}
	return p.AddRequest(tgt, Request{
		Doc:    doc,
		Source: paths.NewSource(p.sourceRoot, sub),
		Attrs:  ref.Attrs,
	})
}

// AddRequest registers one media dependency with a target pipeline:
// resolve the source, select a converter against the target's preferred
// formats, and schedule the build. Renderer collaborators use it for media
// the markdown scanner cannot see, inline content included.
func (p *Project) AddRequest(tgt *target.Target, req Request) error {
	src, err := req.resolveSource(p.env)
	if err != nil {
		return err
	}

	format := tgt.Format()
	sel, err := p.reg.Select(p.env, src, p.cfg.FormatsFor(format))
	if err != nil {
		return err
	}

	base := paths.NewTarget(p.targetRoot, format, mediaSub(p.sourceRoot, src))
	b := sel.Descriptor.New(p.env, sel.Format, []paths.Path{src},
		base.WithExt(sel.Format), req.Attrs.Filter(format, KnownTargets))
	return tgt.AddBuild(b)
}

// mediaErrStatus maps a request failure onto the outcome status.
func mediaErrStatus(err error) string {
	var missing *builder.MissingInputError
	if errors.As(err, &missing) {
		return "missing"
	}
	return "error"
}

// resultLabel classifies a terminal status string for metrics.
func resultLabel(status string) metrics.ResultLabel {
	switch {
	case status == "done":
		return metrics.ResultSuccess
	case strings.HasPrefix(status, "missing"):
		return metrics.ResultMissing
	case strings.Contains(status, "canceled"):
		return metrics.ResultCanceled
	default:
		return metrics.ResultError
	}
}

// PassthroughRenderer copies the document body unchanged into the target
// markup file. Real template engines implement target.Renderer outside
// this module and replace it through Options.
type PassthroughRenderer struct{}

func (PassthroughRenderer) Render(_ context.Context, doc paths.SourcePath, _ string, out paths.TargetPath) error {
	data, err := os.ReadFile(doc.Abs())
	if err != nil {
		return fmt.Errorf("read %s: %w", doc.Abs(), err)
	}
	if err := os.WriteFile(out.Abs(), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out.Abs(), err)
	}
	return nil
}
