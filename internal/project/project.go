// Package project drives whole-tree render sessions: load the project
// configuration, discover documents and their media dependencies, assemble
// one pipeline per document and target, and drive everything to completion.
// Documents render concurrently; the targets of one document render in
// order because they may share pipeline stages.
package project

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docgen/internal/convert"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/events"
	"git.home.luguber.info/inful/docgen/internal/logfields"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/paths"
	"git.home.luguber.info/inful/docgen/internal/target"
)

// Project binds a loaded configuration to a build environment and the
// collaborators a render session needs.
type Project struct {
	root       string
	sourceRoot string
	targetRoot string

	cfg  *Config
	env  *env.Env
	reg  *convert.Registry
	rend target.Renderer
	sink events.Sink
}

// Options substitute default collaborators. Zero fields get defaults:
// config loaded from docgen.yaml, a fresh environment, the standard
// converter registry, the passthrough renderer and no event sink.
type Options struct {
	Config   *Config
	Env      *env.Env
	Registry *convert.Registry
	Renderer target.Renderer
	Sink     events.Sink
	Metrics  metrics.Recorder
}

// Open loads the project rooted at root.
func Open(root string, opts Options) (*Project, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg == nil {
		cfg, err = LoadConfig(filepath.Join(absRoot, DefaultConfigName))
		if err != nil {
			return nil, err
		}
	} else {
		cfg.applyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	e := opts.Env
	if e == nil {
		e, err = env.New(env.Options{
			CacheRoot:   resolvePath(absRoot, cfg.CacheRoot),
			ProjectRoot: absRoot,
			ToolPaths:   cfg.Tools,
			Metrics:     opts.Metrics,
		})
		if err != nil {
			return nil, errors.WorkspaceError("prepare cache", err)
		}
	}

	reg := opts.Registry
	if reg == nil {
		reg = convert.Default()
	}
	rend := opts.Renderer
	if rend == nil {
		rend = PassthroughRenderer{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.NoopSink{}
	}

	return &Project{
		root:       absRoot,
		sourceRoot: resolvePath(absRoot, cfg.SourceDir),
		targetRoot: resolvePath(absRoot, cfg.TargetRoot),
		cfg:        cfg,
		env:        e,
		reg:        reg,
		rend:       rend,
		sink:       sink,
	}, nil
}

// resolvePath anchors a relative config path at the project root. Empty
// stays empty so downstream defaults apply.
func resolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Config returns the loaded project configuration.
func (p *Project) Config() *Config { return p.cfg }

// Env returns the build environment. Callers owning the project should
// Cleanup the environment when done.
func (p *Project) Env() *env.Env { return p.env }

// Registry returns the converter registry in use.
func (p *Project) Registry() *convert.Registry { return p.reg }

// SourceRoot is the absolute source directory.
func (p *Project) SourceRoot() string { return p.sourceRoot }

// TargetRoot is the absolute product directory.
func (p *Project) TargetRoot() string { return p.targetRoot }

// RenderRequest narrows a session to a subset of documents or targets.
type RenderRequest struct {
	// Docs filters by source subpath; empty renders every document.
	Docs []string
	// Targets overrides the configured target list.
	Targets []string
}

// Result is the outcome of one render session.
type Result struct {
	Manifest     *Manifest
	ManifestPath string
}

// Render runs one session over the requested documents and targets. The
// returned error is nil only when every target build succeeded; the
// manifest is populated either way.
func (p *Project) Render(ctx context.Context, req RenderRequest) (*Result, error) {
	targets, err := p.sessionTargets(req.Targets)
	if err != nil {
		return nil, err
	}
	docs, err := p.sessionDocs(req.Docs)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	started := time.Now()
	p.publish(ctx, events.SessionStarted(sessionID))
	slog.Info("Render session started",
		logfields.SessionID(sessionID),
		slog.Int("documents", len(docs)),
		slog.String("targets", strings.Join(targets, ",")))

	abort := p.cfg.OnError == OnErrorAbort
	p.env.Metrics().SetParallelism(p.cfg.Concurrency)

	outcomes := make([][]TargetOutcome, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.Concurrency > 0 {
		g.SetLimit(p.cfg.Concurrency)
	}
	for i, doc := range docs {
		g.Go(func() error {
			if gctx.Err() != nil {
				outcomes[i] = canceledOutcomes(doc, targets)
				return nil
			}
			outcomes[i] = p.renderDocument(gctx, sessionID, doc, targets)
			if abort {
				return firstFailure(doc, outcomes[i])
			}
			return nil
		})
	}
	buildErr := g.Wait()

	manifest := &Manifest{
		SessionID:  sessionID,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
		Provenance: CollectProvenance(p.root),
	}
	for _, outs := range outcomes {
		manifest.Targets = append(manifest.Targets, outs...)
	}
	canceled := ctx.Err() != nil
	manifest.Outcome = manifest.deriveOutcome(canceled)

	manifestPath, werr := WriteManifest(p.sessionDir(), manifest)
	if werr != nil {
		slog.Warn("Session manifest not written", logfields.Error(werr))
	}

	p.env.Metrics().IncSession(manifest.Outcome)
	p.publish(context.WithoutCancel(ctx),
		events.SessionCompleted(sessionID, manifest.Outcome, manifest.Built(), manifest.Failed()))
	slog.Info("Render session finished",
		logfields.SessionID(sessionID),
		slog.String("outcome", manifest.Outcome),
		slog.Int("built", manifest.Built()),
		slog.Int("failed", manifest.Failed()),
		logfields.DurationMS(float64(time.Since(started).Milliseconds())))

	result := &Result{Manifest: manifest, ManifestPath: manifestPath}
	switch {
	case canceled:
		return result, errors.Wrap(ctx.Err(), errors.CategoryRuntime, errors.SeverityError,
			"render session canceled")
	case buildErr != nil:
		return result, buildErr
	case manifest.Failed() > 0:
		return result, errors.New(errors.CategoryBuild, errors.SeverityError,
			fmt.Sprintf("%d of %d target builds failed", manifest.Failed(), len(manifest.Targets)))
	default:
		return result, nil
	}
}

// sessionTargets validates the target list for this session.
func (p *Project) sessionTargets(override []string) ([]string, error) {
	if len(override) == 0 {
		return p.cfg.Targets, nil
	}
	targets := make([]string, len(override))
	for i, t := range override {
		name := strings.TrimPrefix(t, ".")
		if !slices.Contains(KnownTargets, name) {
			return nil, errors.ValidationFailed("targets", fmt.Sprintf("unknown target %q", t))
		}
		targets[i] = name
	}
	return targets, nil
}

// sessionDocs scans the source tree and applies the document filter.
func (p *Project) sessionDocs(filter []string) ([]paths.SourcePath, error) {
	docs, err := ScanDocuments(p.sourceRoot)
	if err != nil {
		return nil, errors.ScanError(err)
	}
	if len(filter) == 0 {
		return docs, nil
	}

	bySub := make(map[string]paths.SourcePath, len(docs))
	for _, d := range docs {
		bySub[d.Sub()] = d
	}
	selected := make([]paths.SourcePath, 0, len(filter))
	for _, name := range filter {
		d, ok := bySub[filepath.ToSlash(name)]
		if !ok {
			return nil, errors.ValidationFailed("docs",
				fmt.Sprintf("no document %q under %s", name, p.sourceRoot))
		}
		selected = append(selected, d)
	}
	return selected, nil
}

func (p *Project) sessionDir() string {
	return filepath.Join(p.env.CacheRoot(), "sessions")
}

// publish forwards an event to the sink. Sink trouble is logged, never
// propagated into the build.
func (p *Project) publish(ctx context.Context, ev events.Event) {
	if err := p.sink.Publish(ctx, ev); err != nil {
		slog.Warn("Event publish failed",
			slog.String("event", string(ev.Type)), logfields.Error(err))
	}
}

func canceledOutcomes(doc paths.SourcePath, targets []string) []TargetOutcome {
	outs := make([]TargetOutcome, len(targets))
	for i, t := range targets {
		outs[i] = TargetOutcome{Document: doc.Sub(), Target: t, Status: "canceled"}
	}
	return outs
}

// firstFailure converts a document's first failed outcome into the error
// that aborts the session.
func firstFailure(doc paths.SourcePath, outs []TargetOutcome) error {
	for _, o := range outs {
		if o.ok() {
			continue
		}
		reason := o.Error
		if reason == "" {
			reason = o.Status
		}
		return errors.BuildFailed(doc.Sub(), fmt.Errorf("%s: %s", o.Target, reason))
	}
	return nil
}
