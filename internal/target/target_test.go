package target

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgen/internal/builder"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// fakeRenderer writes "<format>-render:<source>" and counts invocations.
// probe, when set, is checked for existence at render time to observe
// whether dependency builds completed first.
type fakeRenderer struct {
	mu       sync.Mutex
	formats  []string
	probe    string
	sawProbe bool
}

func (r *fakeRenderer) Render(_ context.Context, doc paths.SourcePath, format string, out paths.TargetPath) error {
	r.mu.Lock()
	r.formats = append(r.formats, format)
	if r.probe != "" {
		if _, err := os.Stat(r.probe); err == nil {
			r.sawProbe = true
		}
	}
	r.mu.Unlock()

	data, err := os.ReadFile(doc.Abs())
	if err != nil {
		return err
	}
	return os.WriteFile(out.Abs(), append([]byte(format+"-render:"), data...), 0o644)
}

func (r *fakeRenderer) renders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.formats...)
}

// texRunner fakes pdflatex (writes the product into the working
// directory) and generic converters (writes the last argument).
type texRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *texRunner) Run(_ context.Context, spec env.RunSpec) (env.RunResult, error) {
	tool := filepath.Base(spec.Path)
	r.mu.Lock()
	r.calls = append(r.calls, tool)
	r.mu.Unlock()

	if tool == "pdflatex" {
		src := spec.Args[len(spec.Args)-1]
		data, err := os.ReadFile(src)
		if err != nil {
			return env.RunResult{ReturnCode: 1, Stderr: err.Error()}, nil
		}
		stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		product := filepath.Join(spec.Dir, stem+".pdf")
		return env.RunResult{}, os.WriteFile(product, append([]byte("typeset:"), data...), 0o644)
	}

	out := spec.Args[len(spec.Args)-1]
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return env.RunResult{}, err
	}
	return env.RunResult{}, os.WriteFile(out, []byte(tool+"-product"), 0o644)
}

func (r *texRunner) count(tool string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == tool {
			n++
		}
	}
	return n
}

func newTargetFixture(t *testing.T) (*env.Env, *texRunner, Config) {
	t.Helper()
	runner := &texRunner{}
	e, err := env.New(env.Options{
		CacheRoot: filepath.Join(t.TempDir(), "cache"),
		Runner:    runner,
		LookPath: func(name string) (string, error) {
			return "/usr/bin/" + name, nil
		},
	})
	require.NoError(t, err)

	root := t.TempDir()
	doc := paths.NewSource(root, "ch1/index.dg")
	require.NoError(t, os.MkdirAll(filepath.Dir(doc.Abs()), 0o755))
	require.NoError(t, os.WriteFile(doc.Abs(), []byte("document body"), 0o644))

	cfg := Config{
		Doc:        doc,
		TargetRoot: t.TempDir(),
		Renderer:   &fakeRenderer{},
		Stages:     NewStageSet(),
	}
	return e, runner, cfg
}

func TestHtmlTarget_RendersProduct(t *testing.T) {
	ctx := context.Background()
	e, _, cfg := newTargetFixture(t)

	h := NewHtml(e, cfg)
	require.Equal(t, "html", h.Format())
	require.Equal(t,
		filepath.Join(cfg.TargetRoot, "html", "ch1", "index.html"),
		h.Product().Abs())

	require.Equal(t, "done", h.Build(ctx, true).String())

	data, err := os.ReadFile(h.Product().Abs())
	require.NoError(t, err)
	require.Equal(t, "html-render:document body", string(data))
}

func TestPdfTarget_TypesetsRenderedTex(t *testing.T) {
	ctx := context.Background()
	e, runner, cfg := newTargetFixture(t)

	p := NewPdf(e, cfg)
	require.Equal(t, "done", p.Build(ctx, true).String())
	require.Equal(t, 1, runner.count("pdflatex"))

	data, err := os.ReadFile(p.Product().Abs())
	require.NoError(t, err)
	require.Equal(t, "typeset:tex-render:document body", string(data))
}

func TestSharedStage_RunsOnceForTexAndPdf(t *testing.T) {
	ctx := context.Background()
	e, runner, cfg := newTargetFixture(t)
	rend := cfg.Renderer.(*fakeRenderer)

	p := NewPdf(e, cfg)
	x := NewTex(e, cfg)
	require.Equal(t, 1, cfg.Stages.Len(), "both pipelines share one render stage")

	require.Equal(t, "done", p.Build(ctx, true).String())
	require.Equal(t, "done", x.Build(ctx, true).String())

	require.Equal(t, []string{"tex"}, rend.renders(), "shared stage must render once")
	require.Equal(t, 1, runner.count("pdflatex"))

	tex, err := os.ReadFile(x.Product().Abs())
	require.NoError(t, err)
	require.Equal(t, "tex-render:document body", string(tex))

	pdf, err := os.ReadFile(p.Product().Abs())
	require.NoError(t, err)
	require.Equal(t, "typeset:tex-render:document body", string(pdf))
}

func TestAddBuild_DependenciesRunBeforeRender(t *testing.T) {
	ctx := context.Background()
	e, runner, cfg := newTargetFixture(t)

	fig := paths.NewSource(cfg.Doc.ProjectRoot, "ch1/fig.svg")
	require.NoError(t, os.WriteFile(fig.Abs(), []byte("<svg/>"), 0o644))
	figOut := paths.NewTarget(cfg.TargetRoot, "html", "ch1/fig.png")

	rend := cfg.Renderer.(*fakeRenderer)
	rend.probe = figOut.Abs()

	h := NewHtml(e, cfg)
	conv := builder.NewExec(e, "rasterize", "rasterize {in} {out}",
		[]string{"rasterize"}, ".png", []paths.Path{fig}, figOut, nil)
	require.NoError(t, h.AddBuild(conv))

	require.Equal(t, "done", h.Build(ctx, true).String())
	require.Equal(t, 1, runner.count("rasterize"))
	require.True(t, rend.sawProbe, "dependency products must exist before rendering")
}

func TestAddBuild_RejectsCollidingOutputs(t *testing.T) {
	e, _, cfg := newTargetFixture(t)
	h := NewHtml(e, cfg)

	fig := paths.NewSource(cfg.Doc.ProjectRoot, "ch1/fig.svg")
	out := paths.NewTarget(cfg.TargetRoot, "html", "ch1/fig.png")

	a := builder.NewExec(e, "rasterize", "rasterize {in} {out}",
		[]string{"rasterize"}, ".png", []paths.Path{fig}, out, nil)
	b := builder.NewExec(e, "rasterize", "rasterize {in} {out}",
		[]string{"rasterize"}, ".png", []paths.Path{fig}, out, nil)

	require.NoError(t, h.AddBuild(a))
	require.Error(t, h.AddBuild(b))
}

func TestNew_DispatchesOnFormat(t *testing.T) {
	e, _, cfg := newTargetFixture(t)

	for _, format := range []string{"html", "tex", "pdf", ".html"} {
		tb, err := New(e, format, cfg)
		require.NoError(t, err)
		require.Equal(t, strings.TrimPrefix(format, "."), tb.Format())
	}

	_, err := New(e, "docx", cfg)
	require.Error(t, err)
}
