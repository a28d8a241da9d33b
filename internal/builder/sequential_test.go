package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/decider"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

func twoStageChain(t *testing.T, e *env.Env, in paths.Path, out paths.TargetPath, params attrs.List) *Sequential {
	t.Helper()
	subs := []Builder{
		NewExec(e, "tool1", "tool1 {in} {out}", []string{"tool1"}, ".mid", nil, paths.TargetPath{}, nil),
		NewExec(e, "tool2", "tool2 {in} {out}", []string{"tool2"}, ".out", nil, paths.TargetPath{}, nil),
	}
	return NewSequential(e, "chain", subs, []paths.Path{in}, out, params)
}

func TestSequential_AppendsCopyStage(t *testing.T) {
	e := newBuildEnv(t, toolRunner())
	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	seq := twoStageChain(t, e, in, out, nil)
	subs := seq.Subbuilders()
	require.Len(t, subs, 3)
	_, isCopy := subs[2].(*Copy)
	require.True(t, isCopy, "terminal stage must be the copy builder")
}

func TestSequential_CopyDisabled(t *testing.T) {
	e := newBuildEnv(t, toolRunner())
	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	seq := twoStageChain(t, e, in, out, attrs.Parse("copy=false"))
	require.Len(t, seq.Subbuilders(), 2)
}

func TestSequential_ChainsStageIO(t *testing.T) {
	e := newBuildEnv(t, toolRunner())
	root := t.TempDir()
	in := writeSource(t, root, "fig/a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "fig/a.out")

	seq := twoStageChain(t, e, in, out, nil)
	subs := seq.Subbuilders()

	require.Equal(t, []paths.Path{paths.Path(in)}, subs[0].Core().Inputs())

	mid := filepath.Join(e.CacheRoot(), "media", "fig", "a.mid")
	require.Equal(t, mid, subs[0].Core().OutPath().Abs())

	require.Len(t, subs[1].Core().Inputs(), 1)
	require.Equal(t, mid, subs[1].Core().Inputs()[0].Abs())

	produced := filepath.Join(e.CacheRoot(), "media", "fig", "a.out")
	require.Equal(t, produced, subs[1].Core().OutPath().Abs())

	require.Len(t, subs[2].Core().Inputs(), 1)
	require.Equal(t, produced, subs[2].Core().Inputs()[0].Abs())
	require.Equal(t, out.Abs(), subs[2].Core().OutPath().Abs())
}

func TestSequential_BuildRunsStagesInOrder(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	seq := twoStageChain(t, e, in, out, nil)
	require.Equal(t, "done", seq.Build(ctx, true).String())
	require.Equal(t, 2, runner.count())
	require.Equal(t, "tool1", filepath.Base(runner.call(0).Path))
	require.Equal(t, "tool2", filepath.Base(runner.call(1).Path))

	data, err := os.ReadFile(out.Abs())
	require.NoError(t, err)
	require.Equal(t, "tool2:tool1:alpha", string(data))
}

func TestSequential_FailFast(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{fn: func(spec env.RunSpec) (env.RunResult, error) {
		if filepath.Base(spec.Path) == "tool1" {
			return env.RunResult{ReturnCode: 1, Stderr: "stage one broke"}, nil
		}
		return env.RunResult{}, nil
	}}
	e := newBuildEnv(t, runner)
	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	seq := twoStageChain(t, e, in, out, nil)
	st := seq.Build(ctx, true)
	require.Equal(t, KindError, st.Kind)
	require.Equal(t, 1, runner.count(), "later stages must not run after a failure")

	var toolErr *ToolError
	require.ErrorAs(t, seq.Err(), &toolErr)
	require.Contains(t, seq.Err().Error(), "tool1")

	require.Equal(t, KindError, seq.Status(ctx).Kind)
}

func TestSequential_StatusReportsFirstPendingStage(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e, err := env.New(env.Options{
		CacheRoot: filepath.Join(t.TempDir(), "cache"),
		Runner:    runner,
		LookPath: func(name string) (string, error) {
			if name == "tool2" {
				return "", os.ErrNotExist
			}
			return "/usr/bin/" + name, nil
		},
	})
	require.NoError(t, err)

	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")
	seq := twoStageChain(t, e, in, out, nil)

	// The scan stops at the first non-done stage, which is still buildable.
	require.Equal(t, "ready", seq.Status(ctx).String())

	// Build gets stage one done, then stops at the unavailable stage.
	st := seq.Build(ctx, true)
	require.Equal(t, "missing (executable)", st.String())
	require.Equal(t, 1, runner.count())
}

func TestSequential_FreshInstanceShortCircuits(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()
	targetRoot := t.TempDir()
	in := writeSource(t, root, "a.src", "alpha")
	out := paths.NewTarget(targetRoot, "html", "a.out")

	first := twoStageChain(t, e, in, out, nil)
	require.Equal(t, "done", first.Build(ctx, true).String())
	require.Equal(t, 2, runner.count())

	second := twoStageChain(t, e, in, out, nil)
	require.Equal(t, "done", second.Status(ctx).String())
	require.Equal(t, "done", second.Build(ctx, true).String())
	require.Equal(t, 2, runner.count(), "a valid recorded chain must not re-run tools")
}

func TestSequential_RecordedChainSurvivesLostIntermediates(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	first := twoStageChain(t, e, in, out, nil)
	require.Equal(t, "done", first.Build(ctx, true).String())
	require.Equal(t, 2, runner.count())

	// The chain record covers the original inputs and the final output, so
	// scrubbing a stage product from the media cache changes nothing.
	mid := first.Subbuilders()[0].Core().OutPath().Abs()
	require.NoError(t, os.Remove(mid))

	second := twoStageChain(t, e, in, out, nil)
	require.Equal(t, "done", second.Status(ctx).String())
	require.Equal(t, "done", second.Build(ctx, true).String())
	require.Equal(t, 2, runner.count(), "lost intermediates must not trigger a rebuild")
}

func TestSequential_PartialBuildLeavesNoChainRecord(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	store := decider.NewMemoryStore()
	e, err := env.New(env.Options{
		CacheRoot: filepath.Join(t.TempDir(), "cache"),
		Runner:    runner,
		Decider:   decider.New(store),
		LookPath: func(name string) (string, error) {
			if name == "tool2" {
				return "", os.ErrNotExist
			}
			return "/usr/bin/" + name, nil
		},
	})
	require.NoError(t, err)

	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	seq := twoStageChain(t, e, in, out, nil)
	require.Equal(t, "missing (executable)", seq.Build(ctx, true).String())
	require.Equal(t, 1, runner.count())

	// Only the completed stage recorded. With nothing under the final
	// output key, no later instance can short-circuit past the stall.
	_, ok, err := store.Get(ctx, out.Abs())
	require.NoError(t, err)
	require.False(t, ok, "a stalled chain must not record a chain-level decision")
}

func TestSequential_RebuildsChainOnInputChange(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()
	in := writeSource(t, root, "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	first := twoStageChain(t, e, in, out, nil)
	require.Equal(t, "done", first.Build(ctx, true).String())

	writeSource(t, root, "a.src", "beta")

	second := twoStageChain(t, e, in, out, nil)
	require.Equal(t, "done", second.Build(ctx, true).String())

	data, err := os.ReadFile(out.Abs())
	require.NoError(t, err)
	require.Equal(t, "tool2:tool1:beta", string(data))
}

func TestSequential_IncrementAdvancesOneStage(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	seq := twoStageChain(t, e, in, out, nil)

	require.Equal(t, "ready", seq.Build(ctx, false).String())
	require.Equal(t, 1, runner.count())

	require.Equal(t, "ready", seq.Build(ctx, false).String())
	require.Equal(t, 2, runner.count())

	// The copy stage runs in-process.
	require.Equal(t, "done", seq.Build(ctx, false).String())
	require.Equal(t, 2, runner.count())
}

func TestSequential_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := toolRunner()
	e := newBuildEnv(t, runner)
	in := writeSource(t, t.TempDir(), "a.src", "alpha")
	out := paths.NewTarget(t.TempDir(), "html", "a.out")

	seq := twoStageChain(t, e, in, out, nil)
	st := seq.Build(ctx, true)
	require.Equal(t, KindError, st.Kind)
	require.Contains(t, st.Detail, "canceled")
	require.Equal(t, 0, runner.count())
}

func TestTex2Svg_NestedChain(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{}
	runner.fn = func(spec env.RunSpec) (env.RunResult, error) {
		switch filepath.Base(spec.Path) {
		case "pdflatex":
			src := spec.Args[len(spec.Args)-1]
			data, err := os.ReadFile(src)
			if err != nil {
				return env.RunResult{ReturnCode: 1, Stderr: err.Error()}, nil
			}
			stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
			product := filepath.Join(spec.Dir, stem+".pdf")
			return env.RunResult{}, os.WriteFile(product, append([]byte("pdf:"), data...), 0o644)
		default:
			out := spec.Args[len(spec.Args)-1]
			data, err := os.ReadFile(spec.Args[0])
			if err != nil {
				return env.RunResult{ReturnCode: 1, Stderr: err.Error()}, nil
			}
			if mkErr := os.MkdirAll(filepath.Dir(out), 0o755); mkErr != nil {
				return env.RunResult{}, mkErr
			}
			payload := append([]byte(filepath.Base(spec.Path)+":"), data...)
			return env.RunResult{}, os.WriteFile(out, payload, 0o644)
		}
	}
	e := newBuildEnv(t, runner)
	root := t.TempDir()
	in := writeSource(t, root, "eq/formula.tex", "x^2")
	out := paths.NewTarget(t.TempDir(), "html", "eq/formula.svg")

	seq := NewTex2Svg(e, []paths.Path{in}, out, nil)
	require.Equal(t, "done", seq.Build(ctx, true).String())

	data, err := os.ReadFile(out.Abs())
	require.NoError(t, err)
	require.Equal(t, "pdf2svg:pdf:x^2", string(data))
}
