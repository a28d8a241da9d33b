package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// fakeRunner records every subprocess request and answers through fn.
type fakeRunner struct {
	mu    sync.Mutex
	calls []env.RunSpec
	fn    func(spec env.RunSpec) (env.RunResult, error)
}

func (r *fakeRunner) Run(_ context.Context, spec env.RunSpec) (env.RunResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, spec)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(spec)
	}
	return env.RunResult{}, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRunner) call(i int) env.RunSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[i]
}

// toolRunner simulates a converter: it reads the first argument that is an
// existing file and writes "<tool>:<content>" to the last argument.
func toolRunner() *fakeRunner {
	r := &fakeRunner{}
	r.fn = func(spec env.RunSpec) (env.RunResult, error) {
		out := spec.Args[len(spec.Args)-1]
		var content []byte
		for _, a := range spec.Args[:len(spec.Args)-1] {
			if data, err := os.ReadFile(a); err == nil {
				content = data
				break
			}
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return env.RunResult{}, err
		}
		payload := append([]byte(filepath.Base(spec.Path)+":"), content...)
		return env.RunResult{}, os.WriteFile(out, payload, 0o644)
	}
	return r
}

func newBuildEnv(t *testing.T, r env.Runner) *env.Env {
	t.Helper()
	e, err := env.New(env.Options{
		CacheRoot: filepath.Join(t.TempDir(), "cache"),
		Runner:    r,
		LookPath: func(name string) (string, error) {
			return "/usr/bin/" + name, nil
		},
	})
	require.NoError(t, err)
	return e
}

func writeSource(t *testing.T, root, sub, content string) paths.SourcePath {
	t.Helper()
	p := paths.NewSource(root, sub)
	require.NoError(t, os.MkdirAll(filepath.Dir(p.Abs()), 0o755))
	require.NoError(t, os.WriteFile(p.Abs(), []byte(content), 0o644))
	return p
}

func TestExecBuild_CreatesOutput(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()

	in := writeSource(t, root, "figs/diagram.pdf", "pdf bytes")
	out := paths.NewTarget(t.TempDir(), "html", "figs/diagram.svg")

	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, out, nil)

	require.Equal(t, "ready", b.Status(ctx).String())
	st := b.Build(ctx, true)
	require.Equal(t, "done", st.String())
	require.Equal(t, 1, runner.count())

	data, err := os.ReadFile(out.Abs())
	require.NoError(t, err)
	require.Equal(t, "tool:pdf bytes", string(data))
}

func TestExecBuild_DerivedCacheOutput(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()

	in := writeSource(t, root, "figs/diagram.pdf", "pdf bytes")
	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, paths.TargetPath{}, nil)

	want := filepath.Join(e.CacheRoot(), "media", "figs", "diagram.svg")
	require.Equal(t, want, b.OutPath().Abs())

	require.Equal(t, "done", b.Build(ctx, true).String())
	_, err := os.Stat(want)
	require.NoError(t, err)
}

func TestBuild_Idempotent(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()
	targetRoot := t.TempDir()

	in := writeSource(t, root, "a.pdf", "pdf bytes")
	out := paths.NewTarget(targetRoot, "html", "a.svg")

	first := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, out, nil)
	require.Equal(t, "done", first.Build(ctx, true).String())
	require.Equal(t, 1, runner.count())

	info, err := os.Stat(out.Abs())
	require.NoError(t, err)
	mtime := info.ModTime()

	second := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, out, nil)
	require.Equal(t, "done", second.Status(ctx).String())
	require.Equal(t, "done", second.Build(ctx, true).String())
	require.Equal(t, 1, runner.count(), "unchanged inputs must not rebuild")

	info, err = os.Stat(out.Abs())
	require.NoError(t, err)
	require.Equal(t, mtime, info.ModTime())
}

func TestBuild_RebuildsOnInputChange(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()

	in := writeSource(t, root, "in.txt", "infile text")
	out := paths.NewTarget(t.TempDir(), "html", "out.txt")

	first := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".txt",
		[]paths.Path{in}, out, nil)
	require.Equal(t, "done", first.Build(ctx, true).String())

	writeSource(t, root, "in.txt", "infile text2")

	second := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".txt",
		[]paths.Path{in}, out, nil)
	require.Equal(t, "ready", second.Status(ctx).String())
	require.Equal(t, "done", second.Build(ctx, true).String())
	require.Equal(t, 2, runner.count())

	data, err := os.ReadFile(out.Abs())
	require.NoError(t, err)
	require.Equal(t, "tool:infile text2", string(data))
}

func TestBuild_RestoresTamperedOutput(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()

	in := writeSource(t, root, "in.txt", "infile text")
	out := paths.NewTarget(t.TempDir(), "html", "out.txt")

	first := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".txt",
		[]paths.Path{in}, out, nil)
	require.Equal(t, "done", first.Build(ctx, true).String())

	require.NoError(t, os.WriteFile(out.Abs(), []byte("tampered"), 0o644))

	second := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".txt",
		[]paths.Path{in}, out, nil)
	require.Equal(t, "done", second.Build(ctx, true).String())

	data, err := os.ReadFile(out.Abs())
	require.NoError(t, err)
	require.Equal(t, "tool:infile text", string(data))
}

func TestStatus_MissingInputsSkipsToolRun(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)

	in := paths.NewSource(t.TempDir(), "never-created.pdf")
	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, paths.TargetPath{}, nil)

	require.Equal(t, "missing (infilepaths)", b.Status(ctx).String())
	require.Equal(t, "missing (infilepaths)", b.Build(ctx, true).String())
	require.Equal(t, 0, runner.count(), "missing inputs must not run the tool")
}

func TestStatus_NoInputsReportsMissing(t *testing.T) {
	ctx := context.Background()
	e := newBuildEnv(t, toolRunner())

	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		nil, paths.TargetPath{}, nil)
	require.Equal(t, "missing (infilepaths)", b.Status(ctx).String())
}

func TestStatus_MissingExecutable(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e, err := env.New(env.Options{
		CacheRoot: filepath.Join(t.TempDir(), "cache"),
		Runner:    runner,
		LookPath: func(name string) (string, error) {
			return "", fmt.Errorf("%s not found", name)
		},
	})
	require.NoError(t, err)

	in := writeSource(t, t.TempDir(), "a.pdf", "pdf bytes")
	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, paths.TargetPath{}, nil)

	require.Equal(t, "missing (executable)", b.Status(ctx).String())
	require.Equal(t, "missing (executable)", b.Build(ctx, true).String())
	require.Equal(t, 0, runner.count())
}

func TestStatus_UnderivableOutput(t *testing.T) {
	ctx := context.Background()
	e := newBuildEnv(t, toolRunner())

	in := writeSource(t, t.TempDir(), "a.pdf", "pdf bytes")
	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, "",
		[]paths.Path{in}, paths.TargetPath{}, nil)

	require.Equal(t, "missing (outfilepath)", b.Status(ctx).String())
}

func TestBuild_ArgumentSafety(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()

	in := writeSource(t, root, "figs/-unsafe fig.pdf", "pdf bytes")
	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, paths.TargetPath{}, nil)

	require.Equal(t, "done", b.Build(ctx, true).String())
	require.Equal(t, 1, runner.count())

	spec := runner.call(0)
	require.Len(t, spec.Args, 2, "template tokens expand to exactly one argument each")
	require.Equal(t, in.Abs(), spec.Args[0])
	require.True(t, strings.Contains(spec.Args[0], " "))
	require.True(t, strings.HasPrefix(filepath.Base(spec.Args[0]), "-"))
}

func TestBuild_MultipleInputsExpand(t *testing.T) {
	ctx := context.Background()
	runner := toolRunner()
	e := newBuildEnv(t, runner)
	root := t.TempDir()

	a := writeSource(t, root, "a.tex", "alpha")
	b := writeSource(t, root, "b.tex", "beta")
	out := paths.NewTarget(t.TempDir(), "html", "merged.pdf")

	ex := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".pdf",
		[]paths.Path{a, b}, out, nil)
	require.Equal(t, "done", ex.Build(ctx, true).String())

	spec := runner.call(0)
	require.Equal(t, []string{a.Abs(), b.Abs(), out.Abs()}, spec.Args)
}

func TestBuild_ToolFailureSurfacesOutput(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{fn: func(env.RunSpec) (env.RunResult, error) {
		return env.RunResult{ReturnCode: 1, Stderr: "boom"}, nil
	}}
	e := newBuildEnv(t, runner)

	in := writeSource(t, t.TempDir(), "a.pdf", "pdf bytes")
	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, paths.TargetPath{}, nil)

	st := b.Build(ctx, true)
	require.Equal(t, KindError, st.Kind)

	var toolErr *ToolError
	require.ErrorAs(t, b.Err(), &toolErr)
	require.Equal(t, 1, toolErr.ReturnCode)
	require.Equal(t, "boom", toolErr.Stderr)
	require.Contains(t, toolErr.Error(), "boom")

	// Terminal error state sticks; the tool is not retried.
	require.Equal(t, KindError, b.Build(ctx, true).Kind)
	require.Equal(t, 1, runner.count())
}

func TestBuild_MissingProductFails(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{} // exits zero, writes nothing
	e := newBuildEnv(t, runner)

	in := writeSource(t, t.TempDir(), "a.pdf", "pdf bytes")
	b := NewExec(e, "tool", "tool {in} {out}", []string{"tool"}, ".svg",
		[]paths.Path{in}, paths.TargetPath{}, nil)

	st := b.Build(ctx, true)
	require.Equal(t, KindError, st.Kind)

	var missing *OutputMissingError
	require.ErrorAs(t, b.Err(), &missing)
}
