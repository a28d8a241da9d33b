package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgen/internal/paths"
)

func TestCopy_PlacesInput(t *testing.T) {
	ctx := context.Background()
	e := newBuildEnv(t, toolRunner())
	root := t.TempDir()

	in := writeSource(t, root, "media/logo.png", "png bytes")
	out := paths.NewTarget(t.TempDir(), "html", "media/logo.png")

	cp := NewCopy(e, []paths.Path{in}, out, nil)
	require.Equal(t, "done", cp.Build(ctx, true).String())

	data, err := os.ReadFile(out.Abs())
	require.NoError(t, err)
	require.Equal(t, "png bytes", string(data))
}

func TestCopy_SameSourceAndDestination(t *testing.T) {
	ctx := context.Background()
	e := newBuildEnv(t, toolRunner())
	root := t.TempDir()

	in := writeSource(t, root, "a.txt", "text")
	out := paths.NewTarget(root, "", "a.txt")
	require.Equal(t, in.Abs(), out.Abs())

	cp := NewCopy(e, []paths.Path{in}, out, nil)
	require.Equal(t, "done", cp.Build(ctx, true).String())

	data, err := os.ReadFile(in.Abs())
	require.NoError(t, err)
	require.Equal(t, "text", string(data))
}

func TestCopy_DerivedOutputKeepsExtension(t *testing.T) {
	e := newBuildEnv(t, toolRunner())
	root := t.TempDir()

	in := writeSource(t, root, "docs/readme.txt", "text")
	cp := NewCopy(e, []paths.Path{in}, paths.TargetPath{}, nil)

	want := filepath.Join(e.CacheRoot(), "media", "docs", "readme.txt")
	require.Equal(t, want, cp.OutPath().Abs())
}
