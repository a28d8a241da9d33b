package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgen/internal/builder"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

func newRequestEnv(t *testing.T) *env.Env {
	t.Helper()
	e, err := env.New(env.Options{
		CacheRoot: filepath.Join(t.TempDir(), "cache"),
		LookPath: func(name string) (string, error) {
			return "/usr/bin/" + name, nil
		},
	})
	require.NoError(t, err)
	return e
}

func TestMaterializeInline_HashStampedAndStable(t *testing.T) {
	e := newRequestEnv(t)

	src, err := MaterializeInline(e, "formula", ".tex", []byte(`\[x^2\]`))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(src.Sub(), "inline/formula_"))
	require.Equal(t, ".tex", src.Ext())

	data, err := os.ReadFile(src.Abs())
	require.NoError(t, err)
	require.Equal(t, `\[x^2\]`, string(data))

	again, err := MaterializeInline(e, "formula", ".tex", []byte(`\[x^2\]`))
	require.NoError(t, err)
	require.Equal(t, src.Abs(), again.Abs(), "identical content shares one file")

	other, err := MaterializeInline(e, "formula", ".tex", []byte(`\[x^3\]`))
	require.NoError(t, err)
	require.NotEqual(t, src.Abs(), other.Abs())
}

func TestMaterializeInline_RequiresFormat(t *testing.T) {
	e := newRequestEnv(t)
	_, err := MaterializeInline(e, "formula", "", []byte("x"))
	require.Error(t, err)
}

func TestResolveSource_MissingFile(t *testing.T) {
	e := newRequestEnv(t)
	req := Request{Source: paths.NewSource(t.TempDir(), "figs/gone.pdf")}

	_, err := req.resolveSource(e)
	var missing *builder.MissingInputError
	require.ErrorAs(t, err, &missing)
	require.Contains(t, missing.Path, "gone.pdf")
}

func TestResolveSource_InlineContent(t *testing.T) {
	e := newRequestEnv(t)
	req := Request{Content: []byte("line alpha"), Name: "sketch", Ext: ".asy"}

	src, err := req.resolveSource(e)
	require.NoError(t, err)
	require.FileExists(t, src.Abs())
}

func TestMediaSub_InTreeAndOutOfTree(t *testing.T) {
	sourceRoot := "/proj/docs"

	inTree := paths.NewSource(sourceRoot, "ch1/fig.pdf")
	require.Equal(t, "ch1/fig.pdf", mediaSub(sourceRoot, inTree))

	inline := paths.NewSource("/cache/media", "inline/formula_abc123.tex")
	require.Equal(t, "media/formula_abc123.tex", mediaSub(sourceRoot, inline))
}
