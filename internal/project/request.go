package project

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/builder"
	"git.home.luguber.info/inful/docgen/internal/decider"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Request asks for one media artifact accompanying a document. Exactly one
// of Source and Content is set: Source points at an on-disk file, Content
// carries inline bytes that get materialized into the media cache first.
type Request struct {
	Doc     paths.SourcePath
	Source  paths.SourcePath
	Content []byte
	// Name is the stem hint for inline content.
	Name string
	// Ext is the source format of inline content, e.g. ".tex".
	Ext   string
	Attrs attrs.List
}

// resolveSource turns a request into a buildable source file. Inline
// content is materialized; on-disk sources must exist.
func (r Request) resolveSource(e *env.Env) (paths.SourcePath, error) {
	if r.Content != nil {
		return MaterializeInline(e, r.Name, r.Ext, r.Content)
	}
	if r.Source.IsZero() {
		return paths.SourcePath{}, fmt.Errorf("media request carries neither source nor content")
	}
	if _, err := os.Stat(r.Source.Abs()); err != nil {
		if os.IsNotExist(err) {
			return paths.SourcePath{}, &builder.MissingInputError{Path: r.Source.Abs()}
		}
		return paths.SourcePath{}, fmt.Errorf("stat media source: %w", err)
	}
	return r.Source, nil
}

// MaterializeInline places inline content in the media cache under a
// content-hash-stamped name, so identical content across documents and
// sessions shares one source file. The file is written once; later calls
// with the same content find it already present.
func MaterializeInline(e *env.Env, name, ext string, content []byte) (paths.SourcePath, error) {
	if name == "" {
		name = "inline"
	}
	ext = paths.NormExt(ext)
	if ext == "" {
		return paths.SourcePath{}, fmt.Errorf("inline content needs a source format")
	}

	stamp := decider.HashBytes(content)[:12]
	src := paths.NewSource(e.MediaRoot(), path.Join("inline", name+"_"+stamp+ext))

	if _, err := os.Stat(src.Abs()); err == nil {
		return src, nil
	}
	if err := env.EnsureDir(filepath.Dir(src.Abs())); err != nil {
		return paths.SourcePath{}, err
	}
	if err := os.WriteFile(src.Abs(), content, 0o644); err != nil {
		return paths.SourcePath{}, fmt.Errorf("write inline content: %w", err)
	}
	return src, nil
}

// mediaSub maps a media source onto the target tree: sources under the
// source dir keep their relative location, inline and other out-of-tree
// sources land under a media/ subtree named by their file name.
func mediaSub(sourceRoot string, src paths.SourcePath) string {
	if src.ProjectRoot == sourceRoot {
		return src.Sub()
	}
	return path.Join("media", path.Base(src.Sub()))
}
