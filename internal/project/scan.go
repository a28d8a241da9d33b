package project

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// documentExts are the source kinds a render session picks up.
var documentExts = map[string]bool{
	".md":  true,
	".tex": true,
}

// ScanDocuments walks the source tree for renderable documents. Hidden
// directories are skipped. The result is sorted by subpath so sessions
// process documents in a stable order.
func ScanDocuments(sourceDir string) ([]paths.SourcePath, error) {
	root, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, err
	}

	var docs []paths.SourcePath
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !documentExts[paths.NormExt(filepath.Ext(d.Name()))] {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		docs = append(docs, paths.NewSource(root, rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Sub() < docs[j].Sub() })
	return docs, nil
}

// MediaRef is one media dependency a document body references.
type MediaRef struct {
	// Dest is the reference destination as written, relative to the
	// referencing document.
	Dest string
	// Attrs are build attributes parsed from the reference title text,
	// e.g. ![diagram](fig.pdf "width=80% tex.scale=2").
	Attrs attrs.List
}

// linkMediaExts are the extensions that make a plain link a media
// dependency. Image references count regardless of extension; links to
// other documents must not.
var linkMediaExts = map[string]bool{
	".pdf": true, ".svg": true, ".png": true, ".jpg": true,
	".jpeg": true, ".gif": true, ".asy": true,
}

// ExtractMediaRefs walks a markdown body for references to local media:
// every image, plus links whose destination has a media extension. Remote
// URLs, absolute paths and fragments are not build dependencies. A
// destination referenced more than once contributes a single ref; the
// first reference's attributes win.
func ExtractMediaRefs(body []byte) []MediaRef {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(body))

	var refs []MediaRef
	seen := make(map[string]bool)
	add := func(dest, title string) {
		if !localMediaRef(dest) || seen[dest] {
			return
		}
		seen[dest] = true
		refs = append(refs, MediaRef{Dest: dest, Attrs: attrs.Parse(title)})
	}

	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Image:
			add(string(node.Destination), string(node.Title))
		case *gmast.Link:
			dest := string(node.Destination)
			if linkMediaExts[paths.NormExt(path.Ext(dest))] {
				add(dest, string(node.Title))
			}
		}
		return gmast.WalkContinue, nil
	})
	return refs
}

func localMediaRef(dest string) bool {
	switch {
	case dest == "":
		return false
	case strings.Contains(dest, "://"):
		return false
	case strings.HasPrefix(dest, "/"), strings.HasPrefix(dest, "#"):
		return false
	}
	return true
}
