// Package paths defines the path role types used throughout the build
// engine. A SourcePath points into the project source tree and is never
// written to; a TargetPath points into a target build tree (or the media
// cache) and is where builders place their products. Keeping the roles as
// distinct types means a builder cannot silently write into the source tree.
package paths

import (
	"path/filepath"
	"strings"
)

// Path is the common view of both path roles: an absolute filesystem
// location plus the root-relative portion it was constructed from.
type Path interface {
	Abs() string
	Sub() string
	Ext() string
}

// SourcePath locates a read-only input under the project root.
type SourcePath struct {
	ProjectRoot string
	SubPath     string
}

// NewSource builds a SourcePath from a project root and a slash-separated
// relative subpath.
func NewSource(root, sub string) SourcePath {
	return SourcePath{ProjectRoot: root, SubPath: filepath.ToSlash(sub)}
}

func (p SourcePath) Abs() string {
	return filepath.Join(p.ProjectRoot, filepath.FromSlash(p.SubPath))
}

func (p SourcePath) Sub() string { return p.SubPath }

// Ext returns the file extension including the leading dot, lowercased.
func (p SourcePath) Ext() string { return NormExt(filepath.Ext(p.SubPath)) }

// Stem returns the base name without its extension.
func (p SourcePath) Stem() string { return Stem(p.SubPath) }

func (p SourcePath) String() string { return p.Abs() }

// IsZero reports whether the path carries no location at all.
func (p SourcePath) IsZero() bool { return p.ProjectRoot == "" && p.SubPath == "" }

// TargetPath locates a build product under a target root. Target is the
// format tag of the document target being built ("pdf", "html") or "media"
// for shared intermediate artifacts.
type TargetPath struct {
	TargetRoot string
	Target     string
	SubPath    string
}

// NewTarget builds a TargetPath from a target root, a target tag and a
// slash-separated relative subpath.
func NewTarget(root, target, sub string) TargetPath {
	return TargetPath{TargetRoot: root, Target: strings.TrimPrefix(target, "."), SubPath: filepath.ToSlash(sub)}
}

func (p TargetPath) Abs() string {
	return filepath.Join(p.TargetRoot, p.Target, filepath.FromSlash(p.SubPath))
}

func (p TargetPath) Sub() string { return p.SubPath }

func (p TargetPath) Ext() string { return NormExt(filepath.Ext(p.SubPath)) }

func (p TargetPath) Stem() string { return Stem(p.SubPath) }

func (p TargetPath) String() string { return p.Abs() }

func (p TargetPath) IsZero() bool {
	return p.TargetRoot == "" && p.Target == "" && p.SubPath == ""
}

// Dir returns the absolute directory that holds the path.
func (p TargetPath) Dir() string { return filepath.Dir(p.Abs()) }

// WithExt returns a copy whose subpath carries ext instead of the current
// extension. Ext must include the leading dot.
func (p TargetPath) WithExt(ext string) TargetPath {
	sub := strings.TrimSuffix(p.SubPath, filepath.Ext(p.SubPath)) + ext
	return TargetPath{TargetRoot: p.TargetRoot, Target: p.Target, SubPath: sub}
}

// Stem returns the final path element of sub without its extension.
func Stem(sub string) string {
	base := filepath.Base(filepath.FromSlash(sub))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NormExt lowercases an extension and guarantees the leading dot, so
// ".PDF", "pdf" and ".pdf" all compare equal. Empty stays empty.
func NormExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
