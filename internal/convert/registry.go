// Package convert holds the converter registry and the selection logic
// that turns "I have a .pdf and want one of [.svg, .png]" into a concrete
// builder. The registry is populated explicitly at startup and read-only
// afterwards, so selection never takes a lock.
package convert

import (
	"fmt"
	"slices"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/builder"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Factory instantiates a converter's builder. outExt is the format the
// selection settled on; converters with a fixed product format ignore it.
type Factory func(e *env.Env, outExt string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder

// Descriptor is one registered converter family.
type Descriptor struct {
	Name          string
	FromFormats   []string
	ToFormats     []string
	Order         int
	RequiredExecs []string
	New           Factory
}

func (d Descriptor) convertsFrom(format string) bool {
	return slices.Contains(d.FromFormats, format)
}

func (d Descriptor) convertsTo(format string) bool {
	return slices.Contains(d.ToFormats, format)
}

// Registry maps format pairs to converter descriptors. Registration order
// is preserved and breaks order ties during selection.
type Registry struct {
	descriptors []Descriptor
	names       map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a descriptor. Names must be unique and formats are
// normalized to lowercase dotted extensions.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("converter has no name")
	}
	if _, dup := r.names[d.Name]; dup {
		return fmt.Errorf("converter %q registered twice", d.Name)
	}
	if d.New == nil {
		return fmt.Errorf("converter %q has no factory", d.Name)
	}
	if len(d.FromFormats) == 0 || len(d.ToFormats) == 0 {
		return fmt.Errorf("converter %q must declare source and product formats", d.Name)
	}
	for i, f := range d.FromFormats {
		d.FromFormats[i] = paths.NormExt(f)
	}
	for i, f := range d.ToFormats {
		d.ToFormats[i] = paths.NormExt(f)
	}
	r.names[d.Name] = struct{}{}
	r.descriptors = append(r.descriptors, d)
	return nil
}

// MustRegister panics on registration errors. Meant for the static startup
// table, where a bad descriptor is a programming error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Descriptors returns the registration-ordered table.
func (r *Registry) Descriptors() []Descriptor {
	return slices.Clone(r.descriptors)
}

// Default builds the standard converter table.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(Descriptor{
		Name:          "pdf2svg",
		FromFormats:   []string{".pdf"},
		ToFormats:     []string{".svg"},
		Order:         100,
		RequiredExecs: []string{"pdf2svg"},
		New: func(e *env.Env, _ string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
			return builder.NewPdf2SvgCropScale(e, inputs, output, params)
		},
	})
	r.MustRegister(Descriptor{
		Name:          "svg2pdf",
		FromFormats:   []string{".svg"},
		ToFormats:     []string{".pdf"},
		Order:         200,
		RequiredExecs: []string{"rsvg-convert"},
		New: func(e *env.Env, _ string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
			return builder.NewSvg2Pdf(e, inputs, output, params)
		},
	})
	r.MustRegister(Descriptor{
		Name:          "svg2png",
		FromFormats:   []string{".svg"},
		ToFormats:     []string{".png"},
		Order:         210,
		RequiredExecs: []string{"rsvg-convert"},
		New: func(e *env.Env, _ string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
			return builder.NewSvg2Png(e, inputs, output, params)
		},
	})
	r.MustRegister(Descriptor{
		Name:          "pdflatex",
		FromFormats:   []string{".tex"},
		ToFormats:     []string{".pdf"},
		Order:         300,
		RequiredExecs: []string{"pdflatex"},
		New: func(e *env.Env, _ string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
			return builder.NewLatex(e, inputs, output, params)
		},
	})
	r.MustRegister(Descriptor{
		Name:          "tex2svg",
		FromFormats:   []string{".tex"},
		ToFormats:     []string{".svg"},
		Order:         350,
		RequiredExecs: []string{"pdflatex", "pdf2svg"},
		New: func(e *env.Env, _ string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
			return builder.NewTex2Svg(e, inputs, output, params)
		},
	})
	r.MustRegister(Descriptor{
		Name:          "asy2pdf",
		FromFormats:   []string{".asy"},
		ToFormats:     []string{".pdf"},
		Order:         400,
		RequiredExecs: []string{"asy"},
		New: func(e *env.Env, _ string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
			return builder.NewAsy2Pdf(e, inputs, output, params)
		},
	})
	r.MustRegister(Descriptor{
		Name:          "asy2svg",
		FromFormats:   []string{".asy"},
		ToFormats:     []string{".svg"},
		Order:         410,
		RequiredExecs: []string{"asy"},
		New: func(e *env.Env, _ string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
			return builder.NewAsy2Svg(e, inputs, output, params)
		},
	})
	r.MustRegister(Descriptor{
		Name:          "imgconvert",
		FromFormats:   []string{".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff"},
		ToFormats:     []string{".png", ".jpg", ".jpeg", ".gif"},
		Order:         900,
		RequiredExecs: []string{"convert"},
		New: func(e *env.Env, outExt string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
			return builder.NewImgConvert(e, outExt, inputs, output, params)
		},
	})
	return r
}
