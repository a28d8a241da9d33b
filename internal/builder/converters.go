package builder

import (
	"fmt"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// hasParam reports whether the param is present, as a key=value pair or
// as a bare positional flag.
func hasParam(params attrs.List, name string) bool {
	if _, ok := params.Get(name); ok {
		return true
	}
	return params.Has(name)
}

// intParam returns the first of the named params that parses as an int.
func intParam(params attrs.List, names ...string) (int, bool) {
	for _, name := range names {
		if v, ok := params.Get(name); ok {
			if n, err := strconv.Atoi(strings.TrimSuffix(v, "%")); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// NewPdf2Svg converts a single PDF page to SVG. A page or page_no param
// selects the page, appended as its own argument.
func NewPdf2Svg(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {
	b := NewExec(e, "pdf2svg", "pdf2svg {in} {out}",
		[]string{"pdf2svg"}, ".svg", inputs, output, params)
	if page, ok := intParam(params, "page", "page_no"); ok {
		b.WithExtraArgs(strconv.Itoa(page))
	}
	return b
}

// NewPdfCrop tightens a PDF's bounding box. A crop or crop_percentage
// param with a numeric value shrinks the margins by that many points.
func NewPdfCrop(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {
	template := "pdfcrop {in} {out}"
	if n, ok := intParam(params, "crop", "crop_percentage"); ok && n > 0 {
		template = fmt.Sprintf("pdfcrop --margins -%d {in} {out}", n)
	}
	b := NewExec(e, "pdfcrop", template,
		[]string{"pdfcrop"}, ".pdf", inputs, output, params)
	b.WithOutSuffix("_crop")
	return b
}

// NewScaleSvg rescales an SVG by the scale param. The param is required
// and must be numeric; a bad value fails the builder at construction.
func NewScaleSvg(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {
	raw, _ := params.Get("scale")
	scale, err := strconv.ParseFloat(raw, 64)

	template := fmt.Sprintf("rsvg-convert --format=svg --zoom=%g --output={out} {in}", scale)
	b := NewExec(e, "scalesvg", template,
		[]string{"rsvg-convert"}, ".svg", inputs, output, params)
	b.WithOutSuffix("_scale")
	if err != nil || scale <= 0 {
		b.fail(fmt.Errorf("scalesvg: invalid scale value %q", raw))
	}
	return b
}

// NewSvg2Pdf renders an SVG to PDF.
func NewSvg2Pdf(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {
	return NewExec(e, "svg2pdf", "rsvg-convert --format=pdf --output={out} {in}",
		[]string{"rsvg-convert"}, ".pdf", inputs, output, params)
}

// NewSvg2Png rasterizes an SVG to PNG. A width param sets the pixel width.
func NewSvg2Png(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {
	template := "rsvg-convert --format=png --output={out} {in}"
	if w, ok := intParam(params, "width"); ok && w > 0 {
		template = fmt.Sprintf("rsvg-convert --format=png --width=%d --output={out} {in}", w)
	}
	return NewExec(e, "svg2png", template,
		[]string{"rsvg-convert"}, ".png", inputs, output, params)
}

// NewAsy2Pdf renders an Asymptote figure to PDF.
func NewAsy2Pdf(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {
	return NewExec(e, "asy2pdf", "asy -f pdf -o {out} {in}",
		[]string{"asy"}, ".pdf", inputs, output, params)
}

// NewAsy2Svg renders an Asymptote figure to SVG.
func NewAsy2Svg(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {
	return NewExec(e, "asy2svg", "asy -f svg -o {out} {in}",
		[]string{"asy"}, ".svg", inputs, output, params)
}

// NewImgConvert is the raster fallback built on ImageMagick. outExt picks
// the product format; a width param resizes while keeping aspect ratio.
func NewImgConvert(e *env.Env, outExt string, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Exec {
	template := "convert {in} {out}"
	if w, ok := intParam(params, "width"); ok && w > 0 {
		template = fmt.Sprintf("convert {in} -resize %dx {out}", w)
	}
	return NewExec(e, "imgconvert", template,
		[]string{"convert"}, paths.NormExt(outExt), inputs, output, params)
}

// NewPdf2SvgCropScale is the standard PDF to SVG chain: an optional crop
// stage, the pdf2svg conversion, an optional scale stage and the terminal
// copy added by the sequential composite.
func NewPdf2SvgCropScale(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Sequential {
	var subs []Builder
	if hasParam(params, "crop") || hasParam(params, "crop_percentage") {
		subs = append(subs, NewPdfCrop(e, nil, paths.TargetPath{}, params))
	}
	subs = append(subs, NewPdf2Svg(e, nil, paths.TargetPath{}, params))
	if _, ok := params.Get("scale"); ok {
		subs = append(subs, NewScaleSvg(e, nil, paths.TargetPath{}, params))
	}
	return NewSequential(e, "pdf2svgcropscale", subs, inputs, output, params)
}

// NewTex2Svg compiles a LaTeX snippet and converts the page to SVG,
// honoring crop and scale params on the conversion half.
func NewTex2Svg(e *env.Env, inputs []paths.Path, output paths.TargetPath, params attrs.List) *Sequential {
	subs := []Builder{
		NewLatex(e, nil, paths.TargetPath{}, params),
		NewPdf2SvgCropScale(e, nil, paths.TargetPath{}, params),
	}
	return NewSequential(e, "tex2svg", subs, inputs, output, params)
}
