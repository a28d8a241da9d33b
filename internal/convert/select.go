package convert

import (
	"slices"

	"git.home.luguber.info/inful/docgen/internal/attrs"
	"git.home.luguber.info/inful/docgen/internal/builder"
	"git.home.luguber.info/inful/docgen/internal/env"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// copyDescriptor serves same-format requests. It needs no external tool,
// so it is always available.
var copyDescriptor = Descriptor{
	Name: "copy",
	New: func(e *env.Env, _ string, inputs []paths.Path, output paths.TargetPath, params attrs.List) builder.Builder {
		return builder.NewCopy(e, inputs, output, params)
	},
}

// Selection is a resolved converter choice: which descriptor won and which
// target format it will produce.
type Selection struct {
	Descriptor Descriptor
	Format     string
}

// Select picks a converter for source against the preference-ordered
// target formats. The caller's format preference always beats converter
// order: once an earlier-preferred format has an available converter,
// later formats are never considered. Within one format the lowest order
// wins, ties broken by registration order.
func (r *Registry) Select(e *env.Env, source paths.Path, targets []string) (Selection, error) {
	norm := make([]string, len(targets))
	for i, t := range targets {
		norm[i] = paths.NormExt(t)
	}

	srcFormat := source.Ext()
	if srcFormat == "" {
		return Selection{}, &NoConverterError{Source: source.Abs(), Targets: norm}
	}

	perFormat := make([][]Descriptor, len(norm))
	total := 0
	for i, tf := range norm {
		if tf == srcFormat {
			perFormat[i] = []Descriptor{copyDescriptor}
			total++
			continue
		}
		for _, d := range r.descriptors {
			if d.convertsFrom(srcFormat) && d.convertsTo(tf) {
				perFormat[i] = append(perFormat[i], d)
				total++
			}
		}
	}
	if total == 0 {
		return Selection{}, &NoConverterError{Source: source.Abs(), Targets: norm}
	}

	var missingExecs []string
	for i, tf := range norm {
		var best *Descriptor
		for j := range perFormat[i] {
			d := &perFormat[i][j]
			if !available(e, *d) {
				for _, exec := range d.RequiredExecs {
					if !slices.Contains(missingExecs, exec) {
						missingExecs = append(missingExecs, exec)
					}
				}
				continue
			}
			if best == nil || d.Order < best.Order {
				best = d
			}
		}
		if best != nil {
			return Selection{Descriptor: *best, Format: tf}, nil
		}
	}
	return Selection{}, &MissingExecutableError{Execs: missingExecs}
}

func available(e *env.Env, d Descriptor) bool {
	for _, exec := range d.RequiredExecs {
		if _, err := e.FindExecutable(exec); err != nil {
			return false
		}
	}
	return true
}
