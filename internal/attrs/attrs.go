// Package attrs models the attribute lists that accompany dependency
// requests ("width=80% tex.scale=2 crop"). An attribute is either a
// key-value pair or a bare positional flag; the two cases are an explicit
// tagged variant, and every consumer switches over Kind exhaustively.
//
// Keys may carry a target prefix: tex.width applies only when building the
// tex target, where it surfaces as width and shadows a generic width.
package attrs

import (
	"fmt"
	"strings"
)

// Kind discriminates the attribute variants.
type Kind int

const (
	KindKeyValue Kind = iota
	KindPositional
)

// Attribute is one entry of an attribute list. Name is empty exactly when
// Kind is KindPositional.
type Attribute struct {
	Kind  Kind
	Name  string
	Value string
}

// KeyValue constructs a key-value attribute.
func KeyValue(name, value string) Attribute {
	return Attribute{Kind: KindKeyValue, Name: name, Value: value}
}

// Positional constructs a bare flag attribute.
func Positional(value string) Attribute {
	return Attribute{Kind: KindPositional, Value: value}
}

func (a Attribute) String() string {
	switch a.Kind {
	case KindKeyValue:
		return a.Name + "=" + a.Value
	case KindPositional:
		return a.Value
	default:
		panic(fmt.Sprintf("unknown attribute kind %d", a.Kind))
	}
}

// List is an ordered attribute collection. Order is preserved through
// parsing and filtering because it can matter to tools.
type List []Attribute

// Parse splits a whitespace-separated attribute string. Tokens containing
// '=' become key-value attributes, the rest positional flags.
func Parse(s string) List {
	var list List
	for _, tok := range strings.Fields(s) {
		if name, value, ok := strings.Cut(tok, "="); ok && name != "" {
			list = append(list, KeyValue(name, value))
			continue
		}
		list = append(list, Positional(tok))
	}
	return list
}

// Get returns the value of the first key-value attribute with the given
// name.
func (l List) Get(name string) (string, bool) {
	for _, a := range l {
		switch a.Kind {
		case KindKeyValue:
			if a.Name == name {
				return a.Value, true
			}
		case KindPositional:
		}
	}
	return "", false
}

// Has reports whether a positional flag with the given value is present.
func (l List) Has(value string) bool {
	for _, a := range l {
		switch a.Kind {
		case KindKeyValue:
		case KindPositional:
			if a.Value == value {
				return true
			}
		}
	}
	return false
}

// Filter resolves target scoping for one target. Attributes prefixed with
// this target keep their position with the prefix stripped; attributes
// prefixed with a different known target are dropped; a generic key is
// dropped when a target-specific one shadows it. Dotted keys whose prefix is
// not a known target pass through untouched.
func (l List) Filter(target string, knownTargets []string) List {
	target = strings.TrimPrefix(target, ".")
	known := make(map[string]bool, len(knownTargets))
	for _, t := range knownTargets {
		known[strings.TrimPrefix(t, ".")] = true
	}
	known[target] = true

	shadowed := make(map[string]bool)
	for _, a := range l {
		if a.Kind != KindKeyValue {
			continue
		}
		if prefix, rest, ok := strings.Cut(a.Name, "."); ok && prefix == target {
			shadowed[rest] = true
		}
	}

	var out List
	for _, a := range l {
		switch a.Kind {
		case KindPositional:
			out = append(out, a)
		case KindKeyValue:
			prefix, rest, ok := strings.Cut(a.Name, ".")
			if !ok {
				if !shadowed[a.Name] {
					out = append(out, a)
				}
				continue
			}
			switch {
			case prefix == target:
				out = append(out, KeyValue(rest, a.Value))
			case known[prefix]:
				// Scoped to another target.
			default:
				out = append(out, a)
			}
		}
	}
	return out
}

// String renders the list back into its parseable form.
func (l List) String() string {
	parts := make([]string, 0, len(l))
	for _, a := range l {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}
