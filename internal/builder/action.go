package builder

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docgen/internal/paths"
)

// ResolveAction expands an action template into argv. The template is
// tokenized on whitespace first and placeholders are substituted per token,
// so a path that contains spaces or leads with a dash stays one argument.
// No shell is ever involved.
//
// Placeholders:
//
//	{in}     all input paths; as a standalone token it expands to one argv
//	         entry per input, embedded it takes the first input
//	{out}    the output path
//	{outdir} the directory holding the output
func ResolveAction(tmpl string, inputs []paths.Path, output paths.TargetPath) []string {
	var argv []string
	for _, tok := range strings.Fields(tmpl) {
		if tok == "{in}" {
			for _, in := range inputs {
				argv = append(argv, in.Abs())
			}
			continue
		}
		argv = append(argv, expandToken(tok, inputs, output))
	}
	return argv
}

func expandToken(tok string, inputs []paths.Path, output paths.TargetPath) string {
	if strings.Contains(tok, "{in}") {
		first := ""
		if len(inputs) > 0 {
			first = inputs[0].Abs()
		}
		tok = strings.ReplaceAll(tok, "{in}", first)
	}
	if strings.Contains(tok, "{out}") {
		tok = strings.ReplaceAll(tok, "{out}", output.Abs())
	}
	if strings.Contains(tok, "{outdir}") {
		tok = strings.ReplaceAll(tok, "{outdir}", filepath.Dir(output.Abs()))
	}
	return tok
}

// ActionString renders argv into the canonical single-string form used for
// fingerprinting and error reporting.
func ActionString(argv []string) string {
	return strings.Join(argv, " ")
}
