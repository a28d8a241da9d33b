package builder

import (
	"fmt"
	"strings"
)

// ToolError is the terminal error of a builder whose external tool exited
// nonzero. It keeps everything needed to reproduce the failure by hand.
// Builders never retry on a ToolError.
type ToolError struct {
	Cmd        string
	ReturnCode int
	Stdout     string
	Stderr     string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("command %q exited %d", e.Cmd, e.ReturnCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return msg + ": " + s
	}
	if s := strings.TrimSpace(e.Stdout); s != "" {
		return msg + ": " + s
	}
	return msg
}

// MissingInputError reports a dependency request whose source file does not
// exist. Raised at the document boundary before any builder is constructed.
type MissingInputError struct {
	Path string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("input file not found: %s", e.Path)
}

// OutputMissingError reports a tool that exited zero without producing its
// declared output.
type OutputMissingError struct {
	Builder string
	Path    string
}

func (e *OutputMissingError) Error() string {
	return fmt.Sprintf("%s exited cleanly but produced no output at %s", e.Builder, e.Path)
}
