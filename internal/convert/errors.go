package convert

import (
	"fmt"
	"strings"
)

// NoConverterError reports that no registered converter links the source
// format to any of the requested target formats.
type NoConverterError struct {
	Source  string
	Targets []string
}

func (e *NoConverterError) Error() string {
	return fmt.Sprintf("no converter from %s to any of [%s]",
		e.Source, strings.Join(e.Targets, ", "))
}

// MissingExecutableError reports that converters exist for the request but
// none of their required tools resolve on this host.
type MissingExecutableError struct {
	Execs []string
}

func (e *MissingExecutableError) Error() string {
	return fmt.Sprintf("required executables not found: %s",
		strings.Join(e.Execs, ", "))
}
