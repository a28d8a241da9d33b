package builder

import "fmt"

// StatusKind enumerates the builder lifecycle states.
type StatusKind int

const (
	KindMissing StatusKind = iota
	KindReady
	KindBuilding
	KindDone
	KindError
)

func (k StatusKind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindReady:
		return "ready"
	case KindBuilding:
		return "building"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// Status is one observation of a builder's state. Missing and error carry a
// detail: what is missing, or what went wrong. Control flow takes a Status
// once and decides on that snapshot rather than re-polling.
type Status struct {
	Kind   StatusKind
	Detail string
}

func Missing(detail string) Status { return Status{Kind: KindMissing, Detail: detail} }
func Ready() Status                { return Status{Kind: KindReady} }
func Building() Status             { return Status{Kind: KindBuilding} }
func Done() Status                 { return Status{Kind: KindDone} }

// ErrorStatus wraps a terminal failure.
func ErrorStatus(err error) Status {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return Status{Kind: KindError, Detail: detail}
}

// String renders the canonical form: "ready", "missing (infilepaths)",
// "error (pdf2svg exited 1)".
func (s Status) String() string {
	if s.Detail != "" && (s.Kind == KindMissing || s.Kind == KindError) {
		return fmt.Sprintf("%s (%s)", s.Kind, s.Detail)
	}
	return s.Kind.String()
}

// Done reports whether the builder has nothing left to do.
func (s Status) Done() bool { return s.Kind == KindDone }

// Terminal reports whether the state can no longer change for this
// instance.
func (s Status) Terminal() bool { return s.Kind == KindDone || s.Kind == KindError }
