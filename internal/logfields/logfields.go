package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuilder    = "builder"
	KeyAction     = "action"
	KeyTool       = "tool"
	KeyTarget     = "target"
	KeyDocument   = "document"
	KeyPath       = "path"
	KeyOutput     = "output"
	KeyStatus     = "status"
	KeyReturnCode = "return_code"
	KeyDurationMS = "duration_ms"
	KeySessionID  = "session_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Builder(name string) slog.Attr    { return slog.String(KeyBuilder, name) }
func Action(a string) slog.Attr        { return slog.String(KeyAction, a) }
func Tool(t string) slog.Attr          { return slog.String(KeyTool, t) }
func Target(t string) slog.Attr        { return slog.String(KeyTarget, t) }
func Document(d string) slog.Attr      { return slog.String(KeyDocument, d) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Output(p string) slog.Attr        { return slog.String(KeyOutput, p) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func ReturnCode(rc int) slog.Attr      { return slog.Int(KeyReturnCode, rc) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func SessionID(id string) slog.Attr    { return slog.String(KeySessionID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
