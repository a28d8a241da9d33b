// Package workspace manages scratch directories for builds, supporting both
// ephemeral (timestamped) and persistent (fixed-path) modes.
//
// Ephemeral mode creates timestamped session directories (e.g.,
// docgen-20251214-122336) that hold the per-builder scratch subdirectories
// and are removed after the session.
//
// Persistent mode uses a fixed directory path that survives Cleanup, for
// callers that want to inspect intermediate artifacts across runs.
package workspace
