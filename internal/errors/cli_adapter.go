package errors

import (
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if dge, ok := err.(*DocGenError); ok {
		return a.exitCodeFromDocGen(dge)
	}

	return 1
}

// exitCodeFromDocGen maps DocGenError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromDocGen(err *DocGenError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryInput:
		return 3 // Missing or unreadable input
	case CategoryConvert:
		return 4 // No usable converter
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryTool:
		return 9 // External tool failure
	case CategoryBuild, CategoryFileSystem:
		return 11 // Build error
	case CategoryRuntime, CategoryEvents:
		return 12 // Runtime error
	case CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if dge, ok := err.(*DocGenError); ok {
		return a.formatDocGen(dge)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatDocGen formats a DocGenError for display.
func (a *CLIErrorAdapter) formatDocGen(err *DocGenError) string {
	if a.verbose {
		return err.Error()
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation, CategoryInput:
		return err.Message
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if dge, ok := err.(*DocGenError); ok {
		return dge.Category == CategoryInternal ||
			dge.Category == CategoryRuntime ||
			dge.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if dge, ok := err.(*DocGenError); ok {
		level := a.slogLevelFromDocGenSeverity(dge.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(dge.Category)),
		}
		if dge.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}

		a.logger.LogAttrs(nil, level, dge.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

// slogLevelFromDocGenSeverity converts DocGenError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromDocGenSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
