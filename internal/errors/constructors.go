package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *DocGenError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *DocGenError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Build pipeline errors

func BuildFailed(document string, cause error) *DocGenError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "document build failed").
		WithContext("document", document)
}

func WorkspaceError(operation string, cause error) *DocGenError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

func ScanError(cause error) *DocGenError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "source scan failed")
}

// Event sink errors

func EventSinkError(cause error) *DocGenError {
	return WrapRetryable(cause, CategoryEvents, SeverityWarning, "event publish failed")
}
