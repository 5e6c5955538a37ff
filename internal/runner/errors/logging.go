package errors

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// LogCriticalToStderr logs a fatal error to stderr regardless of the
// configured log level, matching the "single human-readable message" policy
// for fatal errors.
func LogCriticalToStderr(phase, message string, err error) {
	timestamp := time.Now().Format("2006-01-02T15:04:05Z07:00")
	fmt.Fprintf(os.Stderr, "[%s] FATAL: %s - phase: %s, error: %v\n", timestamp, message, phase, err)
}

// LogClassifiedError logs a ClassifiedError through slog at a level matching
// its severity, additionally echoing critical errors to stderr.
func LogClassifiedError(classifiedErr *ClassifiedError) {
	switch classifiedErr.Severity {
	case ErrorSeverityCritical:
		LogCriticalToStderr(classifiedErr.Phase, classifiedErr.Message, classifiedErr.Cause)
		slog.Error("fatal error",
			"error_type", classifiedErr.Type.String(),
			"message", classifiedErr.Message,
			"phase", classifiedErr.Phase,
			"cause", classifiedErr.Cause)
	case ErrorSeverityWarning:
		slog.Warn("warning",
			"error_type", classifiedErr.Type.String(),
			"message", classifiedErr.Message,
			"phase", classifiedErr.Phase,
			"cause", classifiedErr.Cause)
	case ErrorSeverityInfo:
		slog.Info("info",
			"error_type", classifiedErr.Type.String(),
			"message", classifiedErr.Message,
			"phase", classifiedErr.Phase,
			"cause", classifiedErr.Cause)
	}
}
