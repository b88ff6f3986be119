package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/daystreak/internal/logger"
)

var (
	// ErrNotFound is returned when a document is absent from the store
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by conditional creates when the document is present
	ErrAlreadyExists = errors.New("already exists")
	// ErrDecode is returned when a stored document cannot be decoded
	ErrDecode = errors.New("malformed document")
	// ErrStoreWrite is returned when a set, merge, increment or delete fails
	ErrStoreWrite = errors.New("store write failed")
	// ErrValidation is returned when input is rejected before any I/O
	ErrValidation = errors.New("validation failed")
)

// NotFound wraps ErrNotFound with the missing path
func NotFound(path string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Decode wraps ErrDecode with the offending path and cause
func Decode(path string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrDecode, path, cause)
}

// StoreWrite wraps ErrStoreWrite with the operation, path and cause.
// A cause that is already a store write error is returned unchanged.
func StoreWrite(op, path string, cause error) error {
	if errors.Is(cause, ErrStoreWrite) {
		return cause
	}
	return fmt.Errorf("%w: %s %s: %w", ErrStoreWrite, op, path, cause)
}

// Validation wraps ErrValidation with a formatted reason
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text
func New(text string) error {
	return errors.New(text)
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
