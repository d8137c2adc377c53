package persist

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// StoreError wraps errors with backend context
type StoreError struct {
	Backend   string // e.g. "postgres"
	Operation string // "load", "save" or "connect"
	Err       error
	Retryable bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store %s failed: %v", e.Backend, e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// newStoreError creates a StoreError with retryable detection
func newStoreError(backend, operation string, err error) *StoreError {
	return &StoreError{
		Backend:   backend,
		Operation: operation,
		Err:       err,
		Retryable: isRetryableError(err),
	}
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// Check for common transient error messages
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"deadline exceeded",
		"database is locked",
		"too many connections",
		"try again",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
