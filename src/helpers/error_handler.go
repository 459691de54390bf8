package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-relay/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type RelayError struct {
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As
type ConfigurationError struct{ RelayError }
type TransportError struct{ RelayError }
type NetworkError struct{ RelayError }
type DecodeError struct{ RelayError }
type FetchError struct{ RelayError }
type CacheError struct{ RelayError }
type DatabaseError struct{ RelayError }

func NewConfigurationError(msg string, cause error) *ConfigurationError {
	return &ConfigurationError{RelayError{Message: msg, Cause: cause}}
}

func NewTransportError(msg string, cause error) *TransportError {
	return &TransportError{RelayError{Message: msg, Cause: cause}}
}

func NewNetworkError(msg string, cause error) *NetworkError {
	return &NetworkError{RelayError{Message: msg, Cause: cause}}
}

func NewDecodeError(msg string, cause error) *DecodeError {
	return &DecodeError{RelayError{Message: msg, Cause: cause}}
}

func NewFetchError(msg string, cause error) *FetchError {
	return &FetchError{RelayError{Message: msg, Cause: cause}}
}

func NewCacheError(msg string, cause error) *CacheError {
	return &CacheError{RelayError{Message: msg, Cause: cause}}
}

func NewDatabaseError(msg string, cause error) *DatabaseError {
	return &DatabaseError{RelayError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Sentinels
// -----------------------------------------------------------------------------

var (
	// ErrKeyNotFound is returned by key-value stores for a missing key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrFeedClosed is returned when connecting a feed that was already closed.
	ErrFeedClosed = errors.New("feed closed")
)

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

var retryLog = logger.NewLogger("Retry")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. RetryWithBackoff returns the
// wrapped error without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithBackoff runs fn up to maxRetries times, sleeping baseDelay*2^attempt
// between failures. It stops early when ctx is done or fn returns a Permanent
// error.
func RetryWithBackoff[T any](ctx context.Context, operation string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if maxRetries <= 0 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		retryLog.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
