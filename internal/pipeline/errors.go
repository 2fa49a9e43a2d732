// Package pipeline holds the error taxonomy shared by the collection
// pipeline. Errors are always isolated to their unit of work (one
// station, one forecast pair, one subscription); only a failed
// checkpoint write is fatal to a run.
package pipeline

import (
	"errors"
	"fmt"
)

// TransientFetchError marks a provider failure that is worth retrying:
// network errors, timeouts, 5xx responses, an open circuit breaker.
type TransientFetchError struct {
	Source string
	Err    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure from %s: %v", e.Source, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ValidationError marks a malformed payload or an out-of-range value.
// The unit of work is skipped and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// StoreWriteError marks a persistence failure. Retried a bounded number
// of times; if it still fails the whole run aborts without a checkpoint
// so the hour is retried wholesale next cycle.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write failed (%s): %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// NotificationDeliveryError marks a failed alert delivery. Recorded per
// subscription, never blocks other subscriptions.
type NotificationDeliveryError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("notification delivery failed (channel=%s): %v", e.Channel, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStoreWrite reports whether err is a persistence failure.
func IsStoreWrite(err error) bool {
	var se *StoreWriteError
	return errors.As(err, &se)
}
