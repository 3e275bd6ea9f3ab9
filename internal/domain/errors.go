package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotReady is returned while no event store snapshot has been published yet.
var ErrNotReady = errors.New("event store not loaded")

// IngestionKind classifies an IngestionError.
type IngestionKind string

const (
	IngestUnreadable     IngestionKind = "unreadable"
	IngestNoValidRows    IngestionKind = "no_valid_rows"
	IngestSchemaMismatch IngestionKind = "schema_mismatch"
)

// IngestionError reports a dataset that could not become a store snapshot.
type IngestionError struct {
	Kind   IngestionKind
	Source string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest %s: %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("ingest %s: %s", e.Source, e.Kind)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// ValidationError reports a malformed query parameter. It is never retryable.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ComputationTimeoutError reports a projection that exceeded its time budget.
// No partial result accompanies it.
type ComputationTimeoutError struct {
	Budget time.Duration
}

func (e *ComputationTimeoutError) Error() string {
	return fmt.Sprintf("projection did not complete within %s", e.Budget)
}

// Is lets callers match the timeout with context.DeadlineExceeded.
func (e *ComputationTimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// Retryable reports whether the failure is transient, i.e. repeating the same
// request may succeed.
func Retryable(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var te *ComputationTimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrNotReady)
}
