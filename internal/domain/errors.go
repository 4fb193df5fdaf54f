package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrMalformedTimestamp       = errors.New("malformed timestamp")
	ErrMissingField             = errors.New("missing required field")
	ErrInvalidBodyShape         = errors.New("invalid request body format")
	ErrInvalidPageEntry         = errors.New("invalid page entry")
	ErrInvalidCount             = errors.New("invalid count")
	ErrAggregationFailure       = errors.New("aggregation failure")
	ErrPartialFailure           = errors.New("batch partially applied")
	ErrDistributorUnavailable   = errors.New("distributor unavailable")
	ErrConflictRetriesExhausted = errors.New("conflict retries exhausted")
	ErrCounterOverflow          = errors.New("counter overflow")
)

// ValidationError describes a rejected payload. Kind is one of the validation sentinels above.
type ValidationError struct {
	Kind      error
	Page      string
	Timestamp string
	Fields    []string
	Expected  string
	Err       error
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrMissingField):
		return fmt.Sprintf("Missing required fields: %v", e.Fields)
	case errors.Is(e.Kind, ErrInvalidPageEntry):
		return fmt.Sprintf("Invalid timestamp data for page: %s", e.Page)
	case errors.Is(e.Kind, ErrInvalidCount):
		if e.Page == "" {
			return "Invalid count"
		}
		return fmt.Sprintf("Invalid count for page %s at timestamp %s", e.Page, e.Timestamp)
	case errors.Is(e.Kind, ErrMalformedTimestamp):
		if e.Page == "" {
			return fmt.Sprintf("Malformed timestamp %q", e.Timestamp)
		}
		return fmt.Sprintf("Malformed timestamp %q for page %s", e.Timestamp, e.Page)
	}
	if e.Err != nil {
		return fmt.Sprintf("Invalid request body format: %v", e.Err)
	}
	return "Invalid request body format"
}

func (e *ValidationError) Is(target error) bool { return target == e.Kind }

func (e *ValidationError) Unwrap() error { return e.Err }

// AggregationError reports a failed upsert for one (page, bucket) key.
type AggregationError struct {
	Page   string
	Bucket HourBucket
	Err    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("increment %s@%s: %v", e.Page, e.Bucket.Key(), e.Err)
}

func (e *AggregationError) Is(target error) bool { return target == ErrAggregationFailure }

func (e *AggregationError) Unwrap() error { return e.Err }

// PartialFailureError reports a batch where some increments failed after others were applied.
// Applied increments are not rolled back.
type PartialFailureError struct {
	Applied int
	Failed  int
	Updates []PageHourCounter
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("batch not atomic: %d applied, %d failed: %v", e.Applied, e.Failed, e.Err)
}

func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure || target == ErrAggregationFailure
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
