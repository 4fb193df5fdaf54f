// Package validation checks ingestion payloads before any side effect happens.
// Single events are validated with go-playground/validator struct tags; batches
// are decoded in request order into a typed domain.BatchRequest.
package validation

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"pageviews/internal/domain"
)

const (
	ExpectedEvent = `{ "page": "page.html", "timestamp": "YYYY-MM-DD_HH:mm" }`
	ExpectedBatch = `{ "page.html": { "YYYY-MM-DD_HH:mm": count, ... }, ... }`
	ExpectedPage  = `{ "YYYY-MM-DD_HH:mm": count, ... }`
	ExpectedCount = "Positive number"
	ExpectedTime  = "YYYY-MM-DD_HH:mm"
)

// MaxCount caps a single entry's count. Keep in sync with the lte tag on eventPayload.Count.
const MaxCount int64 = 1_000_000

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator instance. Field names in errors are the JSON names.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

type eventPayload struct {
	Page      string `json:"page" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
	Count     *int64 `json:"count" validate:"omitempty,gte=1,lte=1000000"`
}

// DecodeEvent reads a single page view: {"page": ..., "timestamp": ..., "count"?: n}.
func DecodeEvent(body io.Reader) (domain.PageViewEvent, error) {
	var p eventPayload
	if err := json.NewDecoder(body).Decode(&p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "count" {
			return domain.PageViewEvent{}, &domain.ValidationError{Kind: domain.ErrInvalidCount, Expected: ExpectedCount, Err: err}
		}
		return domain.PageViewEvent{}, &domain.ValidationError{Kind: domain.ErrInvalidBodyShape, Expected: ExpectedEvent, Err: err}
	}

	if err := GetValidator().Struct(&p); err != nil {
		return domain.PageViewEvent{}, translate(err)
	}

	bucket, err := domain.ParseHourBucket(p.Timestamp)
	if err != nil {
		return domain.PageViewEvent{}, &domain.ValidationError{
			Kind:      domain.ErrMalformedTimestamp,
			Page:      p.Page,
			Timestamp: p.Timestamp,
			Expected:  ExpectedTime,
			Err:       err,
		}
	}

	count := int64(1)
	if p.Count != nil {
		count = *p.Count
	}
	return domain.PageViewEvent{Page: p.Page, Timestamp: p.Timestamp, Count: count, Bucket: bucket}, nil
}

func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &domain.ValidationError{Kind: domain.ErrInvalidBodyShape, Expected: ExpectedEvent, Err: err}
	}
	var missing []string
	badCount := false
	for _, fe := range fieldErrs {
		switch {
		case fe.Tag() == "required":
			missing = append(missing, fe.Field())
		case fe.Field() == "count":
			badCount = true
		}
	}
	if len(missing) > 0 {
		return &domain.ValidationError{Kind: domain.ErrMissingField, Fields: missing, Expected: ExpectedEvent}
	}
	if badCount {
		return &domain.ValidationError{Kind: domain.ErrInvalidCount, Expected: ExpectedCount}
	}
	return &domain.ValidationError{Kind: domain.ErrInvalidBodyShape, Expected: ExpectedEvent, Err: err}
}
