package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"pageviews/internal/domain"
)

// DecodeBatch reads a {page: {timestamp: count}} payload into entries kept in
// request order. The whole payload is checked before anything is returned, so a
// single bad entry rejects the batch.
func DecodeBatch(body io.Reader) (domain.BatchRequest, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return domain.BatchRequest{}, shapeError(err)
	}

	var entries []domain.BatchEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return domain.BatchRequest{}, shapeError(err)
		}
		page, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return domain.BatchRequest{}, shapeError(err)
		}
		if page == "" {
			return domain.BatchRequest{}, pageError(page)
		}

		pageEntries, err := decodePage(page, raw)
		if err != nil {
			return domain.BatchRequest{}, err
		}
		entries = append(entries, pageEntries...)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return domain.BatchRequest{}, shapeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.BatchRequest{}, shapeError(errors.New("unexpected data after body"))
	}
	if len(entries) == 0 {
		return domain.BatchRequest{}, shapeError(errors.New("batch contains no page views"))
	}
	return domain.BatchRequest{Entries: entries}, nil
}

func decodePage(page string, raw json.RawMessage) ([]domain.BatchEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, pageError(page)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return nil, pageError(page)
	}

	var entries []domain.BatchEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, pageError(page)
		}
		ts, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, pageError(page)
		}
		count, ok := positiveInt(value)
		if !ok {
			return nil, &domain.ValidationError{
				Kind:      domain.ErrInvalidCount,
				Page:      page,
				Timestamp: ts,
				Expected:  ExpectedCount,
			}
		}

		bucket, err := domain.ParseHourBucket(ts)
		if err != nil {
			return nil, &domain.ValidationError{
				Kind:      domain.ErrMalformedTimestamp,
				Page:      page,
				Timestamp: ts,
				Expected:  ExpectedTime,
				Err:       err,
			}
		}
		entries = append(entries, domain.BatchEntry{Page: page, Timestamp: ts, Bucket: bucket, Count: count})
	}
	if len(entries) == 0 {
		return nil, pageError(page)
	}
	return entries, nil
}

// positiveInt accepts integral JSON numbers in [1, MaxCount].
func positiveInt(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil || i <= 0 || i > MaxCount {
		return 0, false
	}
	return i, true
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func shapeError(err error) error {
	return &domain.ValidationError{Kind: domain.ErrInvalidBodyShape, Expected: ExpectedBatch, Err: err}
}

func pageError(page string) error {
	return &domain.ValidationError{Kind: domain.ErrInvalidPageEntry, Page: page, Expected: ExpectedPage}
}
