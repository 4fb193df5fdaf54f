package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout   = "2006-01-02"
	bucketSep    = "_"
	hourMinSep   = ":"
	maxHourOfDay = 23
)

// PageViewEvent is a single client-reported page view.
type PageViewEvent struct {
	Page      string
	Timestamp string
	Count     int64
	Bucket    HourBucket
}

// HourBucket identifies one hour of one calendar day. The zero value is not a valid bucket.
type HourBucket struct {
	Date string
	Hour int
}

// ParseHourBucket derives the hour bucket from a client timestamp of the form
// YYYY-MM-DD_HH:mm[...]. Everything after the hour is discarded and no zone conversion is applied.
func ParseHourBucket(raw string) (HourBucket, error) {
	datePart, timePart, ok := strings.Cut(raw, bucketSep)
	if !ok {
		return HourBucket{}, fmt.Errorf("%w: %q has no date/time separator", ErrMalformedTimestamp, raw)
	}
	hourPart, _, ok := strings.Cut(timePart, hourMinSep)
	if !ok {
		return HourBucket{}, fmt.Errorf("%w: %q has no hour/minute separator", ErrMalformedTimestamp, raw)
	}
	return newHourBucket(raw, datePart, hourPart)
}

// ParseBucketKey parses the YYYY-MM-DD_HH form produced by HourBucket.Key.
func ParseBucketKey(key string) (HourBucket, error) {
	datePart, hourPart, ok := strings.Cut(key, bucketSep)
	if !ok {
		return HourBucket{}, fmt.Errorf("%w: %q is not a bucket key", ErrMalformedTimestamp, key)
	}
	return newHourBucket(key, datePart, hourPart)
}

func newHourBucket(raw, datePart, hourPart string) (HourBucket, error) {
	if _, err := time.Parse(dateLayout, datePart); err != nil {
		return HourBucket{}, fmt.Errorf("%w: %q has an invalid date", ErrMalformedTimestamp, raw)
	}
	if len(hourPart) == 0 || len(hourPart) > 2 {
		return HourBucket{}, fmt.Errorf("%w: %q has an invalid hour", ErrMalformedTimestamp, raw)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > maxHourOfDay || strings.ContainsAny(hourPart, "+-") {
		return HourBucket{}, fmt.Errorf("%w: %q has an invalid hour", ErrMalformedTimestamp, raw)
	}
	return HourBucket{Date: datePart, Hour: hour}, nil
}

// Key renders the bucket as YYYY-MM-DD_HH.
func (b HourBucket) Key() string {
	return fmt.Sprintf("%s%s%02d", b.Date, bucketSep, b.Hour)
}

func (b HourBucket) String() string { return b.Key() }

// Day returns the bucket's calendar day at midnight UTC. The date is used verbatim.
func (b HourBucket) Day() time.Time {
	d, _ := time.Parse(dateLayout, b.Date)
	return d
}

// IsZero reports whether the bucket was never set.
func (b HourBucket) IsZero() bool { return b.Date == "" }

// PageHourCounter is the persisted view count of one page in one hour bucket.
type PageHourCounter struct {
	Page      string
	Bucket    HourBucket
	ViewCount int64
}

// BatchEntry is one (page, timestamp, count) triple of a multi-page payload.
type BatchEntry struct {
	Page      string
	Timestamp string
	Bucket    HourBucket
	Count     int64
}

// BatchRequest holds validated entries in request order.
type BatchRequest struct {
	Entries []BatchEntry
}

// SingleBatch wraps one event as a one-entry batch.
func SingleBatch(ev PageViewEvent) BatchRequest {
	count := ev.Count
	if count < 1 {
		count = 1
	}
	return BatchRequest{Entries: []BatchEntry{{
		Page:      ev.Page,
		Timestamp: ev.Timestamp,
		Bucket:    ev.Bucket,
		Count:     count,
	}}}
}

// Len returns the number of entries.
func (b BatchRequest) Len() int { return len(b.Entries) }

// Pages returns the distinct pages in first-seen order.
func (b BatchRequest) Pages() []string {
	seen := make(map[string]struct{}, len(b.Entries))
	pages := make([]string, 0, len(b.Entries))
	for _, e := range b.Entries {
		if _, ok := seen[e.Page]; ok {
			continue
		}
		seen[e.Page] = struct{}{}
		pages = append(pages, e.Page)
	}
	return pages
}

// MarshalJSON renders the batch in its wire form {page: {timestamp: count}} keeping the
// first-seen order of pages and timestamps. Repeated (page, timestamp) pairs are summed.
func (b BatchRequest) MarshalJSON() ([]byte, error) {
	type tsCount struct {
		ts    string
		count int64
	}
	order := b.Pages()
	grouped := make(map[string][]tsCount, len(order))
	for _, e := range b.Entries {
		list := grouped[e.Page]
		merged := false
		for i := range list {
			if list[i].ts == e.Timestamp {
				list[i].count += e.Count
				merged = true
				break
			}
		}
		if !merged {
			list = append(list, tsCount{ts: e.Timestamp, count: e.Count})
		}
		grouped[e.Page] = list
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, page := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, page); err != nil {
			return nil, err
		}
		buf.WriteString(":{")
		for j, tc := range grouped[page] {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(&buf, tc.ts); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			buf.WriteString(strconv.FormatInt(tc.count, 10))
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
