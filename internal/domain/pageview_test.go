package domain

import (
	"errors"
	"testing"
)

func TestParseHourBucket(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    HourBucket
		wantErr bool
	}{
		{name: "minutes discarded", raw: "2024-01-01_10:15", want: HourBucket{Date: "2024-01-01", Hour: 10}},
		{name: "end of hour not rounded", raw: "2024-01-01_10:59", want: HourBucket{Date: "2024-01-01", Hour: 10}},
		{name: "seconds and fraction", raw: "2024-01-01_23:59:59.999", want: HourBucket{Date: "2024-01-01", Hour: 23}},
		{name: "single digit hour", raw: "2024-03-09_7:05", want: HourBucket{Date: "2024-03-09", Hour: 7}},
		{name: "midnight", raw: "2024-12-31_00:00", want: HourBucket{Date: "2024-12-31", Hour: 0}},
		{name: "missing date separator", raw: "2024-01-01 10:15", wantErr: true},
		{name: "missing minute separator", raw: "2024-01-01_1015", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "bad date", raw: "2024-13-01_10:15", wantErr: true},
		{name: "hour out of range", raw: "2024-01-01_24:00", wantErr: true},
		{name: "negative hour", raw: "2024-01-01_-1:00", wantErr: true},
		{name: "empty hour", raw: "2024-01-01_:15", wantErr: true},
		{name: "three digit hour", raw: "2024-01-01_010:15", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseHourBucket(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedTimestamp) {
					t.Fatalf("ParseHourBucket(%q) error = %v, want ErrMalformedTimestamp", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHourBucket(%q) returned error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParseHourBucket(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseHourBucketIgnoresMinutes(t *testing.T) {
	first, err := ParseHourBucket("2024-05-06_14:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, minute := range []string{"01", "15", "30", "45", "59"} {
		got, err := ParseHourBucket("2024-05-06_14:" + minute)
		if err != nil {
			t.Fatalf("parse minute %s: %v", minute, err)
		}
		if got != first {
			t.Fatalf("minute %s produced %+v, want %+v", minute, got, first)
		}
	}
}

func TestBucketKeyRoundTrip(t *testing.T) {
	b, err := ParseHourBucket("2024-01-01_09:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b.Key() != "2024-01-01_09" {
		t.Fatalf("Key() = %q", b.Key())
	}
	back, err := ParseBucketKey(b.Key())
	if err != nil {
		t.Fatalf("ParseBucketKey: %v", err)
	}
	if back != b {
		t.Fatalf("ParseBucketKey(%q) = %+v, want %+v", b.Key(), back, b)
	}
	if got := b.Day().Format("2006-01-02"); got != "2024-01-01" {
		t.Fatalf("Day() = %s", got)
	}
}

func TestBatchRequestMarshalKeepsOrder(t *testing.T) {
	batch := BatchRequest{Entries: []BatchEntry{
		{Page: "z.html", Timestamp: "2024-01-01_10:15", Count: 3},
		{Page: "a.html", Timestamp: "2024-01-01_11:00", Count: 1},
		{Page: "z.html", Timestamp: "2024-01-01_09:00", Count: 2},
		{Page: "z.html", Timestamp: "2024-01-01_10:15", Count: 4},
	}}
	got, err := batch.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	want := `{"z.html":{"2024-01-01_10:15":7,"2024-01-01_09:00":2},"a.html":{"2024-01-01_11:00":1}}`
	if string(got) != want {
		t.Fatalf("MarshalJSON = %s, want %s", got, want)
	}
}

func TestSingleBatchDefaultsCount(t *testing.T) {
	batch := SingleBatch(PageViewEvent{Page: "a.html", Timestamp: "2024-01-01_10:15"})
	if batch.Len() != 1 || batch.Entries[0].Count != 1 {
		t.Fatalf("SingleBatch = %+v", batch)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	verr := &ValidationError{Kind: ErrInvalidCount, Page: "a.html", Timestamp: "2024-01-01_10:15"}
	if !errors.Is(verr, ErrInvalidCount) || errors.Is(verr, ErrMissingField) {
		t.Fatalf("ValidationError kind matching is wrong")
	}

	agg := &AggregationError{Page: "a.html", Err: errors.New("boom")}
	if !errors.Is(agg, ErrAggregationFailure) {
		t.Fatalf("AggregationError should match ErrAggregationFailure")
	}

	partial := &PartialFailureError{Applied: 1, Failed: 1, Err: agg}
	if !errors.Is(partial, ErrPartialFailure) || !errors.Is(partial, ErrAggregationFailure) {
		t.Fatalf("PartialFailureError should match both sentinels")
	}
	var target *AggregationError
	if !errors.As(partial, &target) || target.Page != "a.html" {
		t.Fatalf("PartialFailureError should unwrap to the AggregationError")
	}
}
