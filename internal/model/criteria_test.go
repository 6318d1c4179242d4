package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"absent", 0, DefaultSearchLimit},
		{"negative", -5, DefaultSearchLimit},
		{"one-is-out-of-range", 1, DefaultSearchLimit},
		{"lowest-valid", 2, 2},
		{"typical", 50, 50},
		{"max", MaxSearchLimit, MaxSearchLimit},
		{"over-max", MaxSearchLimit + 1, DefaultSearchLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampLimit(tt.in); got != tt.want {
				t.Fatalf("ClampLimit(%d)=%d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := (SearchCriteria{}).Validate(); !errors.Is(err, ErrMissingGroup) {
		t.Fatalf("Validate() = %v, want ErrMissingGroup", err)
	}
	if err := (SearchCriteria{GroupName: "/svc/a"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCriteriaJSONOmitsAbsentBounds(t *testing.T) {
	c := SearchCriteria{GroupName: "/svc/a", FilterPattern: "ERROR", Limit: 50}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "startTime") || strings.Contains(s, "endTime") {
		t.Fatalf("absent bounds must be omitted, got %s", s)
	}
}

func TestCriteriaJSONEpochMillis(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	c := SearchCriteria{GroupName: "/svc/a", StartTime: &start, EndTime: &end}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"startTime":1704067200000`) {
		t.Fatalf("startTime not encoded as epoch ms: %s", b)
	}

	var back SearchCriteria
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.StartTime == nil || !back.StartTime.Equal(start) || back.EndTime == nil || !back.EndTime.Equal(end) {
		t.Fatalf("bounds mismatch: %+v", back)
	}
}
