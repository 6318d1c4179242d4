package model

import (
	"encoding/json"
	"time"
)

// SearchCriteria describes one event search. It is built fresh for every
// search and not modified once submitted.
type SearchCriteria struct {
	GroupName     string
	StreamName    string
	FilterPattern string
	StartTime     *time.Time
	EndTime       *time.Time
	Limit         int
}

// Validate reports ErrMissingGroup when no group is set.
func (c SearchCriteria) Validate() error {
	if c.GroupName == "" {
		return ErrMissingGroup
	}
	return nil
}

// Normalized returns a copy with Limit clamped into (1, MaxSearchLimit].
// Absent or out-of-range limits become DefaultSearchLimit.
func (c SearchCriteria) Normalized() SearchCriteria {
	c.Limit = ClampLimit(c.Limit)
	return c
}

// ClampLimit applies the search limit policy to a raw value.
func ClampLimit(limit int) int {
	if limit <= 1 || limit > MaxSearchLimit {
		return DefaultSearchLimit
	}
	return limit
}

// StartMillis returns the start bound as epoch milliseconds, or nil when absent.
func (c SearchCriteria) StartMillis() *int64 { return millis(c.StartTime) }

// EndMillis returns the end bound as epoch milliseconds, or nil when absent.
func (c SearchCriteria) EndMillis() *int64 { return millis(c.EndTime) }

func millis(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// FromMillis converts an optional epoch-millisecond value into a time.
func FromMillis(ms *int64) *time.Time {
	if ms == nil || *ms == 0 {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}

type criteriaWire struct {
	GroupName     string `json:"logGroupName"`
	StreamName    string `json:"logStreamName,omitempty"`
	FilterPattern string `json:"filterPattern,omitempty"`
	StartTime     *int64 `json:"startTime,omitempty"`
	EndTime       *int64 `json:"endTime,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// MarshalJSON encodes time bounds as epoch milliseconds and omits absent ones.
func (c SearchCriteria) MarshalJSON() ([]byte, error) {
	return json.Marshal(criteriaWire{
		GroupName:     c.GroupName,
		StreamName:    c.StreamName,
		FilterPattern: c.FilterPattern,
		StartTime:     c.StartMillis(),
		EndTime:       c.EndMillis(),
		Limit:         c.Limit,
	})
}

// UnmarshalJSON accepts the wire shape produced by MarshalJSON.
func (c *SearchCriteria) UnmarshalJSON(b []byte) error {
	var w criteriaWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*c = SearchCriteria{
		GroupName:     w.GroupName,
		StreamName:    w.StreamName,
		FilterPattern: w.FilterPattern,
		StartTime:     FromMillis(w.StartTime),
		EndTime:       FromMillis(w.EndTime),
		Limit:         w.Limit,
	}
	return nil
}
