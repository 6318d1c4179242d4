package model

import (
	"errors"
	"time"
)

const (
	// DefaultSearchLimit is applied when a criteria carries no usable limit.
	DefaultSearchLimit = 100
	// MaxSearchLimit is the largest number of events one search may return.
	MaxSearchLimit = 10000
)

// ErrMissingGroup is returned when a search is attempted without a log group.
var ErrMissingGroup = errors.New("missing group")

// LogGroup is one entry of the log group catalog.
type LogGroup struct {
	Name          string    `json:"logGroupName"`
	CreationTime  time.Time `json:"creationTime"`
	RetentionDays *int32    `json:"retentionInDays,omitempty"`
	StoredBytes   *int64    `json:"storedBytes,omitempty"`
}

// LogStream belongs to exactly one LogGroup.
type LogStream struct {
	Name              string     `json:"logStreamName"`
	CreationTime      time.Time  `json:"creationTime"`
	LastEventTime     *time.Time `json:"lastEventTimestamp,omitempty"`
	LastIngestionTime *time.Time `json:"lastIngestionTime,omitempty"`
	StoredBytes       *int64     `json:"storedBytes,omitempty"`
}

// LogEvent is a single matched event. Events keep backend arrival order.
type LogEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message"`
	StreamName    string    `json:"logStreamName"`
	EventID       string    `json:"eventId"`
	IngestionTime time.Time `json:"ingestionTime"`
}

// Page is one response of a token-continuation listing.
// A nil NextToken marks the final page.
type Page[T any] struct {
	Items     []T
	NextToken *string
}

// GroupName returns the identity of a log group.
func GroupName(g LogGroup) string { return g.Name }

// StreamName returns the identity of a log stream.
func StreamName(s LogStream) string { return s.Name }
