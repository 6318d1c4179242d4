// Package inspector runs one search across several log groups at once.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Nao-Mk2/aws-log-browser/internal/model"
)

// DefaultWorkers bounds concurrent per-group searches.
const DefaultWorkers = 4

// Searcher runs a search scoped to a single log group.
type Searcher interface {
	Search(ctx context.Context, c model.SearchCriteria) ([]model.LogEvent, error)
}

// LogRecord is an event tagged with the group it came from.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	LogGroup  string    `json:"logGroup"`
	LogStream string    `json:"logStream"`
	Message   string    `json:"message"`
}

// Inspector fans a criteria out over a fixed list of groups.
type Inspector struct {
	searcher Searcher
	groups   []string
	workers  int
}

// New creates an Inspector.
func New(searcher Searcher, groups []string) *Inspector {
	return &Inspector{searcher: searcher, groups: groups, workers: DefaultWorkers}
}

// SetWorkers sets the number of concurrent group searches (minimum 1).
func (in *Inspector) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	in.workers = n
}

// Search runs base against every group; base.GroupName is ignored. Records
// come back ordered by timestamp, then group, stream and message. The first
// group failure cancels the rest.
func (in *Inspector) Search(ctx context.Context, base model.SearchCriteria) ([]LogRecord, error) {
	if len(in.groups) == 0 {
		return nil, errors.New("no log groups configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := in.workers
	if workers > len(in.groups) {
		workers = len(in.groups)
	}

	groupChan := make(chan string, len(in.groups))
	for _, g := range in.groups {
		groupChan <- g
	}
	close(groupChan)

	var (
		mu       sync.Mutex
		records  []LogRecord
		firstErr error
		wg       sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range groupChan {
				c := base
				c.GroupName = group
				events, err := in.searcher.Search(ctx, c)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("%s: %w", group, err)
						cancel()
					}
					mu.Unlock()
					return
				}
				for _, e := range events {
					records = append(records, LogRecord{
						Timestamp: e.Timestamp,
						LogGroup:  group,
						LogStream: e.StreamName,
						Message:   e.Message,
					})
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.LogGroup != b.LogGroup {
			return a.LogGroup < b.LogGroup
		}
		if a.LogStream != b.LogStream {
			return a.LogStream < b.LogStream
		}
		return a.Message < b.Message
	})
	return records, nil
}

// Events strips the group tag, for feeding records into extraction.
func Events(records []LogRecord) []model.LogEvent {
	out := make([]model.LogEvent, 0, len(records))
	for _, r := range records {
		out = append(out, model.LogEvent{Timestamp: r.Timestamp, Message: r.Message, StreamName: r.LogStream})
	}
	return out
}
