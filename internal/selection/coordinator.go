// Package selection coordinates group, stream and event-search state for an
// interactive log browsing session.
package selection

import (
	"context"
	"sync"
	"time"

	"github.com/Nao-Mk2/aws-log-browser/internal/errclass"
	"github.com/Nao-Mk2/aws-log-browser/internal/model"
	"github.com/Nao-Mk2/aws-log-browser/internal/paginate"
)

// Backend is the paged log store the coordinator reads from.
type Backend interface {
	ListGroups(ctx context.Context, token *string) (model.Page[model.LogGroup], error)
	ListStreams(ctx context.Context, group string, token *string) (model.Page[model.LogStream], error)
	Search(ctx context.Context, criteria model.SearchCriteria) ([]model.LogEvent, error)
}

// Coordinator owns the session State. Backend calls run without holding
// the lock; their results are applied only if no newer request was issued
// in the same slot meanwhile.
type Coordinator struct {
	backend Backend

	mu sync.Mutex
	st State

	pubMu     sync.Mutex
	published uint64
	observers map[int]func(State)
	nextObs   int
}

// New creates a Coordinator with an empty selection.
func New(backend Backend) *Coordinator {
	return &Coordinator{backend: backend, observers: make(map[int]func(State))}
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Subscribe registers fn to receive every published snapshot in version
// order. fn must not call Subscribe or the returned cancel func.
func (c *Coordinator) Subscribe(fn func(State)) (cancel func()) {
	c.pubMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.pubMu.Unlock()
	return func() {
		c.pubMu.Lock()
		delete(c.observers, id)
		c.pubMu.Unlock()
	}
}

// update applies fn under the lock, bumps the version and publishes.
func (c *Coordinator) update(fn func(st *State)) State {
	c.mu.Lock()
	fn(&c.st)
	c.st.Version++
	snap := c.st
	c.mu.Unlock()
	c.publish(snap)
	return snap
}

// applyIf is update guarded by a generation check; it reports whether fn ran.
func (c *Coordinator) applyIf(valid func(st *State) bool, fn func(st *State)) bool {
	c.mu.Lock()
	if !valid(&c.st) {
		c.mu.Unlock()
		return false
	}
	fn(&c.st)
	c.st.Version++
	snap := c.st
	c.mu.Unlock()
	c.publish(snap)
	return true
}

func (c *Coordinator) publish(snap State) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if snap.Version <= c.published {
		return
	}
	c.published = snap.Version
	for _, fn := range c.observers {
		fn(snap)
	}
}

// LoadGroups fetches the whole group catalog and replaces the held list.
// A failed refresh keeps the previous list and records the error.
func (c *Coordinator) LoadGroups(ctx context.Context) error {
	var gen uint64
	c.update(func(st *State) {
		st.Generation.Groups++
		gen = st.Generation.Groups
		st.GroupPhase = LoadingGroups
		st.GroupsErr = nil
	})

	groups, err := paginate.FetchAll(ctx, c.backend.ListGroups)

	var failure *errclass.Error
	c.applyIf(func(st *State) bool { return st.Generation.Groups == gen }, func(st *State) {
		if err != nil {
			failure = errclass.Wrap(err, "list log groups")
			st.GroupsErr = failure
			st.GroupPhase = Failed
			return
		}
		st.Groups = groups
		st.GroupPhase = GroupsLoaded
	})
	if failure != nil {
		return failure
	}
	return nil
}

// SelectGroup makes name the current group. The stream, stream list and
// event list are cleared and the group's streams are fetched. An empty name
// clears the selection without fetching. A fetch overtaken by a newer
// selection is dropped and reports no error.
func (c *Coordinator) SelectGroup(ctx context.Context, name string) error {
	var gen uint64
	c.update(func(st *State) {
		st.Group = name
		st.Stream = ""
		st.Streams = nil
		st.StreamsErr = nil
		st.Events = nil
		st.LastCriteria = nil
		st.SearchErr = nil
		st.SearchPhase = Idle
		st.Generation.Streams++
		st.Generation.Events++
		gen = st.Generation.Streams
		if name == "" {
			st.StreamPhase = Idle
			return
		}
		st.StreamPhase = LoadingStreams
	})
	if name == "" {
		return nil
	}

	streams, err := paginate.FetchAll(ctx, func(ctx context.Context, token *string) (model.Page[model.LogStream], error) {
		return c.backend.ListStreams(ctx, name, token)
	})

	var failure *errclass.Error
	c.applyIf(func(st *State) bool {
		return st.Generation.Streams == gen && st.Group == name
	}, func(st *State) {
		if err != nil {
			failure = errclass.Wrap(err, "list log streams of "+name)
			st.StreamsErr = failure
			st.StreamPhase = Failed
			return
		}
		st.Streams = streams
		st.StreamPhase = StreamsLoaded
	})
	if failure != nil {
		return failure
	}
	return nil
}

// SelectStream sets the current stream. Streams are loaded per group up
// front, so nothing is fetched.
func (c *Coordinator) SelectStream(name string) {
	c.update(func(st *State) { st.Stream = name })
}

// SetGroupQuery stores the settled group filter text.
func (c *Coordinator) SetGroupQuery(q string) {
	c.update(func(st *State) { st.GroupQuery = q })
}

// SetStreamQuery stores the settled stream filter text.
func (c *Coordinator) SetStreamQuery(q string) {
	c.update(func(st *State) { st.StreamQuery = q })
}

// SetFilterPattern stores the pattern used by CurrentCriteria.
func (c *Coordinator) SetFilterPattern(p string) {
	c.update(func(st *State) { st.FilterPattern = p })
}

// SetTimeRange stores optional time bounds. start must not be after end.
func (c *Coordinator) SetTimeRange(start, end *time.Time) error {
	if start != nil && end != nil && start.After(*end) {
		return errclass.Validation("start is after end")
	}
	c.update(func(st *State) {
		st.Start = start
		st.End = end
	})
	return nil
}

// CurrentCriteria composes search criteria from the current selection.
func (c *Coordinator) CurrentCriteria(limit int) model.SearchCriteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.SearchCriteria{
		GroupName:     c.st.Group,
		StreamName:    c.st.Stream,
		FilterPattern: c.st.FilterPattern,
		StartTime:     c.st.Start,
		EndTime:       c.st.End,
		Limit:         limit,
	}
}

// Search runs one event search for the selected group. An empty criteria
// group defaults to the selection; a different group is rejected. The
// result replaces the event list only if no newer search, group change or
// reset happened while it was in flight.
func (c *Coordinator) Search(ctx context.Context, criteria model.SearchCriteria) error {
	var gen uint64
	var invalid *errclass.Error
	c.update(func(st *State) {
		switch {
		case st.Group == "":
			invalid = errclass.Validation(model.ErrMissingGroup.Error())
		case criteria.GroupName == "":
			criteria.GroupName = st.Group
		case criteria.GroupName != st.Group:
			invalid = errclass.Validation("criteria group " + criteria.GroupName + " is not the selected group")
		}
		if invalid != nil {
			st.SearchErr = invalid
			return
		}
		st.Generation.Events++
		gen = st.Generation.Events
		st.SearchPhase = Searching
		st.SearchErr = nil
	})
	if invalid != nil {
		return invalid
	}
	criteria = criteria.Normalized()

	events, err := c.backend.Search(ctx, criteria)

	var failure *errclass.Error
	c.applyIf(func(st *State) bool { return st.Generation.Events == gen }, func(st *State) {
		if err != nil {
			failure = errclass.Wrap(err, "search events in "+criteria.GroupName)
			st.SearchErr = failure
			st.SearchPhase = Failed
			return
		}
		st.Events = events
		st.LastCriteria = &criteria
		st.SearchPhase = ResultsLoaded
	})
	if failure != nil {
		return failure
	}
	return nil
}

// ClearAll resets the session. Requests still in flight complete as no-ops.
func (c *Coordinator) ClearAll() {
	c.update(func(st *State) {
		gen := st.Generation
		gen.Groups++
		gen.Streams++
		gen.Events++
		*st = State{Generation: gen, Version: st.Version}
	})
}
