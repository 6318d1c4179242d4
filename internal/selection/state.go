package selection

import (
	"time"

	"github.com/Nao-Mk2/aws-log-browser/internal/debounce"
	"github.com/Nao-Mk2/aws-log-browser/internal/errclass"
	"github.com/Nao-Mk2/aws-log-browser/internal/model"
)

// Phase is the state of one of the coordinator's sub-machines.
type Phase int

const (
	Idle Phase = iota
	LoadingGroups
	GroupsLoaded
	LoadingStreams
	StreamsLoaded
	Searching
	ResultsLoaded
	Failed
)

var phaseNames = [...]string{"Idle", "LoadingGroups", "GroupsLoaded", "LoadingStreams", "StreamsLoaded", "Searching", "ResultsLoaded", "Failed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[p]
}

// MarshalText lets phases appear by name in JSON.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Generations tags the latest request issued in each slot. A completion
// carrying an older generation is dropped.
type Generations struct {
	Groups  uint64 `json:"groups"`
	Streams uint64 `json:"streams"`
	Events  uint64 `json:"events"`
}

// State is a snapshot of the selection. Slices are shared between
// snapshots and must not be modified by readers.
type State struct {
	Group         string     `json:"group"`
	Stream        string     `json:"stream"`
	GroupQuery    string     `json:"groupQuery"`
	StreamQuery   string     `json:"streamQuery"`
	FilterPattern string     `json:"filterPattern"`
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`

	Groups  []model.LogGroup  `json:"groups"`
	Streams []model.LogStream `json:"streams"`
	Events  []model.LogEvent  `json:"events"`
	// LastCriteria is the criteria that produced Events.
	LastCriteria *model.SearchCriteria `json:"lastCriteria,omitempty"`

	GroupPhase  Phase `json:"groupPhase"`
	StreamPhase Phase `json:"streamPhase"`
	SearchPhase Phase `json:"searchPhase"`

	GroupsErr  *errclass.Error `json:"groupsError,omitempty"`
	StreamsErr *errclass.Error `json:"streamsError,omitempty"`
	SearchErr  *errclass.Error `json:"searchError,omitempty"`

	Generation Generations `json:"generation"`
	Version    uint64      `json:"version"`
}

// CatalogPhase folds the group and stream sub-states into one value.
func (s State) CatalogPhase() Phase {
	if s.StreamPhase != Idle {
		return s.StreamPhase
	}
	return s.GroupPhase
}

// VisibleGroups applies the settled group query.
func (s State) VisibleGroups() []model.LogGroup {
	return debounce.Filter(s.Groups, s.GroupQuery, model.GroupName)
}

// VisibleStreams applies the settled stream query.
func (s State) VisibleStreams() []model.LogStream {
	return debounce.Filter(s.Streams, s.StreamQuery, model.StreamName)
}
