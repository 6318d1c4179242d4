package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"

	"github.com/Nao-Mk2/aws-log-browser/internal/errclass"
	"github.com/Nao-Mk2/aws-log-browser/internal/model"
)

// fakeBackend serves canned data. Calls whose key was held block until
// released, which lets tests control completion order.
type fakeBackend struct {
	mu          sync.Mutex
	groupPages  [][]model.LogGroup
	streams     map[string][]model.LogStream
	events      map[string][]model.LogEvent // by filter pattern
	errs        map[string]error
	gates       map[string]chan struct{}
	started     chan string
	searchInput []model.SearchCriteria
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		streams: map[string][]model.LogStream{},
		events:  map[string][]model.LogEvent{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 32),
	}
}

func (f *fakeBackend) hold(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gates[key] = make(chan struct{})
}

func (f *fakeBackend) release(key string) {
	f.mu.Lock()
	g := f.gates[key]
	f.mu.Unlock()
	close(g)
}

func (f *fakeBackend) waitStarted(t *testing.T, key string) {
	t.Helper()
	for {
		select {
		case k := <-f.started:
			if k == key {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("call %q never started", key)
		}
	}
}

func (f *fakeBackend) enter(ctx context.Context, key string) error {
	f.mu.Lock()
	g := f.gates[key]
	err := f.errs[key]
	f.mu.Unlock()
	f.started <- key
	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeBackend) ListGroups(ctx context.Context, token *string) (model.Page[model.LogGroup], error) {
	if err := f.enter(ctx, "groups"); err != nil {
		return model.Page[model.LogGroup]{}, err
	}
	idx := 0
	if token != nil {
		fmt.Sscanf(*token, "%d", &idx)
	}
	if idx >= len(f.groupPages) {
		return model.Page[model.LogGroup]{}, nil
	}
	page := model.Page[model.LogGroup]{Items: f.groupPages[idx]}
	if idx+1 < len(f.groupPages) {
		page.NextToken = aws.String(fmt.Sprint(idx + 1))
	}
	return page, nil
}

func (f *fakeBackend) ListStreams(ctx context.Context, group string, token *string) (model.Page[model.LogStream], error) {
	if err := f.enter(ctx, "streams:"+group); err != nil {
		return model.Page[model.LogStream]{}, err
	}
	return model.Page[model.LogStream]{Items: f.streams[group]}, nil
}

func (f *fakeBackend) Search(ctx context.Context, c model.SearchCriteria) ([]model.LogEvent, error) {
	f.mu.Lock()
	f.searchInput = append(f.searchInput, c)
	f.mu.Unlock()
	if err := f.enter(ctx, "search:"+c.FilterPattern); err != nil {
		return nil, err
	}
	return f.events[c.FilterPattern], nil
}

func groups(names ...string) []model.LogGroup {
	out := make([]model.LogGroup, len(names))
	for i, n := range names {
		out[i] = model.LogGroup{Name: n}
	}
	return out
}

func streams(names ...string) []model.LogStream {
	out := make([]model.LogStream, len(names))
	for i, n := range names {
		out[i] = model.LogStream{Name: n}
	}
	return out
}

func streamNames(ss []model.LogStream) []string {
	var out []string
	for _, s := range ss {
		out = append(out, s.Name)
	}
	return out
}

func TestLoadGroupsAggregatesPages(t *testing.T) {
	b := newFakeBackend()
	b.groupPages = [][]model.LogGroup{groups("/svc/a"), groups("/svc/b", "/svc/c")}
	c := New(b)

	if err := c.LoadGroups(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := c.Snapshot()
	if len(st.Groups) != 3 || st.Groups[2].Name != "/svc/c" {
		t.Fatalf("groups=%+v", st.Groups)
	}
	if st.GroupPhase != GroupsLoaded {
		t.Fatalf("phase=%v, want GroupsLoaded", st.GroupPhase)
	}
}

func TestLoadGroupsFailureKeepsPreviousList(t *testing.T) {
	b := newFakeBackend()
	b.groupPages = [][]model.LogGroup{groups("/svc/a")}
	c := New(b)
	if err := c.LoadGroups(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.errs["groups"] = &smithy.GenericAPIError{Code: "AccessDeniedException"}
	err := c.LoadGroups(context.Background())
	var ce *errclass.Error
	if !errors.As(err, &ce) || ce.Kind != errclass.PermissionDenied {
		t.Fatalf("err=%v, want PermissionDenied", err)
	}
	if !errclass.IsFetchFailed(err) {
		t.Fatalf("group failure should carry the aggregation wrapper: %v", err)
	}
	st := c.Snapshot()
	if len(st.Groups) != 1 || st.GroupsErr == nil || st.GroupPhase != Failed {
		t.Fatalf("state after failed refresh: groups=%v err=%v phase=%v", st.Groups, st.GroupsErr, st.GroupPhase)
	}
}

func TestSelectGroupLoadsStreams(t *testing.T) {
	b := newFakeBackend()
	b.streams["/svc/a"] = streams("s1", "s2")
	c := New(b)

	if err := c.SelectGroup(context.Background(), "/svc/a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := c.Snapshot()
	if st.Group != "/svc/a" || len(st.Streams) != 2 || st.StreamPhase != StreamsLoaded {
		t.Fatalf("state=%+v", st)
	}
	if st.CatalogPhase() != StreamsLoaded {
		t.Fatalf("catalog phase=%v", st.CatalogPhase())
	}
}

func TestSelectEmptyGroupClearsWithoutFetch(t *testing.T) {
	b := newFakeBackend()
	b.streams["/svc/a"] = streams("s1")
	c := New(b)
	if err := c.SelectGroup(context.Background(), "/svc/a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.SelectStream("s1")
	<-b.started

	if err := c.SelectGroup(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case k := <-b.started:
		t.Fatalf("empty group triggered a call: %s", k)
	default:
	}
	st := c.Snapshot()
	if st.Group != "" || st.Stream != "" || st.Streams != nil || st.StreamPhase != Idle {
		t.Fatalf("state=%+v", st)
	}
}

func TestSelectGroupDropsStaleStreams(t *testing.T) {
	b := newFakeBackend()
	b.streams["G1"] = streams("g1-stream")
	b.streams["G2"] = streams("g2-stream-a", "g2-stream-b")
	b.hold("streams:G1")
	c := New(b)
	ctx := context.Background()

	errG1 := make(chan error, 1)
	go func() { errG1 <- c.SelectGroup(ctx, "G1") }()
	b.waitStarted(t, "streams:G1")

	if err := c.SelectGroup(ctx, "G2"); err != nil {
		t.Fatalf("G2: %v", err)
	}
	b.release("streams:G1")
	if err := <-errG1; err != nil {
		t.Fatalf("stale completion must not report an error: %v", err)
	}

	st := c.Snapshot()
	if st.Group != "G2" {
		t.Fatalf("group=%q, want G2", st.Group)
	}
	got := streamNames(st.Streams)
	if len(got) != 2 || got[0] != "g2-stream-a" || got[1] != "g2-stream-b" {
		t.Fatalf("streams=%v, want G2's", got)
	}
}

func TestSelectGroupClearsEventsAndStream(t *testing.T) {
	b := newFakeBackend()
	b.streams["/svc/a"] = streams("s1")
	b.events["ERROR"] = []model.LogEvent{{EventID: "1"}}
	c := New(b)
	ctx := context.Background()
	_ = c.SelectGroup(ctx, "/svc/a")
	c.SelectStream("s1")
	if err := c.Search(ctx, model.SearchCriteria{FilterPattern: "ERROR"}); err != nil {
		t.Fatalf("search: %v", err)
	}

	_ = c.SelectGroup(ctx, "/svc/b")
	st := c.Snapshot()
	if st.Stream != "" || st.Events != nil || st.LastCriteria != nil || st.SearchPhase != Idle {
		t.Fatalf("dependent state not cleared: %+v", st)
	}
}

func TestSelectStreamDoesNotFetch(t *testing.T) {
	b := newFakeBackend()
	c := New(b)
	c.SelectStream("anything")
	select {
	case k := <-b.started:
		t.Fatalf("SelectStream called backend: %s", k)
	default:
	}
	if c.Snapshot().Stream != "anything" {
		t.Fatalf("stream not set")
	}
}

func TestSearchRequiresGroup(t *testing.T) {
	b := newFakeBackend()
	c := New(b)
	err := c.Search(context.Background(), model.SearchCriteria{FilterPattern: "x"})
	var ce *errclass.Error
	if !errors.As(err, &ce) || ce.Kind != errclass.ValidationFailed || ce.Message != "missing group" {
		t.Fatalf("err=%v, want ValidationFailed(missing group)", err)
	}
	if len(b.searchInput) != 0 {
		t.Fatalf("validation failure reached the backend")
	}
}

func TestSearchRejectsForeignGroup(t *testing.T) {
	b := newFakeBackend()
	c := New(b)
	_ = c.SelectGroup(context.Background(), "/svc/a")
	err := c.Search(context.Background(), model.SearchCriteria{GroupName: "/svc/b"})
	if errclass.Classify(err) != errclass.ValidationFailed {
		t.Fatalf("err=%v, want ValidationFailed", err)
	}
}

func TestSearchClampsLimit(t *testing.T) {
	b := newFakeBackend()
	c := New(b)
	ctx := context.Background()
	_ = c.SelectGroup(ctx, "/svc/a")
	for _, limit := range []int{0, 20000} {
		if err := c.Search(ctx, model.SearchCriteria{Limit: limit}); err != nil {
			t.Fatalf("search: %v", err)
		}
	}
	for i, in := range b.searchInput {
		if in.Limit != model.DefaultSearchLimit || in.GroupName != "/svc/a" {
			t.Fatalf("request %d = %+v", i, in)
		}
	}
}

func TestSearchGenerationGuard(t *testing.T) {
	b := newFakeBackend()
	b.events["A"] = []model.LogEvent{{EventID: "a1"}}
	b.events["B"] = []model.LogEvent{{EventID: "b1"}, {EventID: "b2"}}
	b.hold("search:A")
	b.hold("search:B")
	c := New(b)
	ctx := context.Background()
	_ = c.SelectGroup(ctx, "/svc/a")

	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- c.Search(ctx, model.SearchCriteria{FilterPattern: "A"}) }()
	b.waitStarted(t, "search:A")
	go func() { errB <- c.Search(ctx, model.SearchCriteria{FilterPattern: "B"}) }()
	b.waitStarted(t, "search:B")

	b.release("search:B")
	if err := <-errB; err != nil {
		t.Fatalf("B: %v", err)
	}
	b.release("search:A")
	if err := <-errA; err != nil {
		t.Fatalf("stale A must be dropped silently: %v", err)
	}

	st := c.Snapshot()
	if len(st.Events) != 2 || st.Events[0].EventID != "b1" {
		t.Fatalf("events=%+v, want B's", st.Events)
	}
	if st.LastCriteria == nil || st.LastCriteria.FilterPattern != "B" {
		t.Fatalf("last criteria=%+v", st.LastCriteria)
	}
}

func TestSearchFailureKeepsEvents(t *testing.T) {
	b := newFakeBackend()
	b.events["ok"] = []model.LogEvent{{EventID: "1"}}
	b.errs["search:bad"] = errors.New("connection reset")
	c := New(b)
	ctx := context.Background()
	_ = c.SelectGroup(ctx, "/svc/a")
	_ = c.Search(ctx, model.SearchCriteria{FilterPattern: "ok"})

	err := c.Search(ctx, model.SearchCriteria{FilterPattern: "bad"})
	if errclass.Classify(err) != errclass.TransientFailure {
		t.Fatalf("err=%v, want TransientFailure", err)
	}
	st := c.Snapshot()
	if len(st.Events) != 1 || st.SearchErr == nil || st.SearchPhase != Failed {
		t.Fatalf("state=%+v", st)
	}
}

func TestClearAllVoidsInFlight(t *testing.T) {
	b := newFakeBackend()
	b.streams["/svc/a"] = streams("s1")
	b.events["E"] = []model.LogEvent{{EventID: "1"}}
	b.hold("search:E")
	c := New(b)
	ctx := context.Background()
	_ = c.SelectGroup(ctx, "/svc/a")

	done := make(chan error, 1)
	go func() { done <- c.Search(ctx, model.SearchCriteria{FilterPattern: "E"}) }()
	b.waitStarted(t, "search:E")
	c.ClearAll()
	b.release("search:E")
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := c.Snapshot()
	if st.Group != "" || st.Events != nil || st.Streams != nil || st.SearchPhase != Idle {
		t.Fatalf("state after clear=%+v", st)
	}
	if st.Generation.Events == 0 || st.Generation.Streams == 0 || st.Generation.Groups == 0 {
		t.Fatalf("generations must survive the reset: %+v", st.Generation)
	}
}

func TestSetTimeRange(t *testing.T) {
	c := New(newFakeBackend())
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	if err := c.SetTimeRange(&start, &end); errclass.Classify(err) != errclass.ValidationFailed {
		t.Fatalf("err=%v, want ValidationFailed", err)
	}
	end = start.Add(time.Hour)
	if err := c.SetTimeRange(&start, &end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	crit := c.CurrentCriteria(10)
	if crit.StartTime == nil || !crit.StartTime.Equal(start) || crit.EndTime == nil || !crit.EndTime.Equal(end) {
		t.Fatalf("criteria bounds=%v..%v", crit.StartTime, crit.EndTime)
	}
}

func TestVisibleCollections(t *testing.T) {
	b := newFakeBackend()
	b.groupPages = [][]model.LogGroup{groups("Alpha", "beta", "ALPHABET")}
	c := New(b)
	_ = c.LoadGroups(context.Background())
	c.SetGroupQuery("alpha")

	got := c.Snapshot().VisibleGroups()
	if len(got) != 2 || got[0].Name != "Alpha" || got[1].Name != "ALPHABET" {
		t.Fatalf("visible=%v", got)
	}
	c.SetGroupQuery("")
	if len(c.Snapshot().VisibleGroups()) != 3 {
		t.Fatalf("empty query must show every group")
	}
}

func TestSubscribeReceivesOrderedSnapshots(t *testing.T) {
	c := New(newFakeBackend())
	var versions []uint64
	cancel := c.Subscribe(func(st State) { versions = append(versions, st.Version) })
	c.SetFilterPattern("a")
	c.SelectStream("s")
	cancel()
	c.SetFilterPattern("b")

	if len(versions) != 2 || versions[0] >= versions[1] {
		t.Fatalf("versions=%v", versions)
	}
}

func TestEndToEndScenario(t *testing.T) {
	const streamName = "2024/01/01/[$LATEST]xyz"
	b := newFakeBackend()
	b.groupPages = [][]model.LogGroup{groups("/svc/a"), groups("/svc/b")}
	b.streams["/svc/a"] = streams(streamName)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		b.events["ERROR"] = append(b.events["ERROR"], model.LogEvent{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Message:    fmt.Sprintf("ERROR %d", i),
			StreamName: streamName,
			EventID:    fmt.Sprint(i),
		})
	}
	c := New(b)
	ctx := context.Background()

	if err := c.LoadGroups(ctx); err != nil {
		t.Fatalf("groups: %v", err)
	}
	if got := c.Snapshot().Groups; len(got) != 2 || got[0].Name != "/svc/a" || got[1].Name != "/svc/b" {
		t.Fatalf("groups=%v", got)
	}
	if err := c.SelectGroup(ctx, "/svc/a"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := streamNames(c.Snapshot().Streams); len(got) != 1 || got[0] != streamName {
		t.Fatalf("streams=%v", got)
	}
	c.SetFilterPattern("ERROR")
	if err := c.Search(ctx, c.CurrentCriteria(50)); err != nil {
		t.Fatalf("search: %v", err)
	}

	if b.searchInput[0].Limit != 50 || b.searchInput[0].FilterPattern != "ERROR" {
		t.Fatalf("request=%+v", b.searchInput[0])
	}
	st := c.Snapshot()
	if len(st.Events) != 3 {
		t.Fatalf("events=%d, want 3", len(st.Events))
	}
	for _, e := range st.Events {
		if e.StreamName != streamName {
			t.Fatalf("event %s stream=%q", e.EventID, e.StreamName)
		}
	}
}
