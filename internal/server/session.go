package server

import (
	"encoding/json"
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Nao-Mk2/aws-log-browser/internal/debounce"
	"github.com/Nao-Mk2/aws-log-browser/internal/errclass"
	"github.com/Nao-Mk2/aws-log-browser/internal/model"
	"github.com/Nao-Mk2/aws-log-browser/internal/selection"
	"github.com/Nao-Mk2/aws-log-browser/internal/store"
	"github.com/Nao-Mk2/aws-log-browser/internal/util"
	"github.com/Nao-Mk2/aws-log-browser/internal/window"
)

// snapshot is the wire form of a session state.
type snapshot struct {
	selection.State
	CatalogPhase   selection.Phase   `json:"catalogPhase"`
	VisibleGroups  []model.LogGroup  `json:"visibleGroups"`
	VisibleStreams []model.LogStream `json:"visibleStreams"`
}

func newSnapshot(st selection.State) snapshot {
	return snapshot{
		State:          st,
		CatalogPhase:   st.CatalogPhase(),
		VisibleGroups:  st.VisibleGroups(),
		VisibleStreams: st.VisibleStreams(),
	}
}

func (s *Server) respondSnapshot(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, newSnapshot(s.coord.Snapshot()))
}

// sessionContext is bounded by the request timeout but survives the client
// disconnecting.
func (s *Server) sessionContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.config.RequestTimeout)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.sessionContext(r)
	defer cancel()
	if err := s.coord.LoadGroups(ctx); err != nil {
		respondFailure(w, err, "list log groups")
		return
	}
	s.respondSnapshot(w)
}

func (s *Server) handleSelectGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LogGroupName string `json:"logGroupName"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := s.sessionContext(r)
	defer cancel()
	if err := s.coord.SelectGroup(ctx, req.LogGroupName); err != nil {
		respondFailure(w, err, "list log streams")
		return
	}
	s.respondSnapshot(w)
}

func (s *Server) handleSelectStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LogStreamName string `json:"logStreamName"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.coord.SelectStream(req.LogStreamName)
	s.respondSnapshot(w)
}

// handleQuery feeds raw filter input into the list's debouncer. The settled
// value reaches the session later unless flush is set.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		List  string `json:"list"`
		Text  string `json:"text"`
		Flush bool   `json:"flush"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	var d *debounce.Debouncer
	switch req.List {
	case "groups":
		d = s.groupQuery
	case "streams":
		d = s.streamQuery
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown list %q (supported: groups, streams)", req.List))
		return
	}
	d.Push(req.Text)
	if req.Flush {
		d.Flush()
		s.respondSnapshot(w)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]bool{"pending": d.Pending()})
}

func (s *Server) handleFilterPattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilterPattern string `json:"filterPattern"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.coord.SetFilterPattern(req.FilterPattern)
	s.respondSnapshot(w)
}

// handleTimeRange takes epoch-millisecond bounds; absent or zero clears one.
func (s *Server) handleTimeRange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartTime *int64 `json:"startTime"`
		EndTime   *int64 `json:"endTime"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.coord.SetTimeRange(model.FromMillis(req.StartTime), model.FromMillis(req.EndTime)); err != nil {
		respondFailure(w, err, "set time range")
		return
	}
	s.respondSnapshot(w)
}

type sessionSearchRequest struct {
	FilterPattern *string `json:"filterPattern"`
	Limit         int     `json:"limit"`
}

// handleSessionSearch searches with the session's current criteria. An
// empty body is accepted.
func (s *Server) handleSessionSearch(w http.ResponseWriter, r *http.Request) {
	var req sessionSearchRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if req.FilterPattern != nil {
		s.coord.SetFilterPattern(*req.FilterPattern)
	}
	ctx, cancel := s.sessionContext(r)
	defer cancel()
	if err := s.coord.Search(ctx, s.coord.CurrentCriteria(pickLimit(req.Limit, s.config.SearchLimit))); err != nil {
		respondFailure(w, err, "search events")
		return
	}
	s.respondSnapshot(w)
}

// handlePivot extracts a value from the current results, builds the next
// filter pattern from it and searches again.
func (s *Server) handlePivot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Extract    string `json:"extract"`
		NextFilter string `json:"nextFilter"`
		Limit      int    `json:"limit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Extract == "" || req.NextFilter == "" {
		respondError(w, http.StatusBadRequest, "extract and nextFilter are required")
		return
	}
	if req.Name == "" {
		req.Name = "value"
	}
	pattern, value, ok, err := util.NextPattern(s.coord.Snapshot().Events, req.Name, req.Extract, req.NextFilter)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		respondFailure(w, errclass.Validation("no extractable value found in current results"), "pivot")
		return
	}
	s.coord.SetFilterPattern(pattern)
	ctx, cancel := s.sessionContext(r)
	defer cancel()
	if err := s.coord.Search(ctx, s.coord.CurrentCriteria(pickLimit(req.Limit, s.config.SearchLimit))); err != nil {
		respondFailure(w, err, "search events")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"value":   value,
		"pattern": pattern,
		"session": newSnapshot(s.coord.Snapshot()),
	})
}

func pickLimit(limit, fallback int) int {
	if limit == 0 {
		return fallback
	}
	return limit
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.coord.ClearAll()
	s.respondSnapshot(w)
}

type viewRow struct {
	window.Item
	Value any `json:"value"`
}

type viewResponse struct {
	List      string        `json:"list"`
	Window    window.Window `json:"window"`
	TotalSize int           `json:"totalSize"`
	Rows      []viewRow     `json:"rows"`
}

// maxRowSize bounds the rowSize parameter so the total extent stays small.
const maxRowSize = 1 << 16

// handleView windows one of the filtered session lists. Query parameters:
// offset, extent, overscan, rowSize, active (an index to scroll to) and move
// (a delta applied to the active index, as arrow keys do).
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	intParam := func(name string, def, min, max int) (int, bool) {
		v := q.Get(name)
		if v == "" {
			return def, true
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < min || n > max {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, v))
			return 0, false
		}
		return n, true
	}
	rowSize, ok := intParam("rowSize", s.config.RowSize, 1, maxRowSize)
	if !ok {
		return
	}
	overscan, ok := intParam("overscan", s.config.Overscan, 0, math.MaxInt32)
	if !ok {
		return
	}
	extent, ok := intParam("extent", s.config.Extent, 0, math.MaxInt32)
	if !ok {
		return
	}
	offset, ok := intParam("offset", 0, math.MinInt32, math.MaxInt32)
	if !ok {
		return
	}
	active, ok := intParam("active", -1, math.MinInt32, math.MaxInt32)
	if !ok {
		return
	}
	move, ok := intParam("move", 0, math.MinInt32, math.MaxInt32)
	if !ok {
		return
	}

	st := s.coord.Snapshot()
	list := chi.URLParam(r, "list")
	var values []any
	switch list {
	case "groups":
		values = toAny(st.VisibleGroups())
	case "streams":
		values = toAny(st.VisibleStreams())
	case "events":
		values = toAny(st.Events)
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown list %q (supported: groups, streams, events)", list))
		return
	}

	win := window.New(rowSize, overscan, extent)
	win.Offset = offset
	win.SetItemCount(len(values))
	if active >= 0 {
		win.SetActive(active)
	}
	if move != 0 {
		win.MoveActive(move)
	}

	visible, _ := window.Slice(values, win)
	rows := make([]viewRow, 0, len(visible))
	for i, it := range win.Items() {
		rows = append(rows, viewRow{Item: it, Value: visible[i]})
	}
	respondJSON(w, http.StatusOK, viewResponse{
		List:      list,
		Window:    *win,
		TotalSize: win.TotalSize(),
		Rows:      rows,
	})
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

// handleExport saves the events of the last applied search.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	st := s.coord.Snapshot()
	if st.LastCriteria == nil {
		respondError(w, http.StatusBadRequest, "no search results to export")
		return
	}
	e := &store.Export{Criteria: *st.LastCriteria, Events: st.Events}
	if err := s.config.Store.SaveExport(r.Context(), e); err != nil {
		respondFailure(w, err, "save export")
		return
	}
	respondJSON(w, http.StatusCreated, store.Summary{
		ID:         e.ID,
		CreatedAt:  e.CreatedAt,
		Criteria:   e.Criteria,
		EventCount: len(e.Events),
	})
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q", v))
			return
		}
		limit = n
	}
	exports, err := s.config.Store.ListExports(r.Context(), limit)
	if err != nil {
		respondFailure(w, err, "list exports")
		return
	}
	if exports == nil {
		exports = []store.Summary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"exports": exports})
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	e, err := s.config.Store.GetExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, err, "get export")
		return
	}
	respondJSON(w, http.StatusOK, e)
}
