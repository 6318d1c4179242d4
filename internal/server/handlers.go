package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Nao-Mk2/aws-log-browser/internal/errclass"
	"github.com/Nao-Mk2/aws-log-browser/internal/model"
	"github.com/Nao-Mk2/aws-log-browser/internal/paginate"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListGroups aggregates the whole catalog before responding.
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := paginate.FetchAll(r.Context(), s.config.Backend.ListGroups)
	if err != nil {
		respondFailure(w, err, "list log groups")
		return
	}
	if groups == nil {
		groups = []model.LogGroup{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"logGroups": groups})
}

type streamsRequest struct {
	LogGroupName string `json:"logGroupName"`
}

// handleListStreams reads the group from the body, falling back to the
// (escaped) path segment.
func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	pathGroup := chi.URLParam(r, "group")
	if decoded, err := url.PathUnescape(pathGroup); err == nil {
		pathGroup = decoded
	}

	var req streamsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	group := req.LogGroupName
	switch {
	case group == "":
		group = pathGroup
	case pathGroup != "" && pathGroup != group:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("logGroupName %q does not match path group %q", group, pathGroup))
		return
	}
	if group == "" {
		respondError(w, http.StatusBadRequest, model.ErrMissingGroup.Error())
		return
	}

	streams, err := paginate.FetchAll(r.Context(), func(ctx context.Context, token *string) (model.Page[model.LogStream], error) {
		return s.config.Backend.ListStreams(ctx, group, token)
	})
	if err != nil {
		respondFailure(w, err, "list log streams of "+group)
		return
	}
	if streams == nil {
		streams = []model.LogStream{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"logStreams": streams})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var criteria model.SearchCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := criteria.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if criteria.StartTime != nil && criteria.EndTime != nil && criteria.StartTime.After(*criteria.EndTime) {
		respondError(w, http.StatusBadRequest, "startTime is after endTime")
		return
	}

	events, err := s.config.Backend.Search(r.Context(), criteria.Normalized())
	if err != nil {
		respondFailure(w, err, "search events in "+criteria.GroupName)
		return
	}
	if events == nil {
		events = []model.LogEvent{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondFailure classifies a failure onto the wire. Backend failures map to
// 401 or 500; local validation and missing exports map to 400 and 404.
// Failed listings are tagged with fetchFailed.
func respondFailure(w http.ResponseWriter, err error, action string) {
	ce := errclass.Wrap(err, action)
	status := errclass.HTTPStatus(ce.Kind)
	switch {
	case ce.Kind == errclass.ValidationFailed && ce.Err == nil:
		status = http.StatusBadRequest
	case errors.Is(err, errclass.ErrNotFound):
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError {
		log.Printf("%s: %v", action, err)
	}
	body := map[string]any{
		"error": ce.Message,
		"kind":  ce.Kind.String(),
	}
	if errclass.IsFetchFailed(err) {
		body["fetchFailed"] = true
	}
	respondJSON(w, status, body)
}
