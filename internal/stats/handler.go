package stats

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/JaimeStill/tally/internal/answers"
	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/routes"
)

// Handler provides HTTP endpoints for answer recording, visit events, and statistics.
type Handler struct {
	sys    System
	source explorations.Source
	logger *slog.Logger
}

// RecordAnswersRequest carries answers for one state. A zero ExpVersion
// records against the latest exploration version.
type RecordAnswersRequest struct {
	ExpVersion int                       `json:"exp_version"`
	Answers    []answers.SubmittedAnswer `json:"answers"`
}

// TopAnswersRequest selects states and classification categories.
type TopAnswersRequest struct {
	Refs       []StateRef `json:"refs"`
	Categories []string   `json:"categories"`
}

// UnresolvedRequest lists the explorations to summarize.
type UnresolvedRequest struct {
	ExpIDs []string `json:"exp_ids"`
}

// NewHandler creates a Handler. source resolves explorations for recorded answers.
func NewHandler(sys System, source explorations.Source, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		source: source,
		logger: logger.With("handler", "stats"),
	}
}

// Routes returns the route groups for answers, events, and stats endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Children: []routes.Group{
			{
				Prefix: "/answers",
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/{expId}/states/{state}", Handler: h.RecordAnswers},
					{Method: "GET", Pattern: "/{expId}/versions/{version}/states/{state}", Handler: h.StateAnswers},
				},
			},
			{
				Prefix: "/events",
				Routes: []routes.Route{
					{Method: "POST", Pattern: "", Handler: h.RecordEvent},
				},
			},
			{
				Prefix: "/stats",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "/{expId}/versions", Handler: h.Versions},
					{Method: "GET", Pattern: "/{expId}/versions/{version}", Handler: h.ExplorationStats},
					{Method: "GET", Pattern: "/{expId}/states/{state}/visualizations", Handler: h.Visualizations},
					{Method: "POST", Pattern: "/top-answers", Handler: h.TopAnswers},
					{Method: "POST", Pattern: "/unresolved", Handler: h.Unresolved},
					{Method: "POST", Pattern: "/aggregate", Handler: h.Aggregate},
					{Method: "GET", Pattern: "/aggregate", Handler: h.LastPass},
				},
			},
		},
	}
}

// RecordAnswers validates and appends answers to a state's log. Returns 204.
func (h *Handler) RecordAnswers(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[RecordAnswersRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	expID := r.PathValue("expId")

	var exp *explorations.Exploration
	if req.ExpVersion > 0 {
		exp, err = h.source.GetVersion(r.Context(), expID, req.ExpVersion)
	} else {
		exp, err = h.source.Get(r.Context(), expID)
	}
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if err := h.sys.RecordAnswers(r.Context(), exp, r.PathValue("state"), req.Answers); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StateAnswers returns every answer of one exploration version state.
func (h *Handler) StateAnswers(w http.ResponseWriter, r *http.Request) {
	version, err := parseVersion(r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	expID, state := r.PathValue("expId"), r.PathValue("state")

	sa, err := h.sys.GetStateAnswers(r.Context(), expID, version, state)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	if sa == nil {
		err := fmt.Errorf("%w: %s v%d %s", ErrNoAnswers, expID, version, state)
		handlers.RespondError(w, h.logger, http.StatusNotFound, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, sa)
}

// RecordEvent stores a learner visit event. Returns 201 with the stored event.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	e, err := handlers.DecodeJSON[Event](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	stored, err := h.sys.RecordEvent(r.Context(), e)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, stored)
}

// Versions lists the exploration versions that have stats.
func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.sys.GetVersionsForExplorationStats(r.Context(), r.PathValue("expId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, versions)
}

// ExplorationStats returns the statistics summary of an exploration version.
func (h *Handler) ExplorationStats(w http.ResponseWriter, r *http.Request) {
	version, err := parseVersion(r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	report, err := h.sys.GetExplorationStats(r.Context(), r.PathValue("expId"), version)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

// Visualizations returns the visualizations of a state that have data.
func (h *Handler) Visualizations(w http.ResponseWriter, r *http.Request) {
	info, err := h.sys.GetVisualizationsInfo(r.Context(), r.PathValue("expId"), r.PathValue("state"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, info)
}

// TopAnswers returns ranked answers for each requested state, in request order.
func (h *Handler) TopAnswers(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[TopAnswersRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	lists, err := h.sys.GetTopStateRuleAnswersMulti(r.Context(), req.Refs, req.Categories)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, lists)
}

// Unresolved returns default-outcome answers per exploration.
func (h *Handler) Unresolved(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[UnresolvedRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.GetExpsUnresolvedAnswersForDefaultRule(r.Context(), req.ExpIDs)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Aggregate triggers a pass. With ?wait=true the pass runs within the request
// and its result is returned; otherwise the scheduler is signalled and 202 returned.
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		result, err := h.sys.Aggregate(r.Context())
		if err != nil {
			handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
			return
		}
		handlers.RespondJSON(w, http.StatusOK, result)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, map[string]bool{"triggered": h.sys.Trigger()})
}

// LastPass returns the result of the most recent pass. Returns 204 before the first.
func (h *Handler) LastPass(w http.ResponseWriter, r *http.Request) {
	result := h.sys.LastPass()
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func parseVersion(r *http.Request) (int, error) {
	v, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || v < 1 {
		return 0, errors.New("version must be a positive integer")
	}
	return v, nil
}
