package classifiers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/routes"
)

// Handler provides HTTP endpoints for classifier operations.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// TrainRequest selects the algorithm for a training job. An empty body uses the default.
type TrainRequest struct {
	AlgorithmID string `json:"algorithm_id"`
}

// PredictRequest carries the documents to classify.
type PredictRequest struct {
	Docs []string `json:"docs"`
}

// PredictResponse pairs each submitted document with its predicted label.
type PredictResponse struct {
	ClassifierID string   `json:"classifier_id"`
	Labels       []string `json:"labels"`
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "classifiers"),
	}
}

// Routes returns the route group definition for classifier endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/classifiers",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/jobs/{id}", Handler: h.Job},
			{Method: "GET", Pattern: "/{expId}/states/{state}", Handler: h.FindByState},
			{Method: "POST", Pattern: "/{expId}/states/{state}/train", Handler: h.Train},
			{Method: "POST", Pattern: "/{expId}/states/{state}/predict", Handler: h.Predict},
			{Method: "DELETE", Pattern: "/{expId}", Handler: h.DeleteByExploration},
		},
	}
}

// FindByState returns the installed classifier record of a state.
func (h *Handler) FindByState(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sys.FindByState(r.Context(), r.PathValue("expId"), r.PathValue("state"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, rec.ToDict())
}

// Train queues a background training job for a state. Returns 202 with the job.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if r.ContentLength > 0 {
		decoded, err := handlers.DecodeJSON[TrainRequest](r)
		if err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
			return
		}
		req = decoded
	}

	job, err := h.sys.Enqueue(r.PathValue("expId"), r.PathValue("state"), req.AlgorithmID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, job)
}

// Job returns the status of a training job.
func (h *Handler) Job(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	job, err := h.sys.Job(id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}

// Predict classifies documents with the state's installed classifier.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[PredictRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	expID, state := r.PathValue("expId"), r.PathValue("state")

	rec, err := h.sys.FindByState(r.Context(), expID, state)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	labels, err := h.sys.Classify(r.Context(), expID, state, req.Docs)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, PredictResponse{
		ClassifierID: rec.ClassifierID,
		Labels:       labels,
	})
}

// DeleteByExploration removes every classifier of an exploration.
func (h *Handler) DeleteByExploration(w http.ResponseWriter, r *http.Request) {
	if err := h.sys.DeleteByExploration(r.Context(), r.PathValue("expId")); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
