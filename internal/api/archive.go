package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/routes"
	"github.com/JaimeStill/tally/pkg/storage"
)

// archivePrefix is the blob key prefix of archived classifier models.
const archivePrefix = "classifiers/"

type archiveHandler struct {
	store  storage.System
	paging pagination.Config
	logger *slog.Logger
}

func newArchiveHandler(store storage.System, paging pagination.Config, logger *slog.Logger) *archiveHandler {
	return &archiveHandler{
		store:  store,
		paging: paging,
		logger: logger.With("handler", "archive"),
	}
}

func (h *archiveHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/archive",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.list},
			{Method: "GET", Pattern: "/{key...}", Handler: h.download},
		},
	}
}

// list returns a page of archived models, optionally narrowed to one
// exploration (?exp_id=) or one state (?exp_id=&state=).
func (h *archiveHandler) list(w http.ResponseWriter, r *http.Request) {
	prefix := archivePrefix
	if expID := r.URL.Query().Get("exp_id"); expID != "" {
		prefix += expID + "/"
		if state := r.URL.Query().Get("state"); state != "" {
			prefix += state + "/"
		}
	}

	blobs, err := h.store.List(r.Context(), prefix)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	page := pagination.Slice(blobs, pagination.FromQuery(r.URL.Query(), h.paging))
	handlers.RespondJSON(w, http.StatusOK, page)
}

func (h *archiveHandler) download(w http.ResponseWriter, r *http.Request) {
	key := archivePrefix + r.PathValue("key")

	body, err := h.store.Download(r.Context(), key)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("archive download interrupted", "key", key, "error", err)
	}
}
