package jobs

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/routes"
)

// HTTPHandler exposes job status and cancellation over HTTP.
type HTTPHandler struct {
	tracker *Tracker
	logger  *slog.Logger
}

func NewHTTPHandler(tracker *Tracker, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		tracker: tracker,
		logger:  logger.With("handler", "jobs"),
	}
}

func (h *HTTPHandler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/jobs/{id}", Handler: h.Status},
			{Method: "POST", Pattern: "/jobs/{id}/cancel", Handler: h.Cancel},
			{Method: "GET", Pattern: "/projects/{id}/jobs", Handler: h.List},
		},
	}
}

func (h *HTTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	job, err := h.tracker.Status(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	job, err := h.tracker.Cancel(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}

func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	jobs, err := h.tracker.List(r.Context(), projectID)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}

	handlers.RespondJSON(w, http.StatusOK, jobs)
}
