package cleaning

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/routes"
)

type Handler struct {
	sys        System
	advance    pipeline.Advancer
	logger     *slog.Logger
	pagination pagination.Config
}

func NewHandler(sys System, advance pipeline.Advancer, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		advance:    advance,
		logger:     logger.With("handler", "cleaning"),
		pagination: pagination,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/projects/{id}/data-cleaning",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/summary", Handler: h.Summary},
			{Method: "POST", Pattern: "/remove-ignored", Handler: h.RemoveIgnored},
			{Method: "GET", Pattern: "/view-records", Handler: h.ViewRecords},
		},
	}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	summary, err := h.sys.Summary(r.Context(), projectID)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, summary)
}

// RemoveIgnored advances the project to the cleaning stage.
func (h *Handler) RemoveIgnored(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	out, err := h.advance.Advance(r.Context(), projectID, pipeline.StageCleaning, nil)
	pipeline.RespondOutcome(w, h.logger, out, err)
}

func (h *Handler) ViewRecords(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	result, err := h.sys.ViewRecords(r.Context(), projectID, page, records.FiltersFromQuery(r.URL.Query()))
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
