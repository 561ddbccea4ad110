package export

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/routes"
)

type Handler struct {
	sys     System
	advance pipeline.Advancer
	logger  *slog.Logger
}

func NewHandler(sys System, advance pipeline.Advancer, logger *slog.Logger) *Handler {
	return &Handler{
		sys:     sys,
		advance: advance,
		logger:  logger.With("handler", "export"),
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/projects/{id}",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/export-tree-biometric-calc", Handler: h.Export},
			{Method: "GET", Pattern: "/exports/{name}", Handler: h.Download},
		},
	}
}

// Export advances the project to the export stage. The optional body
// selects the format.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	var p Params
	if r.ContentLength != 0 {
		if err := handlers.DecodeJSON(r, &p); err != nil {
			handlers.Fail(w, h.logger, err)
			return
		}
	}
	if f := r.URL.Query().Get("format"); f != "" {
		p.Format = Format(f)
	}

	params, err := pipeline.EncodeParams(p)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	out, err := h.advance.Advance(r.Context(), projectID, pipeline.StageExport, params)
	pipeline.RespondOutcome(w, h.logger, out, err)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}
	name := r.PathValue("name")

	blob, err := h.sys.Download(r.Context(), projectID, name)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}
	defer blob.Body.Close()

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if blob.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, blob.Body); err != nil {
		h.logger.Warn("export download interrupted", "name", name, "error", err)
	}
}
