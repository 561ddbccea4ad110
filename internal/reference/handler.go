package reference

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/routes"
)

// Handler serves the reference catalogs.
type Handler struct {
	catalog *Catalog
	logger  *slog.Logger
}

func NewHandler(catalog *Catalog, logger *slog.Logger) *Handler {
	return &Handler{
		catalog: catalog,
		logger:  logger.With("handler", "reference"),
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/physiography", Handler: h.Physiography},
			{Method: "GET", Pattern: "/forest-species", Handler: h.Species},
			{Method: "GET", Pattern: "/hd-model", Handler: h.HDModels},
			{Method: "GET", Pattern: "/allometric-models", Handler: h.AllometricModels},
		},
	}
}

func (h *Handler) Physiography(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.catalog.Physiographies())
}

func (h *Handler) Species(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.catalog.Species())
}

func (h *Handler) HDModels(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.catalog.HDModels())
}

// AllometricModels lists allometric models, optionally only those applicable
// to the species given by the species query parameter.
func (h *Handler) AllometricModels(w http.ResponseWriter, r *http.Request) {
	models := h.catalog.AllometricModels()

	if code := r.URL.Query().Get("species"); code != "" {
		filtered := models[:0]
		for _, m := range models {
			if m.AppliesTo(code) {
				filtered = append(filtered, m)
			}
		}
		models = filtered
	}

	handlers.RespondJSON(w, http.StatusOK, models)
}
