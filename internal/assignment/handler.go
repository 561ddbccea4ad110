package assignment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/routes"
)

// Handler provides the read endpoints of model assignment and species
// mapping maintenance. Assignment runs go through the pipeline.
type Handler struct {
	sys    System
	logger *slog.Logger
}

func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "assignment"),
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/projects/{id}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/physiography-options", Handler: h.PhysiographyOptions},
			{Method: "GET", Pattern: "/hd-model/physiography-summary", Handler: h.PhysiographySummary},
			{Method: "GET", Pattern: "/hd-model/assignments", Handler: h.HDAssignments},
			{Method: "GET", Pattern: "/hd-model/unassigned-records", Handler: h.UnassignedHD},
			{Method: "GET", Pattern: "/hd-model/species-mapping", Handler: h.Mappings},
			{Method: "POST", Pattern: "/hd-model/update-species-mapping", Handler: h.UpdateSpeciesMapping},
			{Method: "GET", Pattern: "/hd-relation/data", Handler: h.HDRelation},
			{Method: "GET", Pattern: "/allometric-assignment-status", Handler: h.AllometricStatus},
			{Method: "GET", Pattern: "/allometric-assignment", Handler: h.AllometricAssignments},
			{Method: "GET", Pattern: "/allometric-assignment/unassigned-records", Handler: h.UnassignedAllometric},
		},
	}
}

// MappingRequest carries species mappings to upsert.
type MappingRequest struct {
	Mappings []SpeciesMapping `json:"mappings"`
}

func (h *Handler) PhysiographyOptions(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.PhysiographyOptions)
}

func (h *Handler) PhysiographySummary(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.PhysiographySummary)
}

func (h *Handler) HDAssignments(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.HDAssignments)
}

func (h *Handler) UnassignedHD(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.UnassignedHD)
}

func (h *Handler) Mappings(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.Mappings)
}

func (h *Handler) HDRelation(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.HDRelation)
}

func (h *Handler) AllometricStatus(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.AllometricStatus)
}

func (h *Handler) AllometricAssignments(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.AllometricAssignments)
}

func (h *Handler) UnassignedAllometric(w http.ResponseWriter, r *http.Request) {
	read(h, w, r, h.sys.UnassignedAllometric)
}

func (h *Handler) UpdateSpeciesMapping(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	var req MappingRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	n, err := h.sys.UpdateSpeciesMappings(r.Context(), projectID, req.Mappings)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, map[string]int{"changed": n})
}

func read[T any](h *Handler, w http.ResponseWriter, r *http.Request, fetch func(context.Context, uuid.UUID) (T, error)) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	v, err := fetch(r.Context(), projectID)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, v)
}
