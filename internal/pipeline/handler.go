package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/problem"
	"github.com/JaimeStill/mrv/pkg/routes"
)

const maxParamsSize = 1 << 20

// Handler exposes pipeline state and stage advancement. Besides the generic
// advance endpoint, each stage without a domain handler of its own has a
// named endpoint.
type Handler struct {
	orch   *Orchestrator
	logger *slog.Logger
}

func NewHandler(orch *Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{
		orch:   orch,
		logger: logger.With("handler", "pipeline"),
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/projects/{id}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/pipeline", Handler: h.State, Summary: "Stage graph state with readiness"},
			{Method: "POST", Pattern: "/pipeline/{stage}", Handler: h.Advance, Summary: "Advance any stage"},

			h.advanceRoute("/data-quality-check", StageQualityCheck),
			h.advanceRoute("/hd-model/assign-models", StageHDAssignment),
			h.advanceRoute("/save-allometric-assignments", StageAllometricAssignment),

			h.advanceRoute("/height-prediction", StageHeightPrediction),
			h.statusRoute("/height-prediction/status", StageHeightPrediction),
			h.advanceRoute("/slanted-height-calculation", StageSlantedHeight),
			h.statusRoute("/slanted-height-calculation/status", StageSlantedHeight),
			h.advanceRoute("/volume-ratio-calculation", StageVolumeRatio),
			h.statusRoute("/volume-ratio-calculation/status", StageVolumeRatio),
			h.advanceRoute("/biomass-calculation", StageBiomass),
			h.statusRoute("/biomass-calculation-status", StageBiomass),
		},
	}
}

func (h *Handler) advanceRoute(pattern string, stage Stage) routes.Route {
	return routes.Route{
		Method:  "POST",
		Pattern: pattern,
		Handler: h.advance(stage),
		Summary: "Advance " + string(stage),
	}
}

func (h *Handler) statusRoute(pattern string, stage Stage) routes.Route {
	return routes.Route{
		Method:  "GET",
		Pattern: pattern,
		Handler: h.status(stage),
		Summary: "Latest " + string(stage) + " job",
	}
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	state, err := h.orch.State(r.Context(), projectID)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, state)
}

// Advance moves the project to the stage named in the path. The request
// body, when present, carries the stage params.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	stage, err := ParseStage(r.PathValue("stage"))
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}
	h.advance(stage)(w, r)
}

func (h *Handler) advance(stage Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := handlers.PathUUID(r, "id")
		if err != nil {
			handlers.Fail(w, h.logger, err)
			return
		}

		params, err := readParams(r)
		if err != nil {
			handlers.Fail(w, h.logger, err)
			return
		}

		out, err := h.orch.Advance(r.Context(), projectID, stage, params)
		RespondOutcome(w, h.logger, out, err)
	}
}

func (h *Handler) status(stage Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := handlers.PathUUID(r, "id")
		if err != nil {
			handlers.Fail(w, h.logger, err)
			return
		}

		job, err := h.orch.Latest(r.Context(), projectID, stage)
		if err != nil {
			handlers.Fail(w, h.logger, err)
			return
		}

		handlers.RespondJSON(w, http.StatusOK, job)
	}
}

func readParams(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxParamsSize))
	if err != nil {
		return nil, problem.Invalid("unreadable request body", problem.FieldError{Field: "body", Message: err.Error()})
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, problem.Invalid("malformed request body", problem.FieldError{Field: "body", Message: "must be JSON"})
	}
	return body, nil
}
