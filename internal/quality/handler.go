package quality

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/routes"
)

// Handler provides the data-quality endpoints of a project. Scans are
// started through the pipeline.
type Handler struct {
	sys    System
	logger *slog.Logger
}

func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "quality"),
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/projects/{id}/data-quality-check",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.Summary},
			{Method: "GET", Pattern: "/{issueType}/details", Handler: h.Details},
			{Method: "GET", Pattern: "/{issueType}/ignored-records", Handler: h.Ignored},
			{Method: "POST", Pattern: "/update-record", Handler: h.UpdateRecord},
			{Method: "POST", Pattern: "/bulk-update", Handler: h.BulkUpdate},
			{Method: "POST", Pattern: "/ignore-records", Handler: h.Ignore},
			{Method: "POST", Pattern: "/unignore-records", Handler: h.Unignore},
		},
	}
}

// DecisionRequest names records to ignore or unignore for one issue type.
type DecisionRequest struct {
	IssueType string      `json:"issue_type"`
	RecordIDs []uuid.UUID `json:"record_ids"`
}

// UpdateRequest corrects one record.
type UpdateRequest struct {
	RecordID uuid.UUID     `json:"record_id"`
	Patch    records.Patch `json:"patch"`
}

// BulkRequest corrects several records, either with one patch per record or
// with a shared patch applied to every id in RecordIDs.
type BulkRequest struct {
	Updates   []records.Update `json:"updates,omitempty"`
	RecordIDs []uuid.UUID      `json:"record_ids,omitempty"`
	Patch     *records.Patch   `json:"patch,omitempty"`
}

// Expand flattens the request into one update per record.
func (b BulkRequest) Expand() []records.Update {
	out := append([]records.Update(nil), b.Updates...)
	if b.Patch != nil {
		for _, id := range b.RecordIDs {
			out = append(out, records.Update{RecordID: id, Patch: *b.Patch})
		}
	}
	return out
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

func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	projectID, issueType, err := h.pathParams(r)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	details, err := h.sys.Details(r.Context(), projectID, issueType)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, details)
}

func (h *Handler) Ignored(w http.ResponseWriter, r *http.Request) {
	projectID, issueType, err := h.pathParams(r)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	recs, err := h.sys.Ignored(r.Context(), projectID, issueType)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, recs)
}

func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	var req UpdateRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	rec, err := h.sys.UpdateRecord(r.Context(), projectID, req.RecordID, req.Patch)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, rec)
}

func (h *Handler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	var req BulkRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	n, err := h.sys.BulkUpdate(r.Context(), projectID, req.Expand())
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) Ignore(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.sys.Ignore)
}

func (h *Handler) Unignore(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.sys.Unignore)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID, []uuid.UUID, IssueType) (int, error)) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	var req DecisionRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	issueType, err := ParseType(req.IssueType)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	n, err := apply(r.Context(), projectID, req.RecordIDs, issueType)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, map[string]int{"changed": n})
}

func (h *Handler) pathParams(r *http.Request) (uuid.UUID, IssueType, error) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		return uuid.Nil, "", err
	}
	issueType, err := ParseType(r.PathValue("issueType"))
	if err != nil {
		return uuid.Nil, "", err
	}
	return projectID, issueType, nil
}
