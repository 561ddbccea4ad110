package imports

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/pkg/formatting"
	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/problem"
	"github.com/JaimeStill/mrv/pkg/routes"
)

// Handler provides the data-import endpoints of a project. Uploads, previews,
// and commits advance the pipeline.
type Handler struct {
	sys           System
	advance       pipeline.Advancer
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

func NewHandler(
	sys System,
	advance pipeline.Advancer,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		advance:       advance,
		logger:        logger.With("handler", "imports"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/projects/{id}/data-imports",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Upload},
			{Method: "GET", Pattern: "/{importId}", Handler: h.Find},
			{Method: "GET", Pattern: "/{importId}/rows", Handler: h.Rows},
			{Method: "GET", Pattern: "/{importId}/preview", Handler: h.Preview},
			{Method: "POST", Pattern: "/{importId}/create", Handler: h.Commit},
			{Method: "DELETE", Pattern: "/{importId}", Handler: h.Delete},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	result, err := h.sys.List(r.Context(), projectID, page)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Upload stores a multipart "file" and stages it through the import stage.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	projectID, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		limit := formatting.FormatBytes(h.maxUploadSize, 0)
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, problem.Invalid("upload exceeds "+limit+" or is malformed", problem.FieldError{
			Field:   "file",
			Message: err.Error(),
		}))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.Fail(w, h.logger, problem.Invalid("missing upload", problem.FieldError{Field: "file", Message: "is required"}))
		return
	}
	defer file.Close()

	cmd, err := h.sys.Upload(r.Context(), projectID, header.Filename, file, header.Header.Get("Content-Type"))
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	params, err := pipeline.EncodeParams(cmd)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	out, err := h.advance.Advance(r.Context(), projectID, pipeline.StageImport, params)
	pipeline.RespondOutcome(w, h.logger, out, err)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	projectID, importID, err := h.pathParams(r)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	b, err := h.sys.Find(r.Context(), projectID, importID)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, b)
}

func (h *Handler) Rows(w http.ResponseWriter, r *http.Request) {
	projectID, importID, err := h.pathParams(r)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	rows, err := h.sys.Rows(r.Context(), projectID, importID)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, rows)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	h.preview(w, r, true)
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	h.preview(w, r, false)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request, dryRun bool) {
	projectID, importID, err := h.pathParams(r)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	params, _ := json.Marshal(PreviewParams{ImportID: &importID, DryRun: dryRun})
	out, err := h.advance.Advance(r.Context(), projectID, pipeline.StagePreview, params)
	pipeline.RespondOutcome(w, h.logger, out, err)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, importID, err := h.pathParams(r)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	b, err := h.sys.Delete(r.Context(), projectID, importID)
	if err != nil {
		handlers.Fail(w, h.logger, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, b)
}

func (h *Handler) pathParams(r *http.Request) (projectID, importID uuid.UUID, err error) {
	projectID, err = handlers.PathUUID(r, "id")
	if err != nil {
		return
	}
	importID, err = handlers.PathUUID(r, "importId")
	return
}
