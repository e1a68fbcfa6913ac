// Form HTTP handlers.
//
// This file exposes REST endpoints for form resources:
//   - POST   /forms                (create)
//   - GET    /forms                (list for the current user)
//   - GET    /forms/{id}           (read full definition)
//   - PATCH  /forms/{id}           (partial update; always unpublishes)
//   - POST   /forms/{id}/publish   (go live, mint public token)
//   - POST   /forms/{id}/clone     (deep copy with fresh field keys)
//   - DELETE /forms/{id}           (cascade delete with responses)
//   - GET    /forms/{id}/stats     (response aggregates)
//   - GET    /public/forms/{url}   (unauthenticated respondent view)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/formforge/go-forms-backend/internal/domain"
	"github.com/formforge/go-forms-backend/internal/repo"
	"github.com/formforge/go-forms-backend/internal/services"
	"github.com/formforge/go-forms-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// FormService defines form lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type FormService interface {
	// Create starts a new unpublished form for ownerID.
	Create(ctx context.Context, ownerID, title, description string) (*domain.Form, error)
	// Get returns the full definition of a form the owner may see.
	Get(ctx context.Context, ownerID, formID string) (*domain.Form, error)
	// List returns all forms belonging to ownerID, most recent first.
	List(ctx context.Context, ownerID string) ([]domain.Form, error)
	// Update applies a partial patch and clears the published flag.
	Update(ctx context.Context, ownerID, formID string, patch services.FormPatch) (*domain.Form, error)
	// Publish makes the form live, minting a public token on first publish.
	Publish(ctx context.Context, ownerID, formID string) (*domain.Form, error)
	// Clone deep-copies a form for the same owner.
	Clone(ctx context.Context, ownerID, formID string) (*domain.Form, error)
	// Delete removes the form together with its responses.
	Delete(ctx context.Context, ownerID, formID string) error
	// PublicView resolves a public token to a respondent-facing projection.
	PublicView(ctx context.Context, url string) (*services.PublicForm, error)
	// Stats returns response aggregates for the owner's form.
	Stats(ctx context.Context, ownerID, formID string) (repo.FormStats, error)
}

// ResponseService defines response operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ResponseService interface {
	// Submit validates and persists a response against formID.
	Submit(ctx context.Context, formID string, answers domain.AnswerMap, requesterID string) (*domain.Response, error)
	// SubmitPublic resolves a public token and submits against it.
	SubmitPublic(ctx context.Context, publicURL string, answers domain.AnswerMap, requesterID string) (*domain.Response, error)
	// Update replaces the answers of an existing response (plan-gated).
	Update(ctx context.Context, responseID string, answers domain.AnswerMap) (*domain.Response, error)
	// Get returns a response for the owner of its form.
	Get(ctx context.Context, ownerID, responseID string) (*domain.Response, error)
	// PublicView returns the limited projection of a response.
	PublicView(ctx context.Context, responseID string) (*services.PublicResponse, error)
	// ListForForm returns a page of the form's responses and the total count.
	ListForForm(ctx context.Context, ownerID, formID string, page, pageSize int) ([]domain.Response, int64, error)
	// Delete removes one response.
	Delete(ctx context.Context, ownerID, responseID string) error
	// DeleteAllForForm removes every response of the form.
	DeleteAllForForm(ctx context.Context, ownerID, formID string) (int64, error)
	// ExportCSV streams the form's responses to w as CSV.
	ExportCSV(ctx context.Context, ownerID, formID string, w io.Writer) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for forms and responses. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	formSvc FormService
	respSvc ResponseService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(formSvc FormService, respSvc ResponseService) *Handlers {
	return &Handlers{formSvc: formSvc, respSvc: respSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateFormRequest is the JSON payload for creating a form.
type CreateFormRequest struct {
	// Title names the form (required, 1–255 chars).
	Title string `json:"title" binding:"required,min=1,max=255" example:"Customer feedback"`
	// Description optionally explains the form to respondents.
	Description string `json:"description" example:"Tell us how we did"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListFormsResponse wraps the user's form list.
type ListFormsResponse struct {
	Forms []domain.Form `json:"forms"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failForm maps the common FormService errors onto HTTP results. It returns
// false when err was nil and nothing was written.
func failForm(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case err == services.ErrFormNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	case err == services.ErrForbidden:
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case services.IsValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	case err == services.ErrPublicURLConflict:
		fail(c, http.StatusConflict, ErrCodeConflict, "could not allocate a public URL")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
	return true
}

//
// Handlers
//

// CreateForm godoc
// @ID          createForm
// @Summary     Create a new form
// @Description Creates an empty unpublished form for the current user and returns it.
// @Tags        Forms
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateFormRequest  true  "Create form payload"
//
// @Success     201  {object}  domain.Form
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /forms [post]
func (h *Handlers) CreateForm(c *gin.Context) {
	var req CreateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1–255 chars)")
		return
	}

	f, err := h.formSvc.Create(c.Request.Context(), userID(c), req.Title, req.Description)
	if err != nil {
		if services.IsValidation(err) {
			fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, f)
}

// ListForms godoc
// @ID          listForms
// @Summary     List the user's forms
// @Description Returns all forms owned by the current user, most recently updated first.
// @Tags        Forms
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} handlers.ListFormsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /forms [get]
func (h *Handlers) ListForms(c *gin.Context) {
	items, err := h.formSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListFormsResponse{Forms: items})
}

// GetForm godoc
// @ID          getForm
// @Summary     Get a form definition
// @Description Returns the full form aggregate (fields and conditions) for its owner.
// @Tags        Forms
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
//
// @Success     200  {object} domain.Form
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id} [get]
func (h *Handlers) GetForm(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	f, err := h.formSvc.Get(c.Request.Context(), userID(c), formID)
	if failForm(c, err) {
		return
	}
	ok(c, http.StatusOK, f)
}

// UpdateForm godoc
// @ID          updateForm
// @Summary     Update a form
// @Description Applies a partial patch to the form definition. Any successful
// @Description update takes the form offline again; publishing is a separate call.
// @Tags        Forms
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
// @Param       body       body    services.FormPatch  true  "Partial form patch"
//
// @Success     200  {object} domain.Form
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /forms/{id} [patch]
func (h *Handlers) UpdateForm(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	var patch services.FormPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	f, err := h.formSvc.Update(c.Request.Context(), userID(c), formID, patch)
	if failForm(c, err) {
		return
	}
	ok(c, http.StatusOK, f)
}

// PublishForm godoc
// @ID          publishForm
// @Summary     Publish a form
// @Description Makes the form live. The first publish mints a stable public URL
// @Description token; republishing after edits reuses it.
// @Tags        Forms
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
//
// @Success     200  {object} domain.Form
// @Failure     400  {object} handlers.ErrorResponse "Form has no fields"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Failure     409  {object} handlers.ErrorResponse "Public URL conflict"
// @Router      /forms/{id}/publish [post]
func (h *Handlers) PublishForm(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	f, err := h.formSvc.Publish(c.Request.Context(), userID(c), formID)
	if failForm(c, err) {
		return
	}
	ok(c, http.StatusOK, f)
}

// CloneForm godoc
// @ID          cloneForm
// @Summary     Clone a form
// @Description Deep-copies the form for the same owner. The copy gets fresh field
// @Description keys, rewritten conditions, no public URL, and starts unpublished.
// @Tags        Forms
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
//
// @Success     201  {object} domain.Form
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /forms/{id}/clone [post]
func (h *Handlers) CloneForm(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	f, err := h.formSvc.Clone(c.Request.Context(), userID(c), formID)
	if failForm(c, err) {
		return
	}
	ok(c, http.StatusCreated, f)
}

// DeleteForm godoc
// @ID          deleteForm
// @Summary     Delete a form
// @Description Removes the form and all of its responses in one transaction.
// @Tags        Forms
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id} [delete]
func (h *Handlers) DeleteForm(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	if err := h.formSvc.Delete(c.Request.Context(), userID(c), formID); failForm(c, err) {
		return
	}
	noContent(c)
}

// FormStats godoc
// @ID          formStats
// @Summary     Response statistics for a form
// @Description Returns the total response count, the timestamp of the latest
// @Description response, and the count over the trailing seven days.
// @Tags        Forms
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
//
// @Success     200  {object} repo.FormStats
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id}/stats [get]
func (h *Handlers) FormStats(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	stats, err := h.formSvc.Stats(c.Request.Context(), userID(c), formID)
	if failForm(c, err) {
		return
	}
	ok(c, http.StatusOK, stats)
}

// PublicForm godoc
// @ID          publicForm
// @Summary     Public view of a published form
// @Description Resolves a public URL token to the respondent-facing form
// @Description projection. Drafts and unknown tokens both read as 404.
// @Tags        Public
// @Produce     json
//
// @Param       url  path  string  true  "Public URL token"  example(a1b2c3d4e5)
//
// @Success     200  {object} services.PublicForm
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /public/forms/{url} [get]
func (h *Handlers) PublicForm(c *gin.Context) {
	view, err := h.formSvc.PublicView(c.Request.Context(), c.Param("url"))
	if failForm(c, err) {
		return
	}
	ok(c, http.StatusOK, view)
}
