// Response HTTP handlers.
//
// This file exposes REST endpoints for form responses:
//   - POST   /public/forms/{url}/responses    (submit against a published form)
//   - GET    /responses/{id}                  (limited public projection)
//   - PUT    /responses/{id}                  (amend answers; plan-gated)
//   - GET    /forms/{id}/responses            (owner list, paginated)
//   - DELETE /forms/{id}/responses            (owner purge)
//   - GET    /forms/{id}/responses/export     (owner CSV download)
//   - DELETE /forms/{id}/responses/{rid}      (owner delete one)
//
// Handlers are transport-thin:
//   - validate & normalize inputs
//   - delegate to application services (ResponseService)
//   - implement idempotency semantics on the public submit path
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (subject, form, key), the handler returns that recorded
// response and sets `Idempotency-Replayed: true`. The subject is the user id
// when one is present and the client IP otherwise, so anonymous retries
// deduplicate too.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/formforge/go-forms-backend/internal/domain"
	"github.com/formforge/go-forms-backend/internal/repo"
	"github.com/formforge/go-forms-backend/internal/services"
)

//
// DTOs
//

// SubmitResponseRequest is the JSON payload for submitting or amending a
// response. Answer values are either a string or an array of strings,
// depending on the field type.
type SubmitResponseRequest struct {
	// Answers maps field keys to the respondent's values.
	Answers domain.AnswerMap `json:"answer" binding:"required"`
}

// SubmitResponseResponse is the JSON envelope for a stored response.
type SubmitResponseResponse struct {
	// Response is the stored response record.
	Response *domain.Response `json:"response"`
}

// ListResponsesResponse contains a page of responses and pagination metadata.
type ListResponsesResponse struct {
	Responses  []domain.Response `json:"responses"`
	Pagination Pagination        `json:"pagination"`
}

// PurgeResponsesResponse reports how many responses a purge removed.
type PurgeResponsesResponse struct {
	Deleted int64 `json:"deleted"`
}

//
// Helpers
//

// requester returns the current user id without the demo fallback: the
// public submit path needs to distinguish an anonymous visitor from a
// logged-in one.
func requester(c *gin.Context) string {
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
	return ""
}

// idempotencySubject keys the dedup record: the user id when present,
// otherwise the client IP.
func idempotencySubject(c *gin.Context) string {
	if uid := requester(c); uid != "" {
		return uid
	}
	return "ip:" + c.ClientIP()
}

// idempotencyKey reads a validated Idempotency-Key if one was supplied.
func idempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}

// failResponse maps the common ResponseService errors onto HTTP results. It
// returns false when err was nil and nothing was written.
func failResponse(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case err == services.ErrFormNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	case err == services.ErrResponseNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "response not found")
	case err == services.ErrForbidden:
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case err == services.ErrFormClosed:
		fail(c, http.StatusForbidden, ErrCodeFormClosed, "form is not accepting responses")
	case err == services.ErrAnonymousNotAllowed:
		fail(c, http.StatusUnauthorized, ErrCodeAnonymousDenied, "this form requires a signed-in respondent")
	case err == services.ErrPlanRequired:
		fail(c, http.StatusForbidden, ErrCodePlanRequired, err.Error())
	case err == services.ErrEditingDisabled:
		fail(c, http.StatusForbidden, ErrCodeFeatureDisabled, err.Error())
	case services.IsValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
	return true
}

//
// Handlers
//

// SubmitResponse godoc
// @ID          submitResponse
// @Summary     Submit a response to a published form
// @Description Validates the answers against the form's current visibility rules
// @Description and stores them. Answers to hidden fields are silently dropped;
// @Description visible required fields must be answered.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Responses
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Respondent user ID (omit for anonymous)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       url              path    string  true  "Public URL token"  example(a1b2c3d4e5)
// @Param       body             body    handlers.SubmitResponseRequest  true  "Answer payload"
//
// @Success     201  {object}  handlers.SubmitResponseResponse  "Stored response"
// @Failure     400  {object}  handlers.ErrorResponse           "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse           "Anonymous not allowed"
// @Failure     403  {object}  handlers.ErrorResponse           "Form closed"
// @Failure     404  {object}  handlers.ErrorResponse           "Form not found"
// @Failure     500  {object}  handlers.ErrorResponse           "Internal error"
// @Router      /public/forms/{url}/responses [post]
func (h *Handlers) SubmitResponse(c *gin.Context) {
	ctx := c.Request.Context()
	publicURL := c.Param("url")

	var req SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "answer payload required")
		return
	}

	uid := requester(c)
	subject := idempotencySubject(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := idempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.respSvc.(*services.ResponseService); okSvc && svc.DB != nil {
			if form, err := repo.GetFormByPublicURL(ctx, svc.DB, publicURL); err == nil {
				if rec, err := repo.GetIdempotency(ctx, svc.DB, subject, form.ID, idemKey, time.Now().UTC()); err == nil && rec != nil {
					if prev, err2 := repo.GetResponse(ctx, svc.DB, rec.ResponseID); err2 == nil {
						c.Header("Idempotency-Replayed", "true")
						ok(c, http.StatusCreated, SubmitResponseResponse{Response: prev})
						return
					}
				}
			}
		}
	}

	resp, err := h.respSvc.SubmitPublic(ctx, publicURL, req.Answers, uid)
	if failResponse(c, err) {
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.respSvc.(*services.ResponseService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, subject, resp.FormID, idemKey, resp.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, SubmitResponseResponse{Response: resp})
}

// GetResponse godoc
// @ID          getResponse
// @Summary     Read a response
// @Description Returns the limited public projection of a response: its answers,
// @Description submission time, and respondent id when known.
// @Tags        Responses
// @Produce     json
//
// @Param       id  path  string  true  "Response ID (UUID)"  format(uuid)
//
// @Success     200  {object} services.PublicResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Response not found"
// @Router      /responses/{id} [get]
func (h *Handlers) GetResponse(c *gin.Context) {
	responseID := c.Param("id")
	if _, err := uuid.Parse(responseID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "response id must be a UUID")
		return
	}

	view, err := h.respSvc.PublicView(c.Request.Context(), responseID)
	if failResponse(c, err) {
		return
	}
	ok(c, http.StatusOK, view)
}

// UpdateResponse godoc
// @ID          updateResponse
// @Summary     Amend a response
// @Description Replaces the answers of an existing response. Requires the form
// @Description owner's account to be on the paid tier and the form's editing
// @Description flag to be on; each gate fails with its own error code.
// @Tags        Responses
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Response ID (UUID)"  format(uuid)
// @Param       body  body  handlers.SubmitResponseRequest  true  "Replacement answers"
//
// @Success     200  {object} handlers.SubmitResponseResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Plan required or editing disabled"
// @Failure     404  {object} handlers.ErrorResponse "Response not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /responses/{id} [put]
func (h *Handlers) UpdateResponse(c *gin.Context) {
	responseID := c.Param("id")
	if _, err := uuid.Parse(responseID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "response id must be a UUID")
		return
	}

	var req SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "answer payload required")
		return
	}

	resp, err := h.respSvc.Update(c.Request.Context(), responseID, req.Answers)
	if failResponse(c, err) {
		return
	}
	ok(c, http.StatusOK, SubmitResponseResponse{Response: resp})
}

// ListResponses godoc
// @ID          listResponses
// @Summary     List a form's responses
// @Description Returns a paginated list of the form's responses, newest first.
// @Description Only the form owner may list.
// @Tags        Responses
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListResponsesResponse
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id}/responses [get]
func (h *Handlers) ListResponses(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.respSvc.ListForForm(c.Request.Context(), userID(c), formID, page, pageSize)
	if failResponse(c, err) {
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListResponsesResponse{
		Responses: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// DeleteResponse godoc
// @ID          deleteResponse
// @Summary     Delete one response
// @Description Removes a single response. Only the owner of its form may delete.
// @Tags        Responses
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
// @Param       rid        path    string  true  "Response ID (UUID)"     format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Response not found"
// @Router      /forms/{id}/responses/{rid} [delete]
func (h *Handlers) DeleteResponse(c *gin.Context) {
	responseID := c.Param("rid")
	if _, err := uuid.Parse(responseID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "response id must be a UUID")
		return
	}

	if err := h.respSvc.Delete(c.Request.Context(), userID(c), responseID); failResponse(c, err) {
		return
	}
	noContent(c)
}

// PurgeResponses godoc
// @ID          purgeResponses
// @Summary     Delete all responses of a form
// @Description Removes every response of the form and reports the count.
// @Tags        Responses
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
//
// @Success     200  {object} handlers.PurgeResponsesResponse
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id}/responses [delete]
func (h *Handlers) PurgeResponses(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	n, err := h.respSvc.DeleteAllForForm(c.Request.Context(), userID(c), formID)
	if failResponse(c, err) {
		return
	}
	ok(c, http.StatusOK, PurgeResponsesResponse{Deleted: n})
}

// ExportResponses godoc
// @ID          exportResponses
// @Summary     Export a form's responses as CSV
// @Description Streams one row per response in submission order, one column per
// @Description field in form field order, headed by the current field labels.
// @Tags        Responses
// @Produce     text/csv
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Form ID (UUID)"         format(uuid)
//
// @Success     200  {string} string "CSV body"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id}/responses/export [get]
func (h *Handlers) ExportResponses(c *gin.Context) {
	formID := c.Param("id")
	if _, err := uuid.Parse(formID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a UUID")
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="responses.csv"`)

	if err := h.respSvc.ExportCSV(c.Request.Context(), userID(c), formID, c.Writer); err != nil {
		// Headers may already be out; reset what we can and report.
		if !c.Writer.Written() {
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.Header("Content-Disposition", "")
			if !failResponse(c, err) {
				fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
			}
			return
		}
		c.Abort()
		return
	}
}
