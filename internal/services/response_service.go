// Package services – ResponseService
//
// This file implements the ResponseService, which handles the respondent
// side of the system: submitting against a published form, the plan-gated
// amendment of an existing response, owner reads and deletions, and the CSV
// export. Submissions are validated through the same visibility evaluator
// the render path uses, so a respondent can never smuggle an answer into a
// field the declared rules currently hide.
package services

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/formforge/go-forms-backend/internal/domain"
	"github.com/formforge/go-forms-backend/internal/logic"
	"github.com/formforge/go-forms-backend/internal/repo"
)

// ResponseService implements the use-cases around form responses. It is
// context-aware; writes that span multiple rows run inside transactions
// opened through the repo layer.
type ResponseService struct {
	// DB is the database handle used for all response operations.
	DB *gorm.DB

	// ExportLocale selects the casing rules for the fixed CSV header
	// columns. Zero value falls back to English.
	ExportLocale language.Tag
}

// Submit validates and persists a new response to formID. requesterID is
// empty for anonymous visitors.
//
// Semantics and validation:
//   - The form must exist (ErrFormNotFound) and be published (ErrFormClosed).
//   - Anonymous submission requires the form's AllowAnonymous flag
//     (ErrAnonymousNotAllowed otherwise).
//   - Answers keyed by unknown field keys are discarded.
//   - Answers for fields the evaluator currently hides are discarded, not
//     rejected: the respondent may have answered a field before a later
//     answer hid it again.
//   - Visible required fields must carry a non-empty answer
//     (*ValidationError otherwise).
//   - Checkbox answers are normalized to list form; scalar fields keep their
//     scalar shape.
func (s *ResponseService) Submit(ctx context.Context, formID string, answers domain.AnswerMap, requesterID string) (*domain.Response, error) {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("form.id", formID)),
	)
	defer span.End()

	form, err := repo.GetForm(ctx, s.DB, formID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	if !form.IsPublished {
		return nil, ErrFormClosed
	}
	if !form.AllowAnonymous && requesterID == "" {
		return nil, ErrAnonymousNotAllowed
	}

	clean, err := sanitizeAnswers(form, answers)
	if err != nil {
		return nil, err
	}

	var userID *string
	if requesterID != "" {
		userID = &requesterID
	}
	return repo.CreateResponse(ctx, s.DB, form.ID, userID, clean)
}

// SubmitPublic resolves a public token and submits against the form behind
// it. Unknown tokens read as ErrFormNotFound, same as the public view.
func (s *ResponseService) SubmitPublic(ctx context.Context, publicURL string, answers domain.AnswerMap, requesterID string) (*domain.Response, error) {
	form, err := repo.GetFormByPublicURL(ctx, s.DB, publicURL)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return s.Submit(ctx, form.ID, answers, requesterID)
}

// sanitizeAnswers filters an incoming answer map down to the legally
// submittable part of the form and enforces required fields. Visibility is
// computed from the raw submission so hidden-field answers influence nothing
// but their own removal.
func sanitizeAnswers(form *domain.Form, answers domain.AnswerMap) (domain.AnswerMap, error) {
	visible := logic.Visible(form.Fields, form.Conditions, answers)

	clean := make(domain.AnswerMap, len(answers))
	for i := range form.Fields {
		f := &form.Fields[i]
		if !visible[f.FieldKey] {
			continue
		}

		v, answered := answers[f.FieldKey]
		if !answered || v.IsZero() {
			if f.Required {
				return nil, validationf("field %q is required", f.FieldKey)
			}
			continue
		}
		if f.Type.MultiValued() && !v.IsList {
			v = domain.AnswerList(v.Scalar)
		}
		clean[f.FieldKey] = v
	}
	return clean, nil
}

// Update replaces the answer map of an existing response.
//
// Both gates must hold, and each failure is reported distinctly:
//   - The form owner's account must be on the paid tier (ErrPlanRequired).
//   - The form's AllowEditing flag must be on (ErrEditingDisabled).
//
// The write path replaces the map as-is; re-running the evaluator against
// the amended answers is the render-time caller's job.
func (s *ResponseService) Update(ctx context.Context, responseID string, answers domain.AnswerMap) (*domain.Response, error) {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("response.id", responseID)),
	)
	defer span.End()

	resp, err := repo.GetResponse(ctx, s.DB, responseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrResponseNotFound
		}
		return nil, err
	}
	form, err := repo.GetForm(ctx, s.DB, resp.FormID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrResponseNotFound
		}
		return nil, err
	}

	plan, err := repo.GetUserPlan(ctx, s.DB, form.OwnerID)
	if err != nil {
		return nil, err
	}
	if plan != domain.PlanPaid {
		return nil, ErrPlanRequired
	}
	if !form.AllowEditing {
		return nil, ErrEditingDisabled
	}

	if err := repo.UpdateResponseAnswers(ctx, s.DB, responseID, answers); err != nil {
		return nil, err
	}
	resp.Answers = answers
	return resp, nil
}

// Get returns a response for the owner of its form; ErrForbidden otherwise.
func (s *ResponseService) Get(ctx context.Context, ownerID, responseID string) (*domain.Response, error) {
	resp, form, err := s.getWithForm(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if form.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return resp, nil
}

// PublicResponse is the limited projection of a response exposed without
// owner authorization: the answers, when they were submitted, and by whom
// (nil for anonymous).
type PublicResponse struct {
	Answers     domain.AnswerMap `json:"answer"`
	SubmittedAt time.Time        `json:"submitted_at"`
	UserID      *string          `json:"user_id"`
}

// PublicView returns the limited projection of a response.
func (s *ResponseService) PublicView(ctx context.Context, responseID string) (*PublicResponse, error) {
	resp, err := repo.GetResponse(ctx, s.DB, responseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrResponseNotFound
		}
		return nil, err
	}
	return &PublicResponse{
		Answers:     resp.Answers,
		SubmittedAt: resp.SubmittedAt,
		UserID:      resp.UserID,
	}, nil
}

// ListForForm returns a page of the form's responses for its owner, newest
// first, with the total count for pagination.
func (s *ResponseService) ListForForm(ctx context.Context, ownerID, formID string, page, pageSize int) ([]domain.Response, int64, error) {
	if err := s.checkFormOwner(ctx, ownerID, formID); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountResponses(ctx, s.DB, formID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Response{}, 0, nil
	}
	items, err := repo.ListResponsesPage(ctx, s.DB, formID, offset, pageSize)
	return items, total, err
}

// Delete removes one response; only the owner of its form may do so.
func (s *ResponseService) Delete(ctx context.Context, ownerID, responseID string) error {
	if _, err := s.Get(ctx, ownerID, responseID); err != nil {
		return err
	}
	err := repo.DeleteResponse(ctx, s.DB, responseID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrResponseNotFound
	}
	return err
}

// DeleteAllForForm removes every response of the form and reports how many
// rows went away.
func (s *ResponseService) DeleteAllForForm(ctx context.Context, ownerID, formID string) (int64, error) {
	if err := s.checkFormOwner(ctx, ownerID, formID); err != nil {
		return 0, err
	}
	return repo.DeleteResponsesForForm(ctx, s.DB, formID)
}

// ExportCSV streams the form's responses to w as CSV: one row per response
// in submission order, one column per field in the form's declared field
// order, headed by the fields' current labels. List answers are
// comma-joined inside their cell.
func (s *ResponseService) ExportCSV(ctx context.Context, ownerID, formID string, w io.Writer) error {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "ExportCSV",
		trace.WithAttributes(attribute.String("form.id", formID)),
	)
	defer span.End()

	form, err := repo.GetForm(ctx, s.DB, formID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFormNotFound
		}
		return err
	}
	if form.OwnerID != ownerID {
		return ErrForbidden
	}

	responses, err := repo.ListAllResponses(ctx, s.DB, formID)
	if err != nil {
		return err
	}

	locale := s.ExportLocale
	if locale == language.Und {
		locale = language.English
	}
	caser := cases.Title(locale)

	cw := csv.NewWriter(w)
	header := []string{caser.String("submitted at"), caser.String("respondent")}
	for i := range form.Fields {
		header = append(header, form.Fields[i].Label)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range responses {
		row := make([]string, 0, len(form.Fields)+2)
		row = append(row, r.SubmittedAt.UTC().Format(time.RFC3339))
		if r.UserID != nil {
			row = append(row, *r.UserID)
		} else {
			row = append(row, "")
		}
		for i := range form.Fields {
			row = append(row, r.Answers[form.Fields[i].FieldKey].String())
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// getWithForm loads a response together with its parent form. A response
// whose form has vanished is reported as not found.
func (s *ResponseService) getWithForm(ctx context.Context, responseID string) (*domain.Response, *domain.Form, error) {
	resp, err := repo.GetResponse(ctx, s.DB, responseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrResponseNotFound
		}
		return nil, nil, err
	}
	form, err := repo.GetForm(ctx, s.DB, resp.FormID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrResponseNotFound
		}
		return nil, nil, err
	}
	return resp, form, nil
}

// checkFormOwner distinguishes missing forms from foreign ones.
func (s *ResponseService) checkFormOwner(ctx context.Context, ownerID, formID string) error {
	form, err := repo.GetForm(ctx, s.DB, formID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFormNotFound
		}
		return err
	}
	if form.OwnerID != ownerID {
		return ErrForbidden
	}
	return nil
}
