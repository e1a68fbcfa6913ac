// Package services – FormService
//
// This file implements the FormService, which manages the lifecycle of forms:
// creation, partial updates, publishing, cloning, and deletion, plus the
// owner-facing reads and the public (unauthenticated) view. It enforces the
// schema invariants — every condition's source and target must resolve inside
// the current field list, field keys are unique and stable, selection fields
// carry options — before anything is persisted, and it clears the publish
// flag on every successful edit so a stale public form can never serve
// half-edited logic.
//
// Service-level errors (ErrFormNotFound, ErrForbidden, *ValidationError, …)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/formforge/go-forms-backend/internal/domain"
	"github.com/formforge/go-forms-backend/internal/repo"
)

// publicURLBytes is the entropy behind a public token: 5 random bytes hex
// encoded yield a 10 character URL component.
const publicURLBytes = 5

// publicURLAttempts bounds the collision re-roll loop on publish.
const publicURLAttempts = 5

// FieldSpec is the incoming shape of one field in an update patch. Type is a
// raw string because editor surfaces may still send their richer variants
// (textarea, number, radio); it is normalized into the closed catalog before
// validation.
type FieldSpec struct {
	FieldKey    string   `json:"fieldKey"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Placeholder string   `json:"placeholder"`
	Required    bool     `json:"required"`
	Options     []string `json:"options"`
}

// ConditionSpec is the incoming shape of one conditional rule in an update
// patch. Declaration order is meaningful: the first rule targeting a field
// decides its visibility.
type ConditionSpec struct {
	SourceFieldID string `json:"sourceFieldId"`
	Operator      string `json:"operator"`
	Value         string `json:"value"`
	TargetFieldID string `json:"targetFieldId"`
	Action        string `json:"actions"`
}

// FormPatch is a partial update: nil members leave the stored value
// untouched. Fields and Conditions are pointers to slices so "replace with
// empty" and "leave alone" stay distinguishable.
type FormPatch struct {
	Title          *string          `json:"title"`
	Description    *string          `json:"description"`
	AllowAnonymous *bool            `json:"allowAnonymous"`
	AllowEditing   *bool            `json:"allowEditing"`
	Fields         *[]FieldSpec     `json:"fields"`
	Conditions     *[]ConditionSpec `json:"conditions"`
}

// PublicForm is the unauthenticated projection of a published form: exactly
// the data a respondent needs to render and answer it, nothing else.
type PublicForm struct {
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	AllowAnonymous bool               `json:"allow_anonymous"`
	Fields         []domain.FormField `json:"fields"`
	Conditions     []domain.Condition `json:"conditions"`
}

// FormService provides form lifecycle operations and enforces the schema
// invariants described above. It is context-aware and opens its own
// transactions through the repo layer where atomicity matters.
type FormService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Now returns the current time; tests may override it. Nil means
	// time.Now.
	Now func() time.Time
}

// NewFormService constructs a FormService bound to db.
func NewFormService(db *gorm.DB) *FormService {
	return &FormService{DB: db}
}

func (s *FormService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeTitle trims whitespace and collapses runs of spaces.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Create inserts a new, empty, unpublished form owned by ownerID. The title
// is required; the field list starts empty and is filled in via Update.
func (s *FormService) Create(ctx context.Context, ownerID, title, description string) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	title = normalizeTitle(title)
	if title == "" {
		return nil, validationf("form title is required")
	}

	f := &domain.Form{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
	}
	if err := repo.CreateForm(ctx, s.DB, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Get returns the full aggregate for the owner: ErrFormNotFound when the id
// is unknown, ErrForbidden when it belongs to someone else.
func (s *FormService) Get(ctx context.Context, ownerID, formID string) (*domain.Form, error) {
	f, err := repo.GetForm(ctx, s.DB, formID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	if f.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return f, nil
}

// List returns all forms belonging to ownerID, most recently updated first.
func (s *FormService) List(ctx context.Context, ownerID string) ([]domain.Form, error) {
	return repo.ListForms(ctx, s.DB, ownerID)
}

// Update applies a partial patch to the form. All invariants are checked
// against the post-patch state before any write: a failed validation leaves
// the stored form untouched. Every successful update clears IsPublished —
// publishing is always an explicit follow-up act.
func (s *FormService) Update(ctx context.Context, ownerID, formID string, patch FormPatch) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("form.id", formID),
			attribute.String("user.id", ownerID),
		),
	)
	defer span.End()

	form, err := s.Get(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		t := normalizeTitle(*patch.Title)
		if t == "" {
			return nil, validationf("form title is required")
		}
		form.Title = t
	}
	if patch.Description != nil {
		form.Description = *patch.Description
	}
	if patch.AllowAnonymous != nil {
		form.AllowAnonymous = *patch.AllowAnonymous
	}
	if patch.AllowEditing != nil {
		form.AllowEditing = *patch.AllowEditing
	}

	// Resolve the post-patch field list first; conditions are validated
	// against it, never against the stored one.
	if patch.Fields != nil {
		fields, err := buildFields(form.ID, *patch.Fields)
		if err != nil {
			return nil, err
		}
		form.Fields = fields
	}

	byKey := make(map[string]*domain.FormField, len(form.Fields))
	for i := range form.Fields {
		byKey[form.Fields[i].FieldKey] = &form.Fields[i]
	}

	if patch.Conditions != nil {
		conds, err := buildConditions(form.ID, *patch.Conditions, byKey)
		if err != nil {
			return nil, err
		}
		form.Conditions = conds
	} else if patch.Fields != nil {
		// Fields changed under a kept condition set: rules whose source or
		// target field was removed are dropped in the same mutation.
		kept := form.Conditions[:0]
		for _, c := range form.Conditions {
			if byKey[c.SourceFieldID] != nil && byKey[c.TargetFieldID] != nil {
				kept = append(kept, c)
			}
		}
		form.Conditions = kept
		for i := range form.Conditions {
			form.Conditions[i].Position = i
		}
	}

	form.IsPublished = false
	form.UpdatedAt = s.now()

	if err := repo.SaveForm(ctx, s.DB, form); err != nil {
		return nil, err
	}
	return form, nil
}

// buildFields converts and validates the incoming field specs into child
// rows, normalizing editor-only types down to the closed catalog.
func buildFields(formID string, specs []FieldSpec) ([]domain.FormField, error) {
	fields := make([]domain.FormField, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		key := strings.TrimSpace(spec.FieldKey)
		if key == "" {
			return nil, validationf("field %d: every field must have a field key", i)
		}
		if _, dup := seen[key]; dup {
			return nil, validationf("field %d: duplicate field key %q", i, key)
		}
		seen[key] = struct{}{}

		ft, ok := domain.NormalizeFieldType(spec.Type)
		if !ok {
			return nil, validationf("field %q: unsupported type %q", key, spec.Type)
		}
		if strings.TrimSpace(spec.Label) == "" {
			return nil, validationf("field %q: label is required", key)
		}
		if ft.IsSelection() && len(spec.Options) == 0 {
			return nil, validationf("field %q: %s fields need at least one option", key, ft)
		}

		var opts domain.StringList
		if ft.IsSelection() {
			opts = domain.StringList(spec.Options)
		}
		fields = append(fields, domain.FormField{
			ID:          uuid.NewString(),
			FormID:      formID,
			FieldKey:    key,
			Type:        ft,
			Label:       spec.Label,
			Placeholder: spec.Placeholder,
			Required:    spec.Required,
			Options:     opts,
			Position:    i,
		})
	}
	return fields, nil
}

// buildConditions converts and validates incoming rule specs against the
// post-patch field list. Explicitly supplied rules must resolve; a dangling
// reference here is an authoring error, not a cascade.
func buildConditions(formID string, specs []ConditionSpec, byKey map[string]*domain.FormField) ([]domain.Condition, error) {
	conds := make([]domain.Condition, 0, len(specs))
	for i, spec := range specs {
		op := domain.Operator(spec.Operator)
		if !op.Valid() {
			return nil, validationf("condition %d: unsupported operator %q", i, spec.Operator)
		}
		action := domain.ConditionAction(spec.Action)
		if !action.Valid() {
			return nil, validationf("condition %d: unsupported action %q", i, spec.Action)
		}
		src := byKey[spec.SourceFieldID]
		if src == nil {
			return nil, validationf("condition %d: source field %q does not exist", i, spec.SourceFieldID)
		}
		if byKey[spec.TargetFieldID] == nil {
			return nil, validationf("condition %d: target field %q does not exist", i, spec.TargetFieldID)
		}
		if spec.SourceFieldID == spec.TargetFieldID {
			return nil, validationf("condition %d: a field cannot condition itself", i)
		}
		if src.Type.IsSelection() && !src.HasOption(spec.Value) {
			return nil, validationf("condition %d: value %q is not an option of field %q", i, spec.Value, spec.SourceFieldID)
		}
		conds = append(conds, domain.Condition{
			ID:            uuid.NewString(),
			FormID:        formID,
			SourceFieldID: spec.SourceFieldID,
			Operator:      op,
			Value:         spec.Value,
			TargetFieldID: spec.TargetFieldID,
			Action:        action,
			Position:      i,
		})
	}
	return conds, nil
}

// Publish makes the form live. The public token is generated only when the
// form has never been published before; republishing never rotates it. A
// form without fields cannot be published.
func (s *FormService) Publish(ctx context.Context, ownerID, formID string) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Publish",
		trace.WithAttributes(
			attribute.String("form.id", formID),
			attribute.String("user.id", ownerID),
		),
	)
	defer span.End()

	form, err := s.Get(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}
	if len(form.Fields) == 0 {
		return nil, validationf("form has no fields to publish")
	}

	cols := map[string]any{"is_published": true}
	if form.PublicURL == nil {
		token, err := s.freshPublicURL(ctx)
		if err != nil {
			return nil, err
		}
		form.PublicURL = &token
		cols["public_url"] = token
	}

	if err := repo.UpdateFormMeta(ctx, s.DB, form.ID, cols); err != nil {
		if repo.IsUniqueViolation(err) {
			return nil, ErrPublicURLConflict
		}
		return nil, err
	}
	form.IsPublished = true
	return form, nil
}

// freshPublicURL draws random tokens until one is unused, bounded by
// publicURLAttempts. Collisions are vanishingly rare at the expected form
// count; the loop exists for the day they are not.
func (s *FormService) freshPublicURL(ctx context.Context) (string, error) {
	for range publicURLAttempts {
		buf := make([]byte, publicURLBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		token := hex.EncodeToString(buf)
		taken, err := repo.PublicURLTaken(ctx, s.DB, token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
	}
	return "", ErrPublicURLConflict
}

// Clone deep-copies the form for the same owner: every field gets a fresh
// key, conditions are rewritten through the old→new key mapping, the public
// token is cleared, and the copy starts unpublished with a " (Copy)" title
// suffix. A condition whose endpoints did not survive the copy (possible
// only if the stored aggregate was already broken) is dropped rather than
// carried over dangling.
func (s *FormService) Clone(ctx context.Context, ownerID, formID string) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Clone",
		trace.WithAttributes(
			attribute.String("form.id", formID),
			attribute.String("user.id", ownerID),
		),
	)
	defer span.End()

	src, err := s.Get(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}

	clone := &domain.Form{
		ID:             uuid.NewString(),
		OwnerID:        src.OwnerID,
		Title:          src.Title + " (Copy)",
		Description:    src.Description,
		AllowAnonymous: src.AllowAnonymous,
		AllowEditing:   src.AllowEditing,
	}

	keyMap := make(map[string]string, len(src.Fields))
	for i, f := range src.Fields {
		newKey := uuid.NewString()
		keyMap[f.FieldKey] = newKey
		clone.Fields = append(clone.Fields, domain.FormField{
			ID:          uuid.NewString(),
			FormID:      clone.ID,
			FieldKey:    newKey,
			Type:        f.Type,
			Label:       f.Label,
			Placeholder: f.Placeholder,
			Required:    f.Required,
			Options:     append(domain.StringList(nil), f.Options...),
			Position:    i,
		})
	}

	pos := 0
	for _, c := range src.Conditions {
		newSrc, okSrc := keyMap[c.SourceFieldID]
		newTgt, okTgt := keyMap[c.TargetFieldID]
		if !okSrc || !okTgt {
			continue
		}
		clone.Conditions = append(clone.Conditions, domain.Condition{
			ID:            uuid.NewString(),
			FormID:        clone.ID,
			SourceFieldID: newSrc,
			Operator:      c.Operator,
			Value:         c.Value,
			TargetFieldID: newTgt,
			Action:        c.Action,
			Position:      pos,
		})
		pos++
	}

	if err := repo.CreateForm(ctx, s.DB, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// Delete removes the form and all of its responses atomically. Only the
// owner may delete; a partial cascade is impossible because the whole
// operation runs in one transaction.
func (s *FormService) Delete(ctx context.Context, ownerID, formID string) error {
	if _, err := s.Get(ctx, ownerID, formID); err != nil {
		return err
	}
	if err := repo.DeleteFormCascade(ctx, s.DB, formID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFormNotFound
		}
		return err
	}
	return nil
}

// PublicView resolves a public token to the respondent-facing projection of
// a published form. Unknown tokens and unpublished forms are both
// ErrFormNotFound: the public surface never reveals that a draft exists.
func (s *FormService) PublicView(ctx context.Context, url string) (*PublicForm, error) {
	f, err := repo.GetFormByPublicURL(ctx, s.DB, url)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &PublicForm{
		Title:          f.Title,
		Description:    f.Description,
		AllowAnonymous: f.AllowAnonymous,
		Fields:         f.Fields,
		Conditions:     f.Conditions,
	}, nil
}

// Stats returns the response aggregates for the owner's form as of now.
func (s *FormService) Stats(ctx context.Context, ownerID, formID string) (repo.FormStats, error) {
	if _, err := s.Get(ctx, ownerID, formID); err != nil {
		return repo.FormStats{}, err
	}
	return repo.ResponseStats(ctx, s.DB, formID, s.now())
}
