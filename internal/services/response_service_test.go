package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/formforge/go-forms-backend/internal/domain"
	"github.com/formforge/go-forms-backend/internal/repo"
)

// newPublishedForm arranges the standard RSVP form, published, and returns
// the services plus the form.
func newPublishedForm(t *testing.T) (*gorm.DB, *FormService, *ResponseService, *domain.Form) {
	t.Helper()
	db := newServiceDB(t)
	fs := NewFormService(db)
	rs := &ResponseService{DB: db}

	f := buildTestForm(t, fs, "owner")
	f, err := fs.Publish(context.Background(), "owner", f.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return db, fs, rs, f
}

func TestResponseService_Submit_Gates(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown form", func(t *testing.T) {
		_, _, rs, _ := newPublishedForm(t)
		_, err := rs.Submit(ctx, "33333333-3333-3333-3333-333333333333", domain.AnswerMap{}, "u1")
		if err != ErrFormNotFound {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("draft form is closed", func(t *testing.T) {
		db := newServiceDB(t)
		fs := NewFormService(db)
		rs := &ResponseService{DB: db}
		f := buildTestForm(t, fs, "owner")

		_, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"attending": domain.Answer("yes")}, "u1")
		if err != ErrFormClosed {
			t.Fatalf("err = %v, want ErrFormClosed", err)
		}
	})

	t.Run("anonymous rejected by default", func(t *testing.T) {
		_, _, rs, f := newPublishedForm(t)
		_, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"attending": domain.Answer("no")}, "")
		if err != ErrAnonymousNotAllowed {
			t.Fatalf("err = %v, want ErrAnonymousNotAllowed", err)
		}
	})

	t.Run("anonymous allowed when flagged", func(t *testing.T) {
		_, fs, rs, f := newPublishedForm(t)
		if _, err := fs.Update(ctx, "owner", f.ID, FormPatch{AllowAnonymous: boolp(true)}); err != nil {
			t.Fatalf("flag: %v", err)
		}
		if _, err := fs.Publish(ctx, "owner", f.ID); err != nil {
			t.Fatalf("republish: %v", err)
		}

		r, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"attending": domain.Answer("no")}, "")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if r.UserID != nil {
			t.Fatalf("anonymous response carries user id %q", *r.UserID)
		}
	})
}

func TestResponseService_Submit_Sanitization(t *testing.T) {
	ctx := context.Background()

	t.Run("hidden answers dropped", func(t *testing.T) {
		_, _, rs, f := newPublishedForm(t)
		// "no" hides diet, so the diet answer must not be stored.
		r, err := rs.Submit(ctx, f.ID, domain.AnswerMap{
			"attending": domain.Answer("no"),
			"diet":      domain.Answer("smuggled"),
		}, "u1")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if _, present := r.Answers["diet"]; present {
			t.Fatalf("hidden answer stored: %+v", r.Answers)
		}
	})

	t.Run("visible answers kept", func(t *testing.T) {
		_, _, rs, f := newPublishedForm(t)
		r, err := rs.Submit(ctx, f.ID, domain.AnswerMap{
			"attending": domain.Answer("yes"),
			"diet":      domain.Answer("vegan"),
		}, "u1")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if r.Answers["diet"].Scalar != "vegan" {
			t.Fatalf("answers = %+v", r.Answers)
		}
	})

	t.Run("unknown keys discarded", func(t *testing.T) {
		_, _, rs, f := newPublishedForm(t)
		r, err := rs.Submit(ctx, f.ID, domain.AnswerMap{
			"attending": domain.Answer("no"),
			"ghost":     domain.Answer("boo"),
		}, "u1")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if _, present := r.Answers["ghost"]; present {
			t.Fatalf("unknown key stored: %+v", r.Answers)
		}
	})

	t.Run("visible required must be answered", func(t *testing.T) {
		_, _, rs, f := newPublishedForm(t)
		_, err := rs.Submit(ctx, f.ID, domain.AnswerMap{}, "u1")
		if !IsValidation(err) || !strings.Contains(err.Error(), "required") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("hidden required is not enforced", func(t *testing.T) {
		db := newServiceDB(t)
		fs := NewFormService(db)
		rs := &ResponseService{DB: db}
		ctx := context.Background()

		f, err := fs.Create(ctx, "owner", "Survey", "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		f, err = fs.Update(ctx, "owner", f.ID, FormPatch{
			Fields: &[]FieldSpec{
				{FieldKey: "trigger", Type: "text", Label: "Trigger"},
				{FieldKey: "detail", Type: "text", Label: "Detail", Required: true},
			},
			Conditions: &[]ConditionSpec{
				{SourceFieldID: "trigger", Operator: "equals", Value: "on", TargetFieldID: "detail", Action: "show"},
			},
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if _, err := fs.Publish(ctx, "owner", f.ID); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		// trigger != on keeps detail hidden; its Required flag is moot.
		if _, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"trigger": domain.Answer("off")}, "u1"); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	})

	t.Run("checkbox scalar coerced to list", func(t *testing.T) {
		db := newServiceDB(t)
		fs := NewFormService(db)
		rs := &ResponseService{DB: db}
		ctx := context.Background()

		f, err := fs.Create(ctx, "owner", "Pizza", "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		f, err = fs.Update(ctx, "owner", f.ID, FormPatch{
			Fields: &[]FieldSpec{
				{FieldKey: "toppings", Type: "checkbox", Label: "Toppings", Options: []string{"ham", "cheese"}},
			},
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if _, err := fs.Publish(ctx, "owner", f.ID); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		r, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"toppings": domain.Answer("ham")}, "u1")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		v := r.Answers["toppings"]
		if !v.IsList || len(v.List) != 1 || v.List[0] != "ham" {
			t.Fatalf("checkbox answer not normalized: %+v", v)
		}
	})
}

func TestResponseService_SubmitPublic(t *testing.T) {
	ctx := context.Background()
	_, _, rs, f := newPublishedForm(t)

	if _, err := rs.SubmitPublic(ctx, "nosuchtoken", domain.AnswerMap{}, "u1"); err != ErrFormNotFound {
		t.Fatalf("unknown token err = %v", err)
	}

	r, err := rs.SubmitPublic(ctx, *f.PublicURL, domain.AnswerMap{"attending": domain.Answer("no")}, "u1")
	if err != nil {
		t.Fatalf("SubmitPublic: %v", err)
	}
	if r.FormID != f.ID {
		t.Fatalf("response bound to %q, want %q", r.FormID, f.ID)
	}
}

func TestResponseService_Update_Gates(t *testing.T) {
	ctx := context.Background()

	submitOne := func(t *testing.T) (*gorm.DB, *FormService, *ResponseService, *domain.Form, *domain.Response) {
		t.Helper()
		db, fs, rs, f := newPublishedForm(t)
		r, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"attending": domain.Answer("no")}, "u1")
		if err != nil {
			t.Fatalf("seed submit: %v", err)
		}
		return db, fs, rs, f, r
	}

	t.Run("free plan owner blocks edits", func(t *testing.T) {
		_, _, rs, _, r := submitOne(t)
		_, err := rs.Update(ctx, r.ID, domain.AnswerMap{"attending": domain.Answer("yes")})
		if err != ErrPlanRequired {
			t.Fatalf("err = %v, want ErrPlanRequired", err)
		}
	})

	t.Run("paid plan but editing off", func(t *testing.T) {
		db, _, rs, _, r := submitOne(t)
		if err := repo.UpsertUser(ctx, db, "owner", domain.PlanPaid); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		_, err := rs.Update(ctx, r.ID, domain.AnswerMap{"attending": domain.Answer("yes")})
		if err != ErrEditingDisabled {
			t.Fatalf("err = %v, want ErrEditingDisabled", err)
		}
	})

	t.Run("both gates open", func(t *testing.T) {
		db, fs, rs, f, r := submitOne(t)
		if err := repo.UpsertUser(ctx, db, "owner", domain.PlanPaid); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if _, err := fs.Update(ctx, "owner", f.ID, FormPatch{AllowEditing: boolp(true)}); err != nil {
			t.Fatalf("enable editing: %v", err)
		}

		got, err := rs.Update(ctx, r.ID, domain.AnswerMap{"attending": domain.Answer("yes"), "diet": domain.Answer("halal")})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if got.Answers["diet"].Scalar != "halal" {
			t.Fatalf("answers = %+v", got.Answers)
		}

		// The amendment is persisted.
		stored, err := rs.PublicView(ctx, r.ID)
		if err != nil || stored.Answers["diet"].Scalar != "halal" {
			t.Fatalf("stored = %+v err = %v", stored, err)
		}
	})

	t.Run("missing response", func(t *testing.T) {
		_, _, rs, _, _ := submitOne(t)
		_, err := rs.Update(ctx, "44444444-4444-4444-4444-444444444444", domain.AnswerMap{})
		if err != ErrResponseNotFound {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestResponseService_OwnerReadsAndDeletes(t *testing.T) {
	ctx := context.Background()
	_, _, rs, f := newPublishedForm(t)

	r1, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"attending": domain.Answer("no")}, "u1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"attending": domain.Answer("yes"), "diet": domain.Answer("x")}, "u2"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	t.Run("get enforces ownership", func(t *testing.T) {
		if _, err := rs.Get(ctx, "owner", r1.ID); err != nil {
			t.Fatalf("owner get: %v", err)
		}
		if _, err := rs.Get(ctx, "intruder", r1.ID); err != ErrForbidden {
			t.Fatalf("foreign get err = %v", err)
		}
	})

	t.Run("list pages newest first", func(t *testing.T) {
		items, total, err := rs.ListForForm(ctx, "owner", f.ID, 1, 1)
		if err != nil || total != 2 || len(items) != 1 {
			t.Fatalf("items = %d total = %d err = %v", len(items), total, err)
		}
		if _, _, err := rs.ListForForm(ctx, "intruder", f.ID, 1, 10); err != ErrForbidden {
			t.Fatalf("foreign list err = %v", err)
		}
	})

	t.Run("delete one then purge", func(t *testing.T) {
		if err := rs.Delete(ctx, "intruder", r1.ID); err != ErrForbidden {
			t.Fatalf("foreign delete err = %v", err)
		}
		if err := rs.Delete(ctx, "owner", r1.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := rs.Delete(ctx, "owner", r1.ID); err != ErrResponseNotFound {
			t.Fatalf("double delete err = %v", err)
		}

		n, err := rs.DeleteAllForForm(ctx, "owner", f.ID)
		if err != nil || n != 1 {
			t.Fatalf("purge = %d err = %v", n, err)
		}
	})
}

func TestResponseService_ExportCSV(t *testing.T) {
	ctx := context.Background()
	_, _, rs, f := newPublishedForm(t)

	if _, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"attending": domain.Answer("yes"), "diet": domain.Answer("vegan")}, "u1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := rs.Submit(ctx, f.ID, domain.AnswerMap{"attending": domain.Answer("no")}, "u2"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var buf bytes.Buffer
	if err := rs.ExportCSV(ctx, "owner", f.ID, &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	header := rows[0]
	if header[0] != "Submitted At" || header[1] != "Respondent" || header[2] != "Attending?" || header[3] != "Dietary needs" {
		t.Fatalf("header = %v", header)
	}
	// Chronological order, respondent id, answers in field order.
	if rows[1][1] != "u1" || rows[1][2] != "yes" || rows[1][3] != "vegan" {
		t.Fatalf("row 1 = %v", rows[1])
	}
	if rows[2][1] != "u2" || rows[2][2] != "no" || rows[2][3] != "" {
		t.Fatalf("row 2 = %v", rows[2])
	}
	if !strings.Contains(rows[1][0], "T") {
		t.Fatalf("timestamp not RFC3339: %q", rows[1][0])
	}

	t.Run("owner gate", func(t *testing.T) {
		var b bytes.Buffer
		if err := rs.ExportCSV(ctx, "intruder", f.ID, &b); err != ErrForbidden {
			t.Fatalf("foreign export err = %v", err)
		}
		if b.Len() != 0 {
			t.Fatalf("bytes written before gate: %q", b.String())
		}
	})

	t.Run("locale override", func(t *testing.T) {
		svc := &ResponseService{DB: rs.DB, ExportLocale: language.Turkish}
		var b bytes.Buffer
		if err := svc.ExportCSV(ctx, "owner", f.ID, &b); err != nil {
			t.Fatalf("ExportCSV: %v", err)
		}
		if !strings.HasPrefix(b.String(), "Submitted At") {
			t.Fatalf("header = %q", b.String())
		}
	})
}
