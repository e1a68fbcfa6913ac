package logic

import (
	"testing"

	"github.com/formforge/go-forms-backend/internal/domain"
)

func cond(src string, op domain.Operator, val, target string, action domain.ConditionAction) domain.Condition {
	return domain.Condition{
		SourceFieldID: src,
		Operator:      op,
		Value:         val,
		TargetFieldID: target,
		Action:        action,
	}
}

func TestFieldVisible_Untargeted(t *testing.T) {
	conds := []domain.Condition{
		cond("a", domain.OpEquals, "x", "b", domain.ActionShow),
	}
	if !FieldVisible(conds, "a", nil) {
		t.Fatal("a has no rule targeting it and must stay visible")
	}
	if !FieldVisible(nil, "anything", domain.AnswerMap{"anything": domain.Answer("v")}) {
		t.Fatal("no conditions means everything is visible")
	}
}

func TestFieldVisible_ShowAndHide(t *testing.T) {
	conds := []domain.Condition{
		cond("attending", domain.OpEquals, "yes", "diet", domain.ActionShow),
		cond("attending", domain.OpEquals, "no", "regrets", domain.ActionHide),
	}

	t.Run("show when held", func(t *testing.T) {
		a := domain.AnswerMap{"attending": domain.Answer("yes")}
		if !FieldVisible(conds, "diet", a) {
			t.Fatal("diet should show for yes")
		}
	})
	t.Run("show inverts when not held", func(t *testing.T) {
		a := domain.AnswerMap{"attending": domain.Answer("no")}
		if FieldVisible(conds, "diet", a) {
			t.Fatal("diet should hide for no")
		}
	})
	t.Run("hide when held", func(t *testing.T) {
		a := domain.AnswerMap{"attending": domain.Answer("no")}
		if FieldVisible(conds, "regrets", a) {
			t.Fatal("regrets should hide for no")
		}
	})
	t.Run("hide inverts when not held", func(t *testing.T) {
		a := domain.AnswerMap{"attending": domain.Answer("yes")}
		if !FieldVisible(conds, "regrets", a) {
			t.Fatal("regrets should show for yes")
		}
	})
}

func TestFieldVisible_FirstRuleWins(t *testing.T) {
	conds := []domain.Condition{
		cond("a", domain.OpEquals, "1", "t", domain.ActionShow),
		cond("a", domain.OpEquals, "2", "t", domain.ActionShow),
	}
	// Only the first rule on target "t" is consulted. The second would show
	// the field for "2", but it never runs.
	a := domain.AnswerMap{"a": domain.Answer("2")}
	if FieldVisible(conds, "t", a) {
		t.Fatal("second rule on the same target must be ignored")
	}
	a = domain.AnswerMap{"a": domain.Answer("1")}
	if !FieldVisible(conds, "t", a) {
		t.Fatal("first rule should decide visibility")
	}
}

func TestFieldVisible_UnansweredSource(t *testing.T) {
	show := []domain.Condition{cond("src", domain.OpEquals, "x", "t", domain.ActionShow)}
	if FieldVisible(show, "t", domain.AnswerMap{}) {
		t.Fatal("equals against missing answer cannot hold")
	}

	ne := []domain.Condition{cond("src", domain.OpNotEquals, "x", "t", domain.ActionShow)}
	if !FieldVisible(ne, "t", domain.AnswerMap{}) {
		t.Fatal("not_equals against missing answer holds")
	}
}

func TestFieldVisible_ContainsOnListAnswers(t *testing.T) {
	conds := []domain.Condition{
		cond("toppings", domain.OpContains, "cheese", "cheese_kind", domain.ActionShow),
	}
	a := domain.AnswerMap{"toppings": domain.AnswerList("ham", "cheese", "olive")}
	if !FieldVisible(conds, "cheese_kind", a) {
		t.Fatal("comma-joined list contains cheese")
	}
	a = domain.AnswerMap{"toppings": domain.AnswerList("ham")}
	if FieldVisible(conds, "cheese_kind", a) {
		t.Fatal("list without cheese should not match")
	}
}

func TestFieldVisible_UnknownOperatorNeverMatches(t *testing.T) {
	conds := []domain.Condition{
		cond("a", domain.Operator("regex"), "x", "t", domain.ActionShow),
	}
	if FieldVisible(conds, "t", domain.AnswerMap{"a": domain.Answer("x")}) {
		t.Fatal("unknown operator must not match")
	}
	hide := []domain.Condition{
		cond("a", domain.Operator("regex"), "x", "t", domain.ActionHide),
	}
	if !FieldVisible(hide, "t", domain.AnswerMap{"a": domain.Answer("x")}) {
		t.Fatal("hide with a non-matching comparison leaves the field visible")
	}
}

func TestVisible_CoversEveryField(t *testing.T) {
	fields := []domain.FormField{
		{FieldKey: "attending"},
		{FieldKey: "diet"},
		{FieldKey: "notes"},
	}
	conds := []domain.Condition{
		cond("attending", domain.OpEquals, "yes", "diet", domain.ActionShow),
	}
	got := Visible(fields, conds, domain.AnswerMap{"attending": domain.Answer("no")})
	if len(got) != 3 {
		t.Fatalf("want one entry per field, got %v", got)
	}
	if !got["attending"] || got["diet"] || !got["notes"] {
		t.Fatalf("visibility = %v", got)
	}
}
