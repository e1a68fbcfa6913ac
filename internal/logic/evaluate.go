// Package logic implements the conditional visibility evaluator for forms.
//
// The evaluator is a pure function over a form's condition set and a
// (possibly partial) answer map: it decides, for every field, whether the
// field should be rendered and whether a submitted answer for it is part of
// the response. It has no side effects, performs no I/O, and is safe for
// concurrent use. Both the public render path and the submission validation
// path consume the same evaluation so that what a respondent sees and what
// the server accepts can never drift apart.
//
// Semantics:
//   - A field that no condition targets is always visible.
//   - For a targeted field, the first condition in declaration order naming
//     it as target decides the outcome; later conditions on the same target
//     are ignored. This tie-break is deliberate and matches how the rule set
//     behaved historically (a linear find over the declared rules).
//   - The source answer is compared in string form. List answers (checkbox)
//     are comma-joined first; an unanswered source compares as the empty
//     string, which can never equal or contain a non-empty rule value but
//     does satisfy not_equals.
//   - When the comparison holds, action "show" makes the target visible and
//     "hide" makes it hidden; when it does not hold, the outcome inverts.
package logic

import (
	"strings"

	"github.com/formforge/go-forms-backend/internal/domain"
)

// compare applies op to the stringified source answer and the rule value.
func compare(op domain.Operator, answer, value string) bool {
	switch op {
	case domain.OpEquals:
		return answer == value
	case domain.OpNotEquals:
		return answer != value
	case domain.OpContains:
		return strings.Contains(answer, value)
	}
	// Unknown operators never match; schema validation rejects them upstream.
	return false
}

// FieldVisible reports whether the field identified by fieldKey is visible
// given the declared conditions and the current answers. Conditions are
// scanned in declaration order; the first one targeting fieldKey decides.
func FieldVisible(conditions []domain.Condition, fieldKey string, answers domain.AnswerMap) bool {
	for i := range conditions {
		cond := &conditions[i]
		if cond.TargetFieldID != fieldKey {
			continue
		}

		answer := answers[cond.SourceFieldID].String()
		holds := compare(cond.Operator, answer, cond.Value)

		if cond.Action == domain.ActionShow {
			return holds
		}
		return !holds
	}
	return true
}

// Visible evaluates every field of the form against answers and returns a
// visibility decision per FieldKey. The result always contains one entry per
// field, including fields no condition targets.
func Visible(fields []domain.FormField, conditions []domain.Condition, answers domain.AnswerMap) map[string]bool {
	out := make(map[string]bool, len(fields))
	for i := range fields {
		key := fields[i].FieldKey
		out[key] = FieldVisible(conditions, key, answers)
	}
	return out
}
