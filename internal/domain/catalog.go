// Package domain defines the persistence models for forms, fields,
// conditional rules, and responses. This file is the field catalog: the
// closed set of supported field types and the operators and actions that
// conditional rules may use against them.
package domain

// FieldType enumerates the backend field types. The set is closed; editor
// surfaces may offer richer variants (textarea, number, radio) but those are
// presentation sugar and must be normalized via NormalizeFieldType before
// they reach persistence.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldDate     FieldType = "date"
	FieldDropdown FieldType = "dropdown"
	FieldCheckbox FieldType = "checkbox"
)

// editorAliases maps editor-only field variants down to the closed backend
// set. Unknown types are not aliased.
var editorAliases = map[string]FieldType{
	"textarea": FieldText,
	"number":   FieldText,
	"radio":    FieldDropdown,
}

// Valid reports whether t is one of the closed backend field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldEmail, FieldDate, FieldDropdown, FieldCheckbox:
		return true
	}
	return false
}

// IsSelection reports whether answers for this type are constrained to the
// field's own options list. Conditional rule values against a selection
// source must also come from that list.
func (t FieldType) IsSelection() bool {
	return t == FieldDropdown || t == FieldCheckbox
}

// MultiValued reports whether answers for this type are a list of strings
// rather than a single scalar. Only checkbox fields collect lists.
func (t FieldType) MultiValued() bool {
	return t == FieldCheckbox
}

// NormalizeFieldType maps a raw type string (possibly an editor-only variant)
// to a catalog FieldType. It returns false when the type is neither a backend
// type nor a known editor alias.
func NormalizeFieldType(raw string) (FieldType, bool) {
	t := FieldType(raw)
	if t.Valid() {
		return t, true
	}
	if alias, ok := editorAliases[raw]; ok {
		return alias, true
	}
	return "", false
}

// Operator enumerates the comparison operators available to conditional rules.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
)

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains:
		return true
	}
	return false
}

// ConditionAction enumerates the effect a conditional rule applies to its
// target field when the comparison holds.
type ConditionAction string

const (
	ActionShow ConditionAction = "show"
	ActionHide ConditionAction = "hide"
)

// Valid reports whether a is a supported action.
func (a ConditionAction) Valid() bool {
	return a == ActionShow || a == ActionHide
}

// PlanFree and PlanPaid are the account tiers. The paid tier gates response
// editing on forms that have AllowEditing enabled.
const (
	PlanFree = "free"
	PlanPaid = "paid"
)
