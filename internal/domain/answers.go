// Package domain defines the persistence models for forms, fields,
// conditional rules, and responses. This file holds the answer value types:
// a submitted answer is either a scalar string or a list of strings
// (checkbox fields), and whole answer maps are persisted as a single JSON
// document on the response row.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AnswerValue is one field's submitted answer. Scalar answers keep the raw
// string; checkbox answers keep the list form. The zero value represents an
// unanswered field.
type AnswerValue struct {
	Scalar string
	List   []string
	IsList bool
}

// Answer builds a scalar answer value.
func Answer(s string) AnswerValue {
	return AnswerValue{Scalar: s}
}

// AnswerList builds a list answer value (checkbox selections).
func AnswerList(vals ...string) AnswerValue {
	return AnswerValue{List: vals, IsList: true}
}

// IsZero reports whether the value carries no answer at all.
func (v AnswerValue) IsZero() bool {
	return !v.IsList && v.Scalar == ""
}

// String returns the comparison form of the answer: the scalar itself, or the
// comma-joined list. List answers stringify exactly like a JS
// Array.prototype.toString so that conditional rules written against the
// original frontend keep their meaning.
func (v AnswerValue) String() string {
	if v.IsList {
		return strings.Join(v.List, ",")
	}
	return v.Scalar
}

// MarshalJSON writes the scalar as a JSON string and the list as a JSON array.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.IsList {
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Scalar)
}

// UnmarshalJSON accepts a JSON string or an array of strings.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*v = AnswerValue{List: list, IsList: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("answer value must be a string or a string array: %w", err)
	}
	*v = AnswerValue{Scalar: s}
	return nil
}

// AnswerMap holds a (possibly partial) set of answers keyed by FieldKey.
// It is stored as one JSON TEXT column on the responses table.
type AnswerMap map[string]AnswerValue

// Value implements driver.Valuer, serializing the map to JSON.
func (m AnswerMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, deserializing a JSON TEXT/BLOB column.
func (m *AnswerMap) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = AnswerMap{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("answer map: unsupported column type")
	}
	if len(data) == 0 {
		*m = AnswerMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// StringList is an ordered list of option strings stored as a JSON TEXT
// column (field options keep their declared order).
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("string list: unsupported column type")
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}
