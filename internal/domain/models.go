// Package domain defines the persistence models for forms, fields,
// conditional rules, and responses. These types are mapped with GORM and form
// the core data layer of the forms application.
package domain

import (
	"time"
)

// Form represents one questionnaire owned by a user account. It carries the
// ordered field list, the conditional visibility rules, and the publish state
// that controls whether the form accepts responses.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OwnerID: identifier of the owning account; indexed for listing.
//   - Title / Description: display metadata; Title is required.
//   - AllowAnonymous: whether unauthenticated visitors may submit.
//   - AllowEditing: whether respondents may amend a submitted response
//     (additionally gated by the owner's paid plan).
//   - IsPublished: whether the form currently accepts responses. Any edit
//     through the update path clears this; publishing is always explicit.
//   - PublicURL: random public token, assigned on first publish and never
//     rotated by later publishes. Nil until published; unique when set.
//   - Fields / Conditions: child rows, kept in declaration order via their
//     Position column and cascade-deleted with the form.
type Form struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	OwnerID        string    `json:"owner_id"        gorm:"type:varchar(64);not null;index:idx_owner_forms"`
	Title          string    `json:"title"           gorm:"type:varchar(255);not null"`
	Description    string    `json:"description"     gorm:"type:text"`
	AllowAnonymous bool      `json:"allow_anonymous" gorm:"not null;default:false"`
	AllowEditing   bool      `json:"allow_editing"   gorm:"not null;default:false"`
	IsPublished    bool      `json:"is_published"    gorm:"not null;default:false"`
	PublicURL      *string   `json:"public_url,omitempty" gorm:"type:varchar(16);uniqueIndex"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Fields     []FormField `json:"fields"     gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Conditions []Condition `json:"conditions" gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Form.
func (Form) TableName() string { return "forms" }

// FieldByKey returns the form field with the given key, or nil.
func (f *Form) FieldByKey(key string) *FormField {
	for i := range f.Fields {
		if f.Fields[i].FieldKey == key {
			return &f.Fields[i]
		}
	}
	return nil
}

// FormField is one question within a form.
//
// FieldKey is the opaque join key referenced by conditions and by answer
// maps. It is generated once when the field is created and survives every
// subsequent edit; only cloning a form assigns fresh keys. Position preserves
// the owner's declared field order across round-trips.
type FormField struct {
	ID          string     `json:"-"           gorm:"type:char(36);primaryKey"`
	FormID      string     `json:"-"           gorm:"type:char(36);not null;index:idx_form_fields;uniqueIndex:ux_form_field_key,priority:1"`
	FieldKey    string     `json:"fieldKey"    gorm:"type:varchar(64);not null;uniqueIndex:ux_form_field_key,priority:2"`
	Type        FieldType  `json:"type"        gorm:"type:varchar(16);not null"`
	Label       string     `json:"label"       gorm:"type:varchar(255);not null"`
	Placeholder string     `json:"placeholder,omitempty" gorm:"type:varchar(255)"`
	Required    bool       `json:"required"    gorm:"not null;default:false"`
	Options     StringList `json:"options,omitempty" gorm:"type:text"`
	Position    int        `json:"-"           gorm:"not null;default:0"`
}

// TableName returns the database table name for FormField.
func (FormField) TableName() string { return "form_fields" }

// HasOption reports whether v is one of the field's declared options.
func (f *FormField) HasOption(v string) bool {
	for _, o := range f.Options {
		if o == v {
			return true
		}
	}
	return false
}

// Condition is one conditional visibility rule. Both referenced field keys
// must resolve inside the owning form's field list at all times; a rule whose
// source or target field is removed is dropped in the same mutation.
//
// Position preserves declaration order, which doubles as the tie-break when
// several rules target the same field: the first declared rule wins.
type Condition struct {
	ID            string          `json:"-"             gorm:"type:char(36);primaryKey"`
	FormID        string          `json:"-"             gorm:"type:char(36);not null;index:idx_form_conditions"`
	SourceFieldID string          `json:"sourceFieldId" gorm:"type:varchar(64);not null"`
	Operator      Operator        `json:"operator"      gorm:"type:varchar(16);not null"`
	Value         string          `json:"value"         gorm:"type:varchar(255);not null"`
	TargetFieldID string          `json:"targetFieldId" gorm:"type:varchar(64);not null"`
	Action        ConditionAction `json:"actions"       gorm:"column:actions;type:varchar(8);not null"`
	Position      int             `json:"-"             gorm:"not null;default:0"`
}

// TableName returns the database table name for Condition.
func (Condition) TableName() string { return "form_conditions" }

// Response is one respondent's submission against a form. UserID is nil for
// anonymous submissions. Answers is keyed by FieldKey; checkbox answers are
// lists of strings, everything else a scalar.
type Response struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	FormID      string    `json:"form_id"      gorm:"type:char(36);not null;index:idx_form_responses"`
	UserID      *string   `json:"user_id"      gorm:"type:varchar(64)"`
	Answers     AnswerMap `json:"answer"       gorm:"column:answer;type:text;not null"`
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null;index"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`

	// Form is the parent questionnaire. Responses are cascade-deleted when
	// their form is removed.
	Form Form `json:"-" gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Response.
func (Response) TableName() string { return "responses" }

// User is the minimal account record the core needs: identity plus plan tier.
// Registration, sessions, and payment flows live in external collaborators;
// only the tier gate on response editing belongs to this subsystem.
type User struct {
	ID        string    `json:"id"   gorm:"type:varchar(64);primaryKey"`
	Plan      string    `json:"plan" gorm:"type:varchar(16);not null;default:'free'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
