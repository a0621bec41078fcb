// Package lead implements the lead-capture form state machine.
package lead

import (
	"regexp"
	"strings"

	"github.com/ashureev/ecolite-widget/internal/domain"
)

// Field names one input of the lead form.
type Field string

// Form fields, in the order used to pick the first invalid one.
const (
	FieldName       Field = "name"
	FieldEmail      Field = "email"
	FieldPhone      Field = "phone"
	FieldProfession Field = "profession"
	FieldCity       Field = "city"
)

// Fields lists the form fields in their fixed order.
var Fields = []Field{FieldName, FieldEmail, FieldPhone, FieldProfession, FieldCity}

// ParseField maps a form input name to a Field.
func ParseField(name string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// Status is the lifecycle of one field.
type Status int

const (
	// Untouched fields have never lost focus.
	Untouched Status = iota
	// Touched fields lost focus but were edited since their last validation.
	Touched
	// Valid fields passed their rule.
	Valid
	// Invalid fields failed their rule and show an error.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Touched:
		return "touched"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "untouched"
	}
}

// Error messages shown next to invalid fields.
const (
	MsgName       = "Ingresa un nombre válido (solo letras, 2 a 60 caracteres)."
	MsgEmail      = "Ingresa un correo válido (ej. nombre@dominio.com)."
	MsgPhone      = "Debe tener 10 dígitos numéricos."
	MsgProfession = "Ingresa una profesión válida (solo letras, 2 a 60 caracteres)."
	MsgCity       = "Ingresa una ciudad válida (solo letras, 2 a 60 caracteres)."
)

// MaxPhoneDigits caps the phone input while typing.
const MaxPhoneDigits = 13

var (
	notWordishRe = regexp.MustCompile(`[^\p{L}\p{M} \-]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
	leadTrimRe   = regexp.MustCompile(`^[ \-]+`)
	nonDigitRe   = regexp.MustCompile(`\D+`)

	wordishRe = regexp.MustCompile(`^[\p{L}\p{M}][\p{L}\p{M} \-]{1,59}$`)
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe   = regexp.MustCompile(`^[0-9]{10}$`)
)

// SanitizeWordish keeps letters, diacritics, spaces and hyphens, collapses
// whitespace runs and strips leading spaces and hyphens.
func SanitizeWordish(s string) string {
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = notWordishRe.ReplaceAllString(s, "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return leadTrimRe.ReplaceAllString(s, "")
}

// SanitizePhone keeps digits only, capped at MaxPhoneDigits.
func SanitizePhone(s string) string {
	s = nonDigitRe.ReplaceAllString(s, "")
	if len(s) > MaxPhoneDigits {
		s = s[:MaxPhoneDigits]
	}
	return s
}

// SanitizeEmail strips whitespace; email content is otherwise left to the
// validation rule.
func SanitizeEmail(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// Sanitize applies the sanitizer of field f.
func Sanitize(f Field, s string) string {
	switch f {
	case FieldPhone:
		return SanitizePhone(s)
	case FieldEmail:
		return SanitizeEmail(s)
	default:
		return SanitizeWordish(s)
	}
}

// Validate checks a trimmed value against the rule of field f and returns
// the error message to show, or "" when valid.
func Validate(f Field, value string) string {
	value = strings.TrimSpace(value)
	switch f {
	case FieldEmail:
		if !emailRe.MatchString(value) {
			return MsgEmail
		}
	case FieldPhone:
		if !phoneRe.MatchString(value) {
			return MsgPhone
		}
	case FieldName:
		if !wordishRe.MatchString(value) {
			return MsgName
		}
	case FieldProfession:
		if !wordishRe.MatchString(value) {
			return MsgProfession
		}
	case FieldCity:
		if !wordishRe.MatchString(value) {
			return MsgCity
		}
	}
	return ""
}

// FieldState is the observable state of one field.
type FieldState struct {
	Field  Field  `json:"field"`
	Value  string `json:"value"`
	Status Status `json:"-"`
	Error  string `json:"error,omitempty"`
}

// Form holds the state of the five lead fields. It is not safe for
// concurrent use; the widget drives it from a single goroutine.
type Form struct {
	fields map[Field]*FieldState
}

// NewForm creates an empty, untouched form.
func NewForm() *Form {
	f := &Form{fields: make(map[Field]*FieldState, len(Fields))}
	for _, name := range Fields {
		f.fields[name] = &FieldState{Field: name}
	}
	return f
}

// State returns a copy of one field's state.
func (f *Form) State(field Field) FieldState {
	if st, ok := f.fields[field]; ok {
		return *st
	}
	return FieldState{Field: field}
}

// Input handles one keystroke: the value is sanitized in place and any
// displayed error is cleared.
func (f *Form) Input(field Field, raw string) FieldState {
	st, ok := f.fields[field]
	if !ok {
		return FieldState{Field: field}
	}
	st.Value = Sanitize(field, raw)
	st.Error = ""
	if st.Status != Untouched {
		st.Status = Touched
	}
	return *st
}

// Blur marks the field touched and validates it.
func (f *Form) Blur(field Field) FieldState {
	st, ok := f.fields[field]
	if !ok {
		return FieldState{Field: field}
	}
	st.Status = Touched
	f.validate(st)
	return *st
}

func (f *Form) validate(st *FieldState) {
	if msg := Validate(st.Field, st.Value); msg != "" {
		st.Status = Invalid
		st.Error = msg
		return
	}
	st.Status = Valid
	st.Error = ""
}

// Submit validates every field regardless of prior interaction. On success
// it returns the trimmed lead (without session id). Otherwise it returns the
// first invalid field in form order.
func (f *Form) Submit() (domain.Lead, Field, bool) {
	var first Field
	for _, name := range Fields {
		st := f.fields[name]
		f.validate(st)
		if st.Status == Invalid && first == "" {
			first = name
		}
	}
	if first != "" {
		return domain.Lead{}, first, false
	}
	return domain.Lead{
		Name:       strings.TrimSpace(f.fields[FieldName].Value),
		Email:      strings.TrimSpace(f.fields[FieldEmail].Value),
		Phone:      strings.TrimSpace(f.fields[FieldPhone].Value),
		Profession: strings.TrimSpace(f.fields[FieldProfession].Value),
		City:       strings.TrimSpace(f.fields[FieldCity].Value),
	}, "", true
}

// States returns every field state in form order.
func (f *Form) States() []FieldState {
	out := make([]FieldState, 0, len(Fields))
	for _, name := range Fields {
		out = append(out, *f.fields[name])
	}
	return out
}
