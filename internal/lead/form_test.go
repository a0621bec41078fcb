package lead

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePhone(t *testing.T) {
	assert.Equal(t, "12", SanitizePhone("abc12"))
	assert.Equal(t, "5712345678901", SanitizePhone("+57 (123) 456-7890-1234-99"))

	for _, in := range []string{"abc12", "300 123 4567", "99999999999999999", ""} {
		once := SanitizePhone(in)
		assert.Equal(t, once, SanitizePhone(once), "input %q", in)
		assert.LessOrEqual(t, len(once), MaxPhoneDigits)
	}
}

func TestSanitizeWordish(t *testing.T) {
	cases := map[string]string{
		"  Ana   María":   "Ana María",
		"-José_123 Pérez": "José Pérez",
		"Bogotá D.C.":     "Bogotá DC",
		"São\tPaulo":      "São Paulo",
		"- -Ñandú":        "Ñandú",
	}
	for in, want := range cases {
		got := SanitizeWordish(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, SanitizeWordish(got), "idempotent for %q", in)
	}
}

func TestValidate(t *testing.T) {
	assert.Empty(t, Validate(FieldName, "Ana"))
	assert.Equal(t, MsgName, Validate(FieldName, "A"))
	assert.Equal(t, MsgName, Validate(FieldName, strings.Repeat("a", 61)))
	assert.Empty(t, Validate(FieldCity, strings.Repeat("á", 60)))

	assert.Empty(t, Validate(FieldEmail, "ana@ecolite.com.co"))
	assert.Equal(t, MsgEmail, Validate(FieldEmail, "ana@ecolite"))
	assert.Equal(t, MsgEmail, Validate(FieldEmail, "ana ecolite.com"))

	assert.Empty(t, Validate(FieldPhone, "3001234567"))
	assert.Equal(t, MsgPhone, Validate(FieldPhone, "300123456"))
	assert.Equal(t, MsgPhone, Validate(FieldPhone, "30012345678"))
}

func TestFormLifecycle(t *testing.T) {
	f := NewForm()
	assert.Equal(t, Untouched, f.State(FieldName).Status)

	st := f.Input(FieldName, "A")
	assert.Equal(t, Untouched, st.Status)

	st = f.Blur(FieldName)
	assert.Equal(t, Invalid, st.Status)
	assert.Equal(t, MsgName, st.Error)

	st = f.Input(FieldName, "An1a")
	assert.Equal(t, "Ana", st.Value)
	assert.Equal(t, Touched, st.Status)
	assert.Empty(t, st.Error)

	st = f.Blur(FieldName)
	assert.Equal(t, Valid, st.Status)
}

func TestSubmitBlocksOnPhone(t *testing.T) {
	f := NewForm()
	f.Input(FieldName, "Ana")
	f.Input(FieldEmail, "ana@ecolite.com.co")
	st := f.Input(FieldPhone, "abc12")
	require.Equal(t, "12", st.Value)
	f.Input(FieldProfession, "Arquitecta")
	f.Input(FieldCity, "Medellín")

	_, first, ok := f.Submit()

	assert.False(t, ok)
	assert.Equal(t, FieldPhone, first)
	assert.Equal(t, MsgPhone, f.State(FieldPhone).Error)
	assert.Equal(t, Valid, f.State(FieldName).Status)
}

func TestSubmitValidatesUntouchedFieldsInOrder(t *testing.T) {
	f := NewForm()
	f.Input(FieldPhone, "3001234567")

	_, first, ok := f.Submit()

	assert.False(t, ok)
	assert.Equal(t, FieldName, first)
	for _, st := range f.States() {
		if st.Field == FieldPhone {
			assert.Equal(t, Valid, st.Status)
			continue
		}
		assert.Equal(t, Invalid, st.Status, "field %s", st.Field)
	}
}

func TestSubmitSuccess(t *testing.T) {
	f := NewForm()
	f.Input(FieldName, "Ana María ")
	f.Input(FieldEmail, " ana@ecolite.com.co")
	f.Input(FieldPhone, "300 123 4567")
	f.Input(FieldProfession, "Ingeniera")
	f.Input(FieldCity, "Cali")

	got, first, ok := f.Submit()

	require.True(t, ok)
	assert.Empty(t, first)
	assert.Equal(t, "Ana María", got.Name)
	assert.Equal(t, "ana@ecolite.com.co", got.Email)
	assert.Equal(t, "3001234567", got.Phone)
	assert.Equal(t, "Ingeniera", got.Profession)
	assert.Equal(t, "Cali", got.City)
}

func TestParseField(t *testing.T) {
	f, ok := ParseField("city")
	assert.True(t, ok)
	assert.Equal(t, FieldCity, f)

	_, ok = ParseField("zip")
	assert.False(t, ok)
}
