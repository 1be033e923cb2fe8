package validation

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_ErrNilWhenEmpty(t *testing.T) {
	e := Errors{}
	assert.NoError(t, e.Err())

	e.Add("email", "This field is required.")
	assert.Error(t, e.Err())
}

func TestErrors_JSONShape(t *testing.T) {
	e := Errors{}
	e.Add("email", "This field is required.")
	e.Add("email", "Enter a valid email address.")

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":["This field is required.","Enter a valid email address."]}`, string(b))
}

func TestErrors_ErrorStringIsSorted(t *testing.T) {
	e := Errors{"b": {"two"}, "a": {"one"}}
	assert.Equal(t, "validation failed: a: one; b: two", e.Error())
}

func TestAs_Wrapped(t *testing.T) {
	err := fmt.Errorf("create patient: %w", Single("gender", "bad"))
	ve, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"bad"}, ve["gender"])

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestErrors_Merge(t *testing.T) {
	e := Errors{}
	e.Merge("user", Errors{"email": {"taken"}})
	e.Merge("", Errors{"gender": {"bad"}})
	assert.Equal(t, []string{"taken"}, e["user.email"])
	assert.Equal(t, []string{"bad"}, e["gender"])
}

func TestErrors_Helpers(t *testing.T) {
	e := Errors{}
	assert.False(t, e.Required("name", "   "))
	assert.True(t, e.Required("ok", "x"))
	assert.False(t, e.MaxLength("code", "abcdef", 5))
	assert.True(t, e.MaxLength("code2", "ñandú", 5))
	assert.False(t, e.Choice("status", "bogus", map[string]string{"active": "Active"}))
	assert.False(t, e.Between("systolic", 300, 50, 250))
	assert.False(t, e.Between("temperature", 90.5, 95.0, 108.0))
	assert.True(t, e.Between("heart_rate", 72, 30, 220))

	assert.Equal(t, []string{"This field is required."}, e["name"])
	assert.Equal(t, []string{"Ensure this field has no more than 5 characters."}, e["code"])
	assert.Equal(t, []string{`"bogus" is not a valid choice.`}, e["status"])
	assert.Equal(t, []string{"Ensure this value is less than or equal to 250."}, e["systolic"])
	assert.Equal(t, []string{"Ensure this value is greater than or equal to 95."}, e["temperature"])
	assert.False(t, e.Has("ok"))
	assert.False(t, e.Has("heart_rate"))
}
