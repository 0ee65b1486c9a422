package handler

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitoshi/emerald/internal/auth"
	"github.com/hitoshi/emerald/internal/member"
	"github.com/hitoshi/emerald/internal/model"
)

func TestValidateForm_Register(t *testing.T) {
	valid := registerForm{
		Key:             "0b6a9f1e-4a3c-4d2b-9e8f-7c6d5b4a3f21",
		Username:        "ada.l+test@home",
		Password:        "long-enough",
		PasswordConfirm: "long-enough",
	}
	assert.Nil(t, validateForm(valid))

	longest := valid
	longest.Password = strings.Repeat("a", auth.MaxPasswordBytes)
	longest.PasswordConfirm = longest.Password
	assert.Nil(t, validateForm(longest))

	tests := []struct {
		name  string
		edit  func(f *registerForm)
		field string
	}{
		{"bad key", func(f *registerForm) { f.Key = "nope" }, "key"},
		{"bad username", func(f *registerForm) { f.Username = "has space" }, "username"},
		{"short password", func(f *registerForm) { f.Password, f.PasswordConfirm = "short", "short" }, "password"},
		{"password over bcrypt limit", func(f *registerForm) { f.Password, f.PasswordConfirm = strings.Repeat("a", 73), strings.Repeat("a", 73) }, "password"},
		{"multibyte password over bcrypt limit", func(f *registerForm) { f.Password, f.PasswordConfirm = strings.Repeat("é", 37), strings.Repeat("é", 37) }, "password"},
		{"mismatch", func(f *registerForm) { f.PasswordConfirm = "something-else" }, "password_confirm"},
		{"bad email", func(f *registerForm) { f.Email = "not-an-email" }, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.edit(&f)
			errs := validateForm(f)
			assert.Contains(t, errs, tt.field)
		})
	}
}

func TestLocationForm_Coordinates(t *testing.T) {
	f := bindLocationForm(url.Values{"longitude": {" -87.5 "}, "latitude": {"41.25"}})
	assert.Nil(t, f.validate())

	lon, lat := f.coordinates()
	if assert.NotNil(t, lon) && assert.NotNil(t, lat) {
		assert.Equal(t, -87.5, *lon)
		assert.Equal(t, 41.25, *lat)
	}

	empty := bindLocationForm(url.Values{})
	lon, lat = empty.coordinates()
	assert.Nil(t, lon)
	assert.Nil(t, lat)
}

func TestLocationForm_OutOfRange(t *testing.T) {
	f := bindLocationForm(url.Values{"longitude": {"181"}, "latitude": {"0"}})
	errs := f.validate()
	assert.Contains(t, errs, "longitude")

	f = bindLocationForm(url.Values{"longitude": {"0"}, "latitude": {"-90.5"}})
	errs = f.validate()
	assert.Contains(t, errs, "latitude")
}

func TestBindSearchForm(t *testing.T) {
	f, errs := bindSearchForm(url.Values{})
	assert.Nil(t, errs)
	assert.Equal(t, member.DefaultDistance, f.Distance)

	f, errs = bindSearchForm(url.Values{"distance": {"500"}})
	assert.Nil(t, errs)
	assert.Equal(t, 500, f.Distance)

	_, errs = bindSearchForm(url.Values{"distance": {"7"}})
	assert.Contains(t, errs, "distance")

	_, errs = bindSearchForm(url.Values{"distance": {"abc"}})
	assert.Contains(t, errs, "distance")
}

func TestApplyAPIError(t *testing.T) {
	errs, ok := applyAPIError(nil, model.NewDuplicateUsernameError("bob"))
	assert.True(t, ok)
	assert.Contains(t, errs, "username")

	_, ok = applyAPIError(nil, errors.New("plain"))
	assert.False(t, ok)
}

func TestFormView_WithErrors(t *testing.T) {
	view := registerFormView(registerForm{}).withErrors(FieldErrors{
		"username":   "taken",
		"invite_key": "expired",
	})

	var usernameErr string
	for _, f := range view.Fields {
		if f.Name == "username" {
			usernameErr = f.Error
		}
	}
	assert.Equal(t, "taken", usernameErr)
	assert.Equal(t, "expired", view.Error)
}

func TestSearchFormView_SelectsDistance(t *testing.T) {
	view := searchFormView(searchForm{Distance: 50})
	opts := view.Fields[0].Options
	assert.Len(t, opts, len(member.DistanceChoices))
	for _, o := range opts {
		assert.Equal(t, o.Value == "50", o.Selected, o.Value)
	}
}
