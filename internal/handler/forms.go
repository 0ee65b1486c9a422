package handler

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/emerald/internal/auth"
	"github.com/hitoshi/emerald/internal/member"
	"github.com/hitoshi/emerald/internal/model"
)

// usernamePattern はユーザー名に使える文字（英数字と @ . + - _）。
var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// newValidator はフォーム用のvalidatorを生成する。
// エラーの項目名にはformタグの値を使う。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("distance", func(fl validator.FieldLevel) bool {
		return member.ValidDistance(int(fl.Field().Int()))
	})
	// maxは文字数を数えるため、bcryptのバイト数上限はmaxbytesで検証する
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	})
	return v
}

var formValidator = newValidator()

// FieldErrors はフォーム項目ごとのエラーメッセージ。
type FieldErrors map[string]string

// validateForm はフォームを検証し、項目ごとのエラーメッセージを返す。
func validateForm(form any) FieldErrors {
	err := formValidator.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"": err.Error()}
	}

	errs := FieldErrors{}
	for _, fe := range verrs {
		if _, exists := errs[fe.Field()]; !exists {
			errs[fe.Field()] = fieldErrorMessage(fe)
		}
	}
	return errs
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value has at least %s characters.", fe.Param())
	case "maxbytes":
		return fmt.Sprintf("Ensure this value is at most %s bytes long.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "eqfield":
		return "The two password fields didn't match."
	case "timezone":
		return "Select a valid timezone."
	case "longitude":
		return "Enter a longitude between -180 and 180."
	case "latitude":
		return "Enter a latitude between -90 and 90."
	case "username":
		return "Enter a valid username. Letters, digits and @/./+/-/_ only."
	case "distance", "oneof":
		return "Select a valid choice."
	case "uuid":
		return "Invalid invite key."
	default:
		return "Enter a valid value."
	}
}

// applyAPIError はサービス層のAPIErrorをフォームのエラーに反映する。
// APIError以外の場合はfalseを返す。
func applyAPIError(errs FieldErrors, err error) (FieldErrors, bool) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return errs, false
	}
	if errs == nil {
		errs = FieldErrors{}
	}
	errs[apiErr.Field] = apiErr.Message
	return errs, true
}

// --- フォーム定義 ---

type loginForm struct {
	Username string `form:"username" validate:"required,max=150"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"next"`
}

func bindLoginForm(v url.Values) loginForm {
	return loginForm{
		Username: strings.TrimSpace(v.Get("username")),
		Password: v.Get("password"),
		Next:     v.Get("next"),
	}
}

type registerForm struct {
	Key             string `form:"key" validate:"required,uuid"`
	Username        string `form:"username" validate:"required,max=150,username"`
	Name            string `form:"name" validate:"max=150"`
	Email           string `form:"email" validate:"omitempty,email,max=254"`
	Password        string `form:"password" validate:"required,min=8,maxbytes=72"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
}

func bindRegisterForm(v url.Values) registerForm {
	return registerForm{
		Key:             strings.TrimSpace(v.Get("key")),
		Username:        strings.TrimSpace(v.Get("username")),
		Name:            strings.TrimSpace(v.Get("name")),
		Email:           strings.TrimSpace(v.Get("email")),
		Password:        v.Get("password"),
		PasswordConfirm: v.Get("password_confirm"),
	}
}

func (f registerForm) input() auth.RegisterInput {
	return auth.RegisterInput{
		InviteKey: f.Key,
		Username:  f.Username,
		Name:      f.Name,
		Email:     f.Email,
		Password:  f.Password,
	}
}

type profileForm struct {
	FirstName string `form:"first_name" validate:"max=150"`
	LastName  string `form:"last_name" validate:"max=150"`
	Timezone  string `form:"timezone" validate:"required,timezone"`
	Email     string `form:"email" validate:"omitempty,email,max=254"`
	Bio       string `form:"bio" validate:"max=5000"`
}

func bindProfileForm(v url.Values) profileForm {
	return profileForm{
		FirstName: strings.TrimSpace(v.Get("first_name")),
		LastName:  strings.TrimSpace(v.Get("last_name")),
		Timezone:  strings.TrimSpace(v.Get("timezone")),
		Email:     strings.TrimSpace(v.Get("email")),
		Bio:       v.Get("bio"),
	}
}

func profileFormFromUser(u *model.User) profileForm {
	return profileForm{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Timezone:  u.Timezone,
		Email:     u.Email,
		Bio:       u.Bio,
	}
}

type locationForm struct {
	Name      string `form:"name" validate:"max=255"`
	Longitude string `form:"longitude" validate:"omitempty,longitude"`
	Latitude  string `form:"latitude" validate:"omitempty,latitude"`
	Address   string `form:"address" validate:"max=500"`
}

func bindLocationForm(v url.Values) locationForm {
	return locationForm{
		Name:      strings.TrimSpace(v.Get("name")),
		Longitude: strings.TrimSpace(v.Get("longitude")),
		Latitude:  strings.TrimSpace(v.Get("latitude")),
		Address:   strings.TrimSpace(v.Get("address")),
	}
}

// validate は各項目に加え、経度・緯度が揃っていることを検証する。
func (f locationForm) validate() FieldErrors {
	errs := validateForm(f)
	if (f.Longitude == "") != (f.Latitude == "") {
		if errs == nil {
			errs = FieldErrors{}
		}
		errs["longitude"] = "Enter both longitude and latitude."
	}
	return errs
}

// coordinates は経度・緯度を数値に変換する。未入力の場合はnilを返す。
func (f locationForm) coordinates() (lon, lat *float64) {
	if f.Longitude == "" || f.Latitude == "" {
		return nil, nil
	}
	x, errX := strconv.ParseFloat(f.Longitude, 64)
	y, errY := strconv.ParseFloat(f.Latitude, 64)
	if errX != nil || errY != nil {
		return nil, nil
	}
	return &x, &y
}

type searchForm struct {
	Distance int `form:"distance" validate:"distance"`
}

// bindSearchForm は検索距離を読み取る。未指定の場合は既定値を使う。
func bindSearchForm(v url.Values) (searchForm, FieldErrors) {
	raw := strings.TrimSpace(v.Get("distance"))
	if raw == "" {
		return searchForm{Distance: member.DefaultDistance}, nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil {
		return searchForm{Distance: member.DefaultDistance}, FieldErrors{"distance": "Invalid distance"}
	}
	f := searchForm{Distance: d}
	return f, validateForm(f)
}
