package handler

import (
	"strconv"

	"github.com/hitoshi/emerald/internal/member"
)

// Option はselect項目の選択肢。
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// FormField はフォーム項目の表示内容。
type FormField struct {
	Name        string
	Label       string
	Type        string // text, password, email, textarea, select, hidden, number, file
	Value       string
	Placeholder string
	Help        string
	Required    bool
	Options     []Option
	Error       string
}

// FormView はpartial/formテンプレートに渡すフォームの表示内容。
type FormView struct {
	Title      string
	Action     string
	Multipart  bool
	Fields     []FormField
	Error      string // 項目に紐づかないエラー
	SubmitText string
	SubmitIcon string
	CancelURL  string
}

// withErrors は各項目にエラーメッセージを割り当てる。
func (f *FormView) withErrors(errs FieldErrors) *FormView {
	for i := range f.Fields {
		if msg, ok := errs[f.Fields[i].Name]; ok {
			f.Fields[i].Error = msg
		}
	}
	assigned := map[string]bool{}
	for _, field := range f.Fields {
		assigned[field.Name] = true
	}
	for name, msg := range errs {
		if !assigned[name] {
			f.Error = msg
			break
		}
	}
	return f
}

func loginFormView(f loginForm) *FormView {
	return &FormView{
		Title:  "Sign in",
		Action: "/auth/login/",
		Fields: []FormField{
			{Name: "username", Label: "Username", Type: "text", Value: f.Username, Placeholder: "Username (required)", Required: true},
			{Name: "password", Label: "Password", Type: "password", Placeholder: "Password (required)", Required: true},
			{Name: "next", Type: "hidden", Value: f.Next},
		},
		SubmitText: "Login",
		SubmitIcon: "las la-sign-in-alt",
	}
}

func registerFormView(f registerForm) *FormView {
	return &FormView{
		Title:  "Create account",
		Action: "/auth/register/",
		Fields: []FormField{
			{Name: "key", Type: "hidden", Value: f.Key},
			{Name: "username", Label: "Username", Type: "text", Value: f.Username, Required: true,
				Help: "150 characters or fewer. Letters, digits and @/./+/-/_ only."},
			{Name: "name", Label: "Name", Type: "text", Value: f.Name},
			{Name: "email", Label: "Email", Type: "email", Value: f.Email},
			{Name: "password", Label: "Password", Type: "password", Required: true,
				Help: "At least 8 characters."},
			{Name: "password_confirm", Label: "Password confirmation", Type: "password", Required: true},
		},
		SubmitText: "Create account",
		SubmitIcon: "las la-user-plus",
	}
}

func profileFormView(f profileForm) *FormView {
	return &FormView{
		Title:  "Edit profile",
		Action: "/profile/edit/",
		Fields: []FormField{
			{Name: "first_name", Label: "First name", Type: "text", Value: f.FirstName},
			{Name: "last_name", Label: "Last name", Type: "text", Value: f.LastName},
			{Name: "timezone", Label: "Timezone", Type: "text", Value: f.Timezone, Required: true,
				Placeholder: "UTC", Help: "IANA timezone name such as America/Chicago."},
			{Name: "email", Label: "Email", Type: "email", Value: f.Email},
			{Name: "bio", Label: "About", Type: "textarea", Value: f.Bio},
		},
		SubmitText: "Save",
		SubmitIcon: "las la-save",
		CancelURL:  "/profile/",
	}
}

func locationFormView(f locationForm, defaultLon, defaultLat float64, geocoding bool) *FormView {
	fields := []FormField{
		{Name: "name", Label: "Name", Type: "text", Value: f.Name},
		{Name: "longitude", Label: "Longitude", Type: "number", Value: f.Longitude,
			Placeholder: strconv.FormatFloat(defaultLon, 'f', 6, 64)},
		{Name: "latitude", Label: "Latitude", Type: "number", Value: f.Latitude,
			Placeholder: strconv.FormatFloat(defaultLat, 'f', 6, 64)},
	}
	if geocoding {
		fields = append(fields, FormField{
			Name: "address", Label: "Address", Type: "text", Value: f.Address,
			Help: "Used when longitude and latitude are left blank.",
		})
	}
	return &FormView{
		Title:      "Add location",
		Action:     "/profile/location/new/",
		Fields:     fields,
		SubmitText: "Save",
		SubmitIcon: "las la-map-marker",
		CancelURL:  "/profile/",
	}
}

func searchFormView(f searchForm) *FormView {
	options := make([]Option, len(member.DistanceChoices))
	for i, d := range member.DistanceChoices {
		options[i] = Option{
			Value:    strconv.Itoa(d),
			Label:    strconv.Itoa(d) + " Miles",
			Selected: d == f.Distance,
		}
	}
	return &FormView{
		Action: "/members/search/",
		Fields: []FormField{
			{Name: "distance", Label: "Distance", Type: "select", Options: options, Required: true},
		},
		SubmitText: "Search",
		SubmitIcon: "las la-search",
	}
}
