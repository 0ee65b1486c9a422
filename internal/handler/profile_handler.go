package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/profile"
)

// ProfileHandlerConfig はプロフィールハンドラーの設定。
type ProfileHandlerConfig struct {
	DefaultLongitude float64
	DefaultLatitude  float64
	Geocoding        bool // 住所からの地点登録を受け付けるか
	Cookie           AuthHandlerConfig
}

// ProfileHandler はログイン中ユーザー自身のプロフィールを扱うHTTPハンドラー。
type ProfileHandler struct {
	service  ProfileServiceInterface
	users    UserFinder
	renderer *Renderer
	config   ProfileHandlerConfig
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(
	service ProfileServiceInterface,
	users UserFinder,
	renderer *Renderer,
	config ProfileHandlerConfig,
) *ProfileHandler {
	return &ProfileHandler{
		service:  service,
		users:    users,
		renderer: renderer,
		config:   config,
	}
}

// Home はGET / のハンドラー。プロフィール画面へ遷移する。
func (h *ProfileHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/profile/", http.StatusFound)
}

// Show はGET /profile/ のハンドラー。
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		writeErrorPage(w, r, err)
		return
	}

	data := h.renderer.newPageData(r, p.User, tabProfile, p)
	data.Title = "Profile"
	h.renderer.Page(w, http.StatusOK, "profile", data)
}

// EditPage はGET /profile/edit/ のハンドラー。
func (h *ProfileHandler) EditPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		writeErrorPage(w, r, err)
		return
	}

	h.renderEdit(w, r, http.StatusOK, p, profileFormFromUser(p.User), nil)
}

// Edit はPOST /profile/edit/ のハンドラー。
func (h *ProfileHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	form := bindProfileForm(r.PostForm)
	if errs := validateForm(form); errs != nil {
		h.renderEditFor(w, r, userID, form, errs)
		return
	}

	_, err := h.service.UpdateProfile(r.Context(), userID, profile.ProfileInput{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Email:     form.Email,
		Timezone:  form.Timezone,
		Bio:       form.Bio,
	})
	if err != nil {
		if errs, ok := applyAPIError(nil, err); ok {
			h.renderEditFor(w, r, userID, form, errs)
			return
		}
		serverError(w, r, err)
		return
	}

	redirect(w, r, "/profile/")
}

func (h *ProfileHandler) renderEditFor(w http.ResponseWriter, r *http.Request, userID string, form profileForm, errs FieldErrors) {
	p, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		writeErrorPage(w, r, err)
		return
	}
	h.renderEdit(w, r, http.StatusBadRequest, p, form, errs)
}

func (h *ProfileHandler) renderEdit(w http.ResponseWriter, r *http.Request, status int, p *profile.Profile, form profileForm, errs FieldErrors) {
	data := h.renderer.newPageData(r, p.User, tabProfile, profileFormView(form).withErrors(errs))
	data.Title = "Edit profile"
	h.renderer.renderForm(w, r, status, data)
}

// NewLocationPage はGET /profile/location/new/ のハンドラー。
func (h *ProfileHandler) NewLocationPage(w http.ResponseWriter, r *http.Request) {
	h.renderLocation(w, r, http.StatusOK, locationForm{}, nil)
}

// NewLocation はPOST /profile/location/new/ のハンドラー。
// 経度・緯度の指定を優先し、未指定の場合は住所から地点を求める。
func (h *ProfileHandler) NewLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	form := bindLocationForm(r.PostForm)
	if !h.config.Geocoding {
		form.Address = ""
	}
	if errs := form.validate(); errs != nil {
		h.renderLocation(w, r, http.StatusBadRequest, form, errs)
		return
	}

	lon, lat := form.coordinates()
	_, err := h.service.CreateLocation(r.Context(), userID, profile.LocationInput{
		Name:      form.Name,
		Longitude: lon,
		Latitude:  lat,
		Address:   form.Address,
	})
	if err != nil {
		if errs, ok := applyAPIError(nil, err); ok {
			h.renderLocation(w, r, http.StatusBadRequest, form, errs)
			return
		}
		serverError(w, r, err)
		return
	}

	redirect(w, r, "/profile/")
}

func (h *ProfileHandler) renderLocation(w http.ResponseWriter, r *http.Request, status int, form locationForm, errs FieldErrors) {
	user, err := currentUser(r, h.users)
	if err != nil {
		serverError(w, r, err)
		return
	}
	view := locationFormView(form, h.config.DefaultLongitude, h.config.DefaultLatitude, h.config.Geocoding)
	data := h.renderer.newPageData(r, user, tabProfile, view.withErrors(errs))
	data.Title = "Add location"
	h.renderer.renderForm(w, r, status, data)
}

// DeleteLocation はPOST /profile/location/{id}/delete/ のハンドラー。
func (h *ProfileHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteLocation(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeErrorPage(w, r, err)
		return
	}

	redirect(w, r, "/profile/")
}

// Avatar はPOST /profile/avatar/ のハンドラー。multipartのavatar項目を受け付ける。
func (h *ProfileHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	file, _, err := r.FormFile("avatar")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "avatar image is too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "avatar image is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := h.service.SetAvatar(r.Context(), userID, file); err != nil {
		writeErrorPage(w, r, err)
		return
	}

	redirect(w, r, "/profile/")
}

// Withdraw はPOST /profile/withdraw/ のハンドラー。
// アカウント削除後はセッションCookieを削除してログイン画面へ遷移する。
func (h *ProfileHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		writeErrorPage(w, r, err)
		return
	}

	slog.Info("account withdrawn", slog.String("user_id", userID))
	writeSessionCookie(w, h.config.Cookie, "", -1)
	redirect(w, r, middleware.LoginPath)
}
