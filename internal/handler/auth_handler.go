package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/emerald/internal/metrics"
	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/model"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウト・アカウント作成のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	invites  InviteValidator
	renderer *Renderer
	recorder LoginRecorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnilでもよい。
func NewAuthHandler(
	service AuthServiceInterface,
	invites InviteValidator,
	renderer *Renderer,
	recorder LoginRecorder,
	config AuthHandlerConfig,
) *AuthHandler {
	return &AuthHandler{
		service:  service,
		invites:  invites,
		renderer: renderer,
		recorder: recorder,
		config:   config,
	}
}

// LoginPage はGET /auth/login/ のハンドラー。
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	form := loginForm{Next: r.URL.Query().Get("next")}
	h.renderLogin(w, r, http.StatusOK, form, nil)
}

// Login はPOST /auth/login/ のハンドラー。
// 成功時はセッションCookieを発行し、nextがサイト内のパスであればそこへ遷移する。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	form := bindLoginForm(r.PostForm)
	if errs := validateForm(form); errs != nil {
		h.renderLogin(w, r, http.StatusBadRequest, form, errs)
		return
	}

	session, err := h.service.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			h.record(metrics.LoginFailure)
			h.renderLogin(w, r, http.StatusBadRequest, form, FieldErrors{"": apiErr.Message})
			return
		}
		serverError(w, r, err)
		return
	}

	h.record(metrics.LoginSuccess)
	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)
	redirect(w, r, localRedirect(form.Next))
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, form loginForm, errs FieldErrors) {
	data := h.renderer.newPageData(r, nil, "", loginFormView(form).withErrors(errs))
	data.Title = "Login"
	data.HideHeaderBar = true
	h.renderer.renderForm(w, r, status, data)
}

// Logout はGET/POST /auth/logout/ のハンドラー。
// サービス側の削除に失敗してもCookieは必ず削除する。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	h.setSessionCookie(w, "", -1)

	if middleware.HTMXFromContext(r).IsAsync() {
		middleware.HTMXRedirect(w, middleware.LoginPath)
		return
	}
	http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
}

// RegisterPage はGET /auth/register/?key= のハンドラー。
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	form := registerForm{Key: strings.TrimSpace(r.URL.Query().Get("key"))}

	if _, err := h.invites.Validate(r.Context(), form.Key); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			h.renderRegister(w, r, http.StatusBadRequest, form, FieldErrors{"": apiErr.Message})
			return
		}
		serverError(w, r, err)
		return
	}

	h.renderRegister(w, r, http.StatusOK, form, nil)
}

// Register はPOST /auth/register/ のハンドラー。
// 作成に成功するとそのままログイン状態にしてプロフィール画面へ遷移する。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	form := bindRegisterForm(r.PostForm)
	if errs := validateForm(form); errs != nil {
		h.renderRegister(w, r, http.StatusBadRequest, form, errs)
		return
	}

	session, err := h.service.Register(r.Context(), form.input())
	if err != nil {
		if errs, ok := applyAPIError(nil, err); ok {
			h.renderRegister(w, r, http.StatusBadRequest, form, errs)
			return
		}
		serverError(w, r, err)
		return
	}

	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)
	redirect(w, r, "/profile/")
}

func (h *AuthHandler) renderRegister(w http.ResponseWriter, r *http.Request, status int, form registerForm, errs FieldErrors) {
	data := h.renderer.newPageData(r, nil, "", registerFormView(form).withErrors(errs))
	data.Title = "Create account"
	data.HideHeaderBar = true
	h.renderer.renderForm(w, r, status, data)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	writeSessionCookie(w, h.config, value, maxAge)
}

// writeSessionCookie はセッションCookieを書き込む。maxAgeが負の場合は削除になる。
func writeSessionCookie(w http.ResponseWriter, config AuthHandlerConfig, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) record(result string) {
	if h.recorder != nil {
		h.recorder.RecordLogin(result)
	}
}

// localRedirect はnextがサイト内のパスであればそれを、そうでなければ"/"を返す。
func localRedirect(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}
