package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/emerald/internal/auth"
	"github.com/hitoshi/emerald/internal/metrics"
	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/model"
)

func newTestAuthHandler(t *testing.T, svc *mockAuthService, invites *mockInviteValidator, rec *mockLoginRecorder) *AuthHandler {
	t.Helper()
	if invites == nil {
		invites = &mockInviteValidator{}
	}
	var recorder LoginRecorder
	if rec != nil {
		recorder = rec
	}
	return NewAuthHandler(svc, invites, newTestRenderer(t), recorder, AuthHandlerConfig{
		SessionMaxAge: 86400,
	})
}

func successfulLogin() *mockAuthService {
	return &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			return &model.Session{ID: "session-abc", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
}

func TestAuthHandler_LoginPage_RendersForm(t *testing.T) {
	h := newTestAuthHandler(t, &mockAuthService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/login/?next=/members/search/", nil)
	w := httptest.NewRecorder()
	h.LoginPage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `name="username"`) {
		t.Error("expected username field in login form")
	}
	if !strings.Contains(body, `value="/members/search/"`) {
		t.Error("expected next value to be carried in hidden field")
	}
	if strings.Contains(body, `class="header-bar"`) {
		t.Error("login page should hide the header bar")
	}
}

func TestAuthHandler_Login_Success_SetsCookieAndRedirectsToNext(t *testing.T) {
	rec := &mockLoginRecorder{}
	h := newTestAuthHandler(t, successfulLogin(), nil, rec)

	req := postForm("/auth/login/", url.Values{
		"username": {"alice"},
		"password": {"secret-password"},
		"next":     {"/members/search/"},
	})
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/members/search/" {
		t.Errorf("Location = %q, want %q", loc, "/members/search/")
	}

	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if cookie.Value != "session-abc" || !cookie.HttpOnly || cookie.MaxAge != 86400 {
		t.Errorf("unexpected session cookie: %+v", cookie)
	}
	if len(rec.results) != 1 || rec.results[0] != metrics.LoginSuccess {
		t.Errorf("recorded = %v, want [%s]", rec.results, metrics.LoginSuccess)
	}
}

func TestAuthHandler_Login_ExternalNextFallsBackToRoot(t *testing.T) {
	h := newTestAuthHandler(t, successfulLogin(), nil, nil)

	req := postForm("/auth/login/", url.Values{
		"username": {"alice"},
		"password": {"secret-password"},
		"next":     {"https://evil.example.com/"},
	})
	w := httptest.NewRecorder()
	h.Login(w, req)

	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want %q", loc, "/")
	}
}

func TestAuthHandler_Login_HTMXSuccess_SetsHXRedirect(t *testing.T) {
	h := newTestAuthHandler(t, successfulLogin(), nil, nil)

	req := asHTMX(postForm("/auth/login/", url.Values{
		"username": {"alice"},
		"password": {"secret-password"},
	}))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("HX-Redirect"); got != "/" {
		t.Errorf("HX-Redirect = %q, want %q", got, "/")
	}
}

func TestAuthHandler_Login_InvalidCredentials_RerendersForm(t *testing.T) {
	rec := &mockLoginRecorder{}
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := newTestAuthHandler(t, svc, nil, rec)

	req := postForm("/auth/login/", url.Values{"username": {"alice"}, "password": {"wrong"}})
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if findCookie(w.Result(), middleware.SessionCookieName) != nil {
		t.Error("session cookie must not be set on failure")
	}
	if !strings.Contains(w.Body.String(), "non-field") {
		t.Error("expected non-field error in the form")
	}
	if len(rec.results) != 1 || rec.results[0] != metrics.LoginFailure {
		t.Errorf("recorded = %v, want [%s]", rec.results, metrics.LoginFailure)
	}
}

func TestAuthHandler_Login_HTMXInvalid_RendersPartialOnly(t *testing.T) {
	h := newTestAuthHandler(t, &mockAuthService{}, nil, nil)

	req := asHTMX(postForm("/auth/login/", url.Values{"username": {""}, "password": {""}}))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if strings.Contains(body, "<html") {
		t.Error("partial response must not contain the layout")
	}
	if !strings.Contains(body, `id="form-container"`) {
		t.Error("expected form partial")
	}
	if !strings.Contains(body, "This field is required.") {
		t.Error("expected required field error")
	}
}

func TestAuthHandler_Login_ServiceError_Returns500(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			return nil, errors.New("db down")
		},
	}
	h := newTestAuthHandler(t, svc, nil, nil)

	req := postForm("/auth/login/", url.Values{"username": {"alice"}, "password": {"secret"}})
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestAuthHandler_Logout_ClearsCookieAndRedirects(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}
	h := newTestAuthHandler(t, svc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout/", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != middleware.LoginPath {
		t.Errorf("Location = %q, want %q", loc, middleware.LoginPath)
	}
	if loggedOut != "session-abc" {
		t.Errorf("Logout called with %q, want %q", loggedOut, "session-abc")
	}
	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("expected expired session cookie, got %+v", cookie)
	}
}

func TestAuthHandler_Logout_ServiceErrorStillClearsCookie(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			return errors.New("db down")
		},
	}
	h := newTestAuthHandler(t, svc, nil, nil)

	req := asHTMX(httptest.NewRequest(http.MethodPost, "/auth/logout/", nil))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("HX-Redirect"); got != middleware.LoginPath {
		t.Errorf("HX-Redirect = %q, want %q", got, middleware.LoginPath)
	}
	if cookie := findCookie(resp, middleware.SessionCookieName); cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("expected expired session cookie, got %+v", cookie)
	}
}

func TestAuthHandler_RegisterPage_InvalidKey(t *testing.T) {
	invites := &mockInviteValidator{
		validateFn: func(ctx context.Context, id string) (*model.InviteKey, error) {
			return nil, model.NewInvalidInviteKeyError()
		},
	}
	h := newTestAuthHandler(t, &mockAuthService{}, invites, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/register/?key=bogus", nil)
	w := httptest.NewRecorder()
	h.RegisterPage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "non-field") {
		t.Error("expected invite key error to be shown")
	}
}

func TestAuthHandler_RegisterPage_ValidKey(t *testing.T) {
	key := "0b6a9f1e-4a3c-4d2b-9e8f-7c6d5b4a3f21"
	h := newTestAuthHandler(t, &mockAuthService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/register/?key="+key, nil)
	w := httptest.NewRecorder()
	h.RegisterPage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `value="`+key+`"`) {
		t.Error("expected invite key in hidden field")
	}
}

func TestAuthHandler_Register_Success(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.Session, error) {
			got = in
			return &model.Session{ID: "new-session", UserID: "user-2"}, nil
		},
	}
	h := newTestAuthHandler(t, svc, nil, nil)

	req := postForm("/auth/register/", url.Values{
		"key":              {"0b6a9f1e-4a3c-4d2b-9e8f-7c6d5b4a3f21"},
		"username":         {"bob"},
		"name":             {"Bob"},
		"email":            {"bob@example.com"},
		"password":         {"long-enough"},
		"password_confirm": {"long-enough"},
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/profile/" {
		t.Errorf("Location = %q, want %q", loc, "/profile/")
	}
	if got.Username != "bob" || got.InviteKey != "0b6a9f1e-4a3c-4d2b-9e8f-7c6d5b4a3f21" {
		t.Errorf("unexpected register input: %+v", got)
	}
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.Value != "new-session" {
		t.Errorf("expected session cookie, got %+v", c)
	}
}

func TestAuthHandler_Register_PasswordMismatch(t *testing.T) {
	called := false
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.Session, error) {
			called = true
			return nil, nil
		},
	}
	h := newTestAuthHandler(t, svc, nil, nil)

	req := postForm("/auth/register/", url.Values{
		"key":              {"0b6a9f1e-4a3c-4d2b-9e8f-7c6d5b4a3f21"},
		"username":         {"bob"},
		"password":         {"long-enough"},
		"password_confirm": {"different!"},
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("Register must not be called for an invalid form")
	}
	if !strings.Contains(w.Body.String(), "didn&#39;t match") {
		t.Error("expected password mismatch message")
	}
}

func TestAuthHandler_Register_PasswordOverBcryptLimit(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.Session, error) {
			t.Error("Register must not be called for an over-long password")
			return nil, nil
		},
	}
	h := newTestAuthHandler(t, svc, nil, nil)

	// 25文字だが75バイト
	password := strings.Repeat("あ", 25)
	req := postForm("/auth/register/", url.Values{
		"key":              {"0b6a9f1e-4a3c-4d2b-9e8f-7c6d5b4a3f21"},
		"username":         {"bob"},
		"password":         {password},
		"password_confirm": {password},
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "at most 72 bytes") {
		t.Error("expected password length message")
	}
}

// TestAuthHandler_Register_ServiceValidationError はサービス層の検証エラーがフォームエラーになることを検証する。
func TestAuthHandler_Register_ServiceValidationError(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.Session, error) {
			return nil, model.NewValidationError("password", "72バイト以内で入力してください")
		},
	}
	h := newTestAuthHandler(t, svc, nil, nil)

	req := postForm("/auth/register/", url.Values{
		"key":              {"0b6a9f1e-4a3c-4d2b-9e8f-7c6d5b4a3f21"},
		"username":         {"bob"},
		"password":         {"long-enough"},
		"password_confirm": {"long-enough"},
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "72バイト以内") {
		t.Error("expected service validation message")
	}
}

func TestAuthHandler_Register_DuplicateUsername(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.Session, error) {
			return nil, model.NewDuplicateUsernameError(in.Username)
		},
	}
	h := newTestAuthHandler(t, svc, nil, nil)

	req := postForm("/auth/register/", url.Values{
		"key":              {"0b6a9f1e-4a3c-4d2b-9e8f-7c6d5b4a3f21"},
		"username":         {"bob"},
		"password":         {"long-enough"},
		"password_confirm": {"long-enough"},
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "has-error") {
		t.Error("expected username field error")
	}
}

func TestLocalRedirect(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/"},
		{"/profile/", "/profile/"},
		{"/members/search/?distance=5", "/members/search/?distance=5"},
		{"//evil.example.com/", "/"},
		{"/\\evil.example.com", "/"},
		{"https://evil.example.com/", "/"},
		{"relative/path", "/"},
	}
	for _, tt := range tests {
		if got := localRedirect(tt.next); got != tt.want {
			t.Errorf("localRedirect(%q) = %q, want %q", tt.next, got, tt.want)
		}
	}
}
