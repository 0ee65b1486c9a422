package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/emerald/internal/model"
)

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// validSessionRepo はセッションID "valid" だけをuserIDのセッションとして返す。
func validSessionRepo(userID string) *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid" {
				return &model.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
			}
			return nil, nil
		},
	}
}

func mustNotBeCalled(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})
}

func TestSessionMiddleware_InjectsUserID(t *testing.T) {
	var got string
	h := NewSessionMiddleware(validSessionRepo("user-123"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-123", got)
}

func TestSessionMiddleware_RejectsWithJSON(t *testing.T) {
	failing := &mockSessionRepository{findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
		return nil, context.DeadlineExceeded
	}}
	tests := []struct {
		name   string
		repo   SessionFinder
		cookie *http.Cookie
	}{
		{"no cookie", validSessionRepo("u1"), nil},
		{"empty cookie", validSessionRepo("u1"), &http.Cookie{Name: SessionCookieName, Value: ""}},
		{"expired or unknown session", validSessionRepo("u1"), &http.Cookie{Name: SessionCookieName, Value: "expired"}},
		{"repository error", failing, &http.Cookie{Name: SessionCookieName, Value: "valid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/members/nearby", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			NewSessionMiddleware(tt.repo)(mustNotBeCalled(t)).ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			var body ErrorResponseBody
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, model.ErrCodeUnauthenticated, body.Code)
			assert.Equal(t, model.CategoryAuth, body.Category)
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	_, err := UserIDFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoUserInContext)

	_, err = UserIDFromContext(ContextWithUserID(context.Background(), ""))
	assert.ErrorIs(t, err, ErrNoUserInContext)

	id, err := UserIDFromContext(ContextWithUserID(context.Background(), "user-456"))
	require.NoError(t, err)
	assert.Equal(t, "user-456", id)
}

func TestRequireLogin_Redirects(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		htmx       bool
		currentURL string
		wantCode   int
		wantHeader string
		want       string
	}{
		{
			name: "page keeps query", method: http.MethodGet, target: "/members/?distance=10",
			wantCode: http.StatusFound, wantHeader: "Location",
			want: "/auth/login/?next=%2Fmembers%2F%3Fdistance%3D10",
		},
		{
			name: "form post has no return path", method: http.MethodPost, target: "/profile/edit/",
			wantCode: http.StatusFound, wantHeader: "Location", want: "/auth/login/",
		},
		{
			name: "htmx returns to current page", method: http.MethodPost, target: "/profile/location/",
			htmx: true, currentURL: "http://example.com/profile/?tab=locations",
			wantCode: http.StatusOK, wantHeader: "HX-Redirect",
			want: "/auth/login/?next=%2Fprofile%2F%3Ftab%3Dlocations",
		},
		{
			name: "htmx from another origin falls back to request", method: http.MethodGet, target: "/members/",
			htmx: true, currentURL: "https://evil.example.net/",
			wantCode: http.StatusOK, wantHeader: "HX-Redirect", want: "/auth/login/?next=%2Fmembers%2F",
		},
		{
			name: "htmx post without current url", method: http.MethodPost, target: "/profile/edit/",
			htmx: true, wantCode: http.StatusOK, wantHeader: "HX-Redirect", want: "/auth/login/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.htmx {
				req.Header.Set(htmxRequestHeader, "true")
			}
			if tt.currentURL != "" {
				req.Header.Set(htmxCurrentURLHeader, tt.currentURL)
			}
			w := httptest.NewRecorder()
			NewRequireLoginMiddleware(validSessionRepo("u1"))(mustNotBeCalled(t)).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.want, w.Header().Get(tt.wantHeader))
		})
	}
}

func TestRequireLogin_ValidSession_InjectsUserID(t *testing.T) {
	var got string
	h := NewRequireLoginMiddleware(validSessionRepo("u1"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "u1", got)
}

func TestOptionalSession(t *testing.T) {
	var got string
	h := NewOptionalSessionMiddleware(validSessionRepo("u9"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, got)

	req := httptest.NewRequest(http.MethodGet, "/auth/login/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u9", got)
}

func TestLoginURL(t *testing.T) {
	tests := map[string]string{
		"":          "/auth/login/",
		"/":         "/auth/login/",
		"/profile/": "/auth/login/?next=%2Fprofile%2F",
	}
	for next, want := range tests {
		assert.Equal(t, want, LoginURL(next), next)
	}
}
