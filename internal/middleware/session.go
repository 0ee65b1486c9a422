// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/emerald/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// LoginPath はログインページのパス。
const LoginPath = "/auth/login/"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var userIDContextKey = contextKey("user_id")

// ErrNoUserInContext はコンテキストにログインユーザーがいないことを示す。
var ErrNoUserInContext = errors.New("user ID not found in context")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// sessionUserID はCookieのセッションを検証し、ユーザーIDを返す。
// 未認証、またはセッション検索に失敗した場合は空文字列を返す。
func sessionUserID(r *http.Request, finder SessionFinder) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	session, err := finder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return ""
	}
	if session == nil {
		return ""
	}
	return session.UserID
}

// NewSessionMiddleware はJSON API用の認証ミドルウェアを返す。
// 有効なセッションがなければ401と統一JSONエラーを返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sessionUserID(r, sessionFinder)
			if userID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// NewRequireLoginMiddleware はページ用の認証ミドルウェアを返す。
// 未認証の場合はログインページへ?next=<戻り先>付きでリダイレクトする。
// HTMXリクエストにはHX-Redirectヘッダーと200を返す。
func NewRequireLoginMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sessionUserID(r, sessionFinder)
			if userID != "" {
				next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
				return
			}

			target := LoginURL(loginReturnPath(r))
			if r.Header.Get(htmxRequestHeader) == "true" {
				HTMXRedirect(w, target)
				return
			}
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}

// loginReturnPath はログイン後に戻すパスを返す。
// htmxリクエストは表示中のページ、それ以外はGET/HEADのみリクエスト先に戻す。
func loginReturnPath(r *http.Request) string {
	if h := ParseHTMX(r); h.Request && isLocalPath(h.CurrentURL) {
		return h.CurrentURL
	}
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return r.URL.RequestURI()
	}
	return ""
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//")
}

// NewOptionalSessionMiddleware は有効なセッションがあればユーザーIDを注入し、
// なければそのまま次へ渡すミドルウェアを返す。
func NewOptionalSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := sessionUserID(r, sessionFinder); userID != "" {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginURL はログイン後にnextへ戻るログインページのURLを返す。
func LoginURL(next string) string {
	if next == "" || next == "/" {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{"next": {next}}.Encode()
}

// UserIDFromContext はセッション系ミドルウェアが注入したユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUserInContext
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// アクセスログのミドルウェアより内側で呼ばれた場合もログにユーザーIDが残る。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if entry, ok := ctx.Value(accessLogContextKey).(*accessLogEntry); ok {
		entry.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
