package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/emerald/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// htmxのhx-headersとAPIクライアントが読めるようHttpOnlyにしない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はhtmxとAPIクライアントがトークンを送るヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	// CSRFFormField はHTMLフォームでCSRFトークンを送る際のフィールド名。
	CSRFFormField = "csrf_token"

	csrfCookieMaxAge = 24 * 60 * 60
	csrfTokenBytes   = 32
)

var csrfContextKey = contextKey("csrf_token")

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

func (c CSRFConfig) cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCSRFMiddleware はdouble submit cookie方式のCSRF対策ミドルウェアを返す。
//
// GET/HEAD/OPTIONSはトークンCookieを発行（未発行時）して通過させる。
// それ以外のメソッドはCookieの値とX-CSRF-Tokenヘッダー（なければcsrf_tokenフォーム項目）の一致を要求する。
// 通過したリクエストのトークンはCSRFTokenFromContextで取得できる。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if isSafeMethod(r.Method) {
				token = ensureCSRFCookie(w, r, config)
			} else {
				var reason string
				token, reason = verifyCSRF(r)
				if reason != "" {
					slog.Warn("CSRF validation failed",
						slog.String("reason", reason),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					rejectCSRF(w, r)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey, token)))
		})
	}
}

// verifyCSRF は検証済みトークンを返す。失敗時は理由を返す。
func verifyCSRF(r *http.Request) (token, reason string) {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "", "missing cookie token"
	}
	submitted := r.Header.Get(csrfHeaderName)
	if submitted == "" {
		submitted = r.PostFormValue(CSRFFormField)
	}
	if submitted == "" {
		return "", "missing request token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) != 1 {
		return "", "token mismatch"
	}
	return cookie.Value, ""
}

// rejectCSRF は403を返す。APIには統一JSONエラー、htmxにはスワップ抑止を付ける。
func rejectCSRF(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFTokenInvalidError())
		return
	}
	if r.Header.Get(htmxRequestHeader) == "true" {
		w.Header().Set("HX-Reswap", "none")
	}
	http.Error(w, "CSRF token validation failed", http.StatusForbidden)
}

// CSRFTokenFromContext はCSRFミドルウェアが検証・発行したトークンを返す。
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfContextKey).(string)
	return token
}

// NewCSRFTokenHandler はGET /api/csrf-token のハンドラーを返す。
// Cookieのトークンがあればそれを、なければ新規発行したトークンを{"token": ...}で返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ensureCSRFCookie(w, r, config)
		if token == "" {
			WriteInternalServerError(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ensureCSRFCookie は有効なトークンを返す。Cookieが無ければ発行する。
// 乱数生成に失敗した場合は空文字列を返す。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) string {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return ""
	}
	token := hex.EncodeToString(b)
	http.SetCookie(w, config.cookie(token))
	return token
}
