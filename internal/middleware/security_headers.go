package middleware

import "net/http"

// contentSecurityPolicy はレイアウトが読み込む外部アセット（htmx、アイコンフォント）のみを許可する。
// アバターは自サイトから配信し、サイトアイコンはdata URIを使わない。
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline' https://maxst.icons8.com; " +
	"font-src 'self' https://maxst.icons8.com; " +
	"img-src 'self'; " +
	"form-action 'self'; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'"

// securityHeaders は全レスポンスに付与するヘッダー。
// 位置は住所入力とジオコーダーで扱うため、ブラウザの位置情報APIは無効にする。
var securityHeaders = map[string]string{
	"Content-Security-Policy": contentSecurityPolicy,
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "same-origin",
	"Permissions-Policy":      "camera=(), microphone=(), geolocation=(), interest-cohort=()",
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range securityHeaders {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
