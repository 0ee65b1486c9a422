package middleware

import "net/http"

// corsAllowedMethods はJSON APIが受け付けるメソッド。APIは読み取り専用。
const corsAllowedMethods = "GET, OPTIONS"

// NewCORSMiddleware はJSON API用のCORSミドルウェアを返す。
//
// セッションCookieを伴うため、Originが allowedOrigin と一致したときだけ
// そのオリジンを許可として返す（ワイルドカードは使わない）。
// allowedOriginが空なら同一オリジンのみで、CORSヘッダーは付与しない。
// プリフライト（Access-Control-Request-Method付きのOPTIONS）には204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := allowedOrigin != "" && origin == allowedOrigin
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
					h.Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
					h.Set("Access-Control-Max-Age", "86400")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
