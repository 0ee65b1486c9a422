package middleware

import "net/http"

// NewNoCacheMiddleware はブラウザ・プロキシにキャッシュさせないヘッダーを付与するミドルウェアを返す。
func NewNoCacheMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Expires", "0")
			next.ServeHTTP(w, r)
		})
	}
}
