package middleware

import (
	"context"
	"net/http"
	"net/url"
)

// HTMXのリクエスト・レスポンスヘッダー名。
const (
	htmxRequestHeader        = "HX-Request"
	htmxBoostedHeader        = "HX-Boosted"
	htmxHistoryRestoreHeader = "HX-History-Restore-Request"
	htmxCurrentURLHeader     = "HX-Current-URL"
	htmxPromptHeader         = "HX-Prompt"
	htmxTargetHeader         = "HX-Target"
	htmxTriggerHeader        = "HX-Trigger"
	htmxTriggerNameHeader    = "HX-Trigger-Name"
	htmxRedirectHeader       = "HX-Redirect"
	requestedWithHeader      = "X-Requested-With"
)

var htmxContextKey = contextKey("htmx")

// HTMX はHTMXリクエストヘッダーの解析結果。
type HTMX struct {
	Request        bool
	Boosted        bool
	HistoryRestore bool
	XMLHTTPRequest bool
	CurrentURL     string
	CurrentURLAbs  string
	Prompt         string
	Target         string
	Trigger        string
	TriggerName    string
}

// IsAsync はHTMXまたはXMLHttpRequestによる非同期リクエストかを返す。
func (h HTMX) IsAsync() bool {
	return h.Request || h.XMLHTTPRequest
}

// IsPartial は部分テンプレートで応答すべきリクエストかを返す。
// boostedリクエストと履歴復元はページ全体を必要とする。
func (h HTMX) IsPartial() bool {
	return h.Request && !h.Boosted && !h.HistoryRestore
}

// ParseHTMX はリクエストヘッダーからHTMXの情報を読み取る。
func ParseHTMX(r *http.Request) HTMX {
	h := HTMX{
		Request:        r.Header.Get(htmxRequestHeader) == "true",
		Boosted:        r.Header.Get(htmxBoostedHeader) == "true",
		HistoryRestore: r.Header.Get(htmxHistoryRestoreHeader) == "true",
		XMLHTTPRequest: r.Header.Get(requestedWithHeader) == "XMLHttpRequest",
		Prompt:         r.Header.Get(htmxPromptHeader),
		Target:         r.Header.Get(htmxTargetHeader),
		Trigger:        r.Header.Get(htmxTriggerHeader),
		TriggerName:    r.Header.Get(htmxTriggerNameHeader),
	}

	if raw := r.Header.Get(htmxCurrentURLHeader); raw != "" {
		h.CurrentURLAbs = raw
		// 同一オリジンの場合はパス以降のみを保持する
		if u, err := url.Parse(raw); err == nil && u.Host == r.Host {
			h.CurrentURL = u.RequestURI()
		} else {
			h.CurrentURL = raw
		}
	}
	return h
}

// NewHTMXMiddleware はHTMXヘッダーを解析してコンテキストに格納するミドルウェアを返す。
func NewHTMXMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), htmxContextKey, ParseHTMX(r))
			// 同じURLでもHTMXの有無で内容が変わる
			w.Header().Add("Vary", htmxRequestHeader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HTMXFromContext はコンテキストからHTMXの情報を取得する。
// ミドルウェアを通過していない場合はヘッダーを直接解析する。
func HTMXFromContext(r *http.Request) HTMX {
	if h, ok := r.Context().Value(htmxContextKey).(HTMX); ok {
		return h
	}
	return ParseHTMX(r)
}

// HTMXRedirect はHTMXクライアントにページ遷移を指示する。
func HTMXRedirect(w http.ResponseWriter, location string) {
	w.Header().Set(htmxRedirectHeader, location)
	w.WriteHeader(http.StatusOK)
}
