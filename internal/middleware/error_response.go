package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/emerald/internal/model"
)

// ErrorResponseBody は /api のエラーレスポンス形式。
// UIが原因カテゴリと対処方法をそのまま表示できる。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
}

// statusByCode はカテゴリより優先するエラーコード固有のステータス。
var statusByCode = map[string]int{
	model.ErrCodeCSRFTokenInvalid: http.StatusForbidden,
	model.ErrCodeRateLimited:      http.StatusTooManyRequests,
}

var statusByCategory = map[string]int{
	model.CategoryAuth:       http.StatusUnauthorized,
	model.CategoryValidation: http.StatusBadRequest,
	model.CategoryNotFound:   http.StatusNotFound,
	model.CategoryConflict:   http.StatusConflict,
}

// WriteErrorResponse はapiErrをJSONで書き込む。エラー応答はキャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Field:    apiErr.Field,
	})
	if err != nil {
		slog.Debug("failed to write error response", slog.String("error", err.Error()))
	}
}

// StatusForAPIError はAPIErrorに対応するHTTPステータスを返す。
// 未知のカテゴリは500とする。
func StatusForAPIError(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	if status, ok := statusByCategory[apiErr.Category]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 原因はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
