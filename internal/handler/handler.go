// Package handler はHTTPハンドラーを提供する。
// ページはサーバー側でレンダリングし、HTMXリクエストには部分テンプレートで応答する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/emerald/internal/auth"
	"github.com/hitoshi/emerald/internal/member"
	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/profile"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string) (*model.Session, error)
	Register(ctx context.Context, in auth.RegisterInput) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// InviteValidator は招待キーの検証インターフェース。
type InviteValidator interface {
	Validate(ctx context.Context, id string) (*model.InviteKey, error)
}

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
	UpdateProfile(ctx context.Context, userID string, in profile.ProfileInput) (*model.User, error)
	CreateLocation(ctx context.Context, userID string, in profile.LocationInput) (*model.Location, error)
	DeleteLocation(ctx context.Context, userID, locationID string) error
	SetAvatar(ctx context.Context, userID string, r io.Reader) error
	Withdraw(ctx context.Context, userID string) error
}

// MemberServiceInterface はメンバー検索ハンドラーが必要とするサービスインターフェース。
type MemberServiceInterface interface {
	Search(ctx context.Context, userID string, distanceMiles int) (*member.SearchResult, error)
	GetMember(ctx context.Context, id string) (*model.Member, error)
}

// UserFinder はログイン中ユーザーの取得インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// LoginRecorder はログイン結果のメトリクス記録インターフェース。
type LoginRecorder interface {
	RecordLogin(result string)
}

// writeAPIErrorResponse は統一エラーフォーマットでJSONレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードのJSONに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, middleware.StatusForAPIError(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// unauthorizedError は未認証時のAPIError。
func unauthorizedError() *model.APIError {
	return &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: model.CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// currentUser はコンテキストのユーザーIDからログイン中のユーザーを取得する。
// 未ログインまたはユーザーが存在しない場合はnilを返す。
func currentUser(r *http.Request, users UserFinder) (*model.User, error) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		return nil, nil
	}
	return users.FindByID(r.Context(), userID)
}

// writeErrorPage はHTMLハンドラーのエラーを応答する。
// APIErrorはカテゴリに応じたステータスでメッセージを返し、それ以外は500とする。
func writeErrorPage(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		http.Error(w, apiErr.Message, middleware.StatusForAPIError(apiErr))
		return
	}
	serverError(w, r, err)
}

// requireUserID はコンテキストからユーザーIDを取り出す。
// 取得できない場合はログイン画面へ遷移させ、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		redirect(w, r, middleware.LoginURL(r.URL.RequestURI()))
		return "", false
	}
	return userID, true
}
