// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, not_found, conflict, system
	Action   string // ユーザー向け対処方法
	Field    string // フォーム項目に紐づく場合の項目名
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryConflict   = "conflict"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeMemberNotFound     = "MEMBER_NOT_FOUND"
	ErrCodeLocationNotFound   = "LOCATION_NOT_FOUND"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidInviteKey   = "INVALID_INVITE_KEY"
	ErrCodeInviteKeyExpired   = "INVITE_KEY_EXPIRED"
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeDuplicateLocation  = "DUPLICATE_LOCATION"
	ErrCodeLocationRequired   = "LOCATION_REQUIRED"
	ErrCodeInvalidLocation    = "INVALID_LOCATION"
	ErrCodeGeocodeFailed      = "GEOCODE_FAILED"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeInvalidImage       = "INVALID_IMAGE"
	ErrCodeCSRFTokenInvalid   = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewMemberNotFoundError は指定メンバーが見つからない場合のエラーを生成する。
func NewMemberNotFoundError(memberID string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("指定されたメンバーが見つかりません: %s", memberID),
		Category: CategoryNotFound,
		Action:   "メンバー検索からもう一度選択してください。",
	}
}

// NewLocationNotFoundError は指定地点が見つからない場合のエラーを生成する。
func NewLocationNotFoundError(locationID string) *APIError {
	return &APIError{
		Code:     ErrCodeLocationNotFound,
		Message:  fmt.Sprintf("指定された地点が見つかりません: %s", locationID),
		Category: CategoryNotFound,
		Action:   "プロフィール画面から地点を確認してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗のエラーを生成する。
// ユーザー名の存在有無を推測されないよう、原因は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: CategoryAuth,
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewInvalidInviteKeyError は無効な招待キーのエラーを生成する。
func NewInvalidInviteKeyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInviteKey,
		Message:  "招待キーが無効です。",
		Category: CategoryValidation,
		Action:   "招待メールに記載されたURLからアクセスしてください。",
		Field:    "invite_key",
	}
}

// NewInviteKeyExpiredError は期限切れの招待キーのエラーを生成する。
func NewInviteKeyExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeInviteKeyExpired,
		Message:  "招待キーの有効期限が切れています。",
		Category: CategoryValidation,
		Action:   "管理者に新しい招待キーを依頼してください。",
		Field:    "invite_key",
	}
}

// NewDuplicateUsernameError はユーザー名の重複エラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("ユーザー名は既に使用されています: %s", username),
		Category: CategoryConflict,
		Action:   "別のユーザー名を指定してください。",
		Field:    "username",
	}
}

// NewDuplicateLocationError は同一地点が既に登録されている場合のエラーを生成する。
func NewDuplicateLocationError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateLocation,
		Message:  "この地点は既に登録されています。",
		Category: CategoryConflict,
		Action:   "別の地点を指定してください。",
		Field:    "location",
	}
}

// NewLocationRequiredError は座標も住所も指定されていない場合のエラーを生成する。
func NewLocationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeLocationRequired,
		Message:  "地点が指定されていません。",
		Category: CategoryValidation,
		Action:   "地図上で地点を選択するか、経度・緯度を入力してください。",
		Field:    "location",
	}
}

// NewInvalidLocationError は座標が有効範囲外の場合のエラーを生成する。
func NewInvalidLocationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLocation,
		Message:  fmt.Sprintf("無効な地点です: %s", reason),
		Category: CategoryValidation,
		Action:   "経度は-180〜180、緯度は-90〜90の範囲で指定してください。極点付近は検索の起点にできません。",
		Field:    "location",
	}
}

// NewGeocodeFailedError は住所から座標を取得できなかった場合のエラーを生成する。
func NewGeocodeFailedError(address string) *APIError {
	return &APIError{
		Code:     ErrCodeGeocodeFailed,
		Message:  fmt.Sprintf("住所から地点を特定できませんでした: %s", address),
		Category: CategoryValidation,
		Action:   "住所を見直すか、経度・緯度を直接入力してください。",
		Field:    "address",
	}
}

// NewValidationError はフォーム項目の検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
		Field:    field,
	}
}

// NewInvalidImageError は画像として読み込めないファイルのエラーを生成する。
func NewInvalidImageError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  "画像ファイルを読み込めませんでした。",
		Category: CategoryValidation,
		Action:   "PNG、JPEG、GIF形式の画像を指定してください。",
		Field:    "avatar",
	}
}

// NewCSRFTokenInvalidError はCSRFトークン検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "フォームの有効期限が切れました。",
		Category: CategoryAuth,
		Action:   "ページを再読み込みしてから、もう一度送信してください。",
	}
}

// NewRateLimitedError はリクエスト数の上限に達した場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: CategorySystem,
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は原因をユーザーに見せない内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthenticatedError は有効なセッションがない場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてから再度お試しください。",
	}
}
