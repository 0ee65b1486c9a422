package model

import "time"

// InviteKey はアカウント作成用の一回限りの招待キー。
type InviteKey struct {
	ID      string
	Email   string
	Created time.Time
	Expires *time.Time // nilは無期限
}

// IsExpired は招待キーが期限切れかを判定する。
func (k *InviteKey) IsExpired(now time.Time) bool {
	if k.Expires == nil {
		return false
	}
	return !now.Before(*k.Expires)
}

// DisplayName は表示名を返す。
func (k *InviteKey) DisplayName() string {
	if k.Email != "" {
		return k.Email + ": " + k.ID
	}
	return k.ID
}
