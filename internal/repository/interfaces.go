// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/spatial"
)

var (
	// ErrDuplicateUsername はユーザー名が既に使われている場合のエラー。
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrDuplicateLocation は同一地点が既に登録されている場合のエラー。
	ErrDuplicateLocation = errors.New("location already registered")
	// ErrNotFound は更新・削除対象が存在しない場合のエラー。
	ErrNotFound = errors.New("record not found")
	// ErrInviteKeyUnavailable は招待キーが使用済み・期限切れ・未登録の場合のエラー。
	ErrInviteKeyUnavailable = errors.New("invite key is used or expired")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// CreateWithInvite は招待キーを消費してユーザーを作成する。
	// ユーザー名重複時はErrDuplicateUsername、キーを消費できない場合はErrInviteKeyUnavailableを返す。
	// いずれの場合もユーザーは作成されず、キーは残る。
	CreateWithInvite(ctx context.Context, user *model.User, inviteKeyID string) error

	// UpdateProfile は氏名・メール・タイムゾーン・自己紹介を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdateAvatar はアバター画像を更新する。
	UpdateAvatar(ctx context.Context, userID string, data []byte, mime string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、locationsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れ、または無効化されたユーザーのセッションはnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// LocationRepository は地点データの永続化インターフェース。
// ユーザーの現在地は最も新しく作成された地点とする。
type LocationRepository interface {
	// Create は地点を作成する。同一地点が登録済みの場合はErrDuplicateLocationを返す。
	Create(ctx context.Context, location *model.Location) error

	// FindCurrentByUserID はユーザーの現在地を返す。未登録の場合はnilを返す。
	FindCurrentByUserID(ctx context.Context, userID string) (*model.Location, error)

	// ListByUserID はユーザーの地点一覧を新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Location, error)

	// ListMembers は有効な全ユーザーを現在地付きで返す。現在地が未登録のユーザーも含む。
	ListMembers(ctx context.Context) ([]*model.Member, error)

	// ListMembersInBox は現在地が矩形と交差する有効なユーザーを返す。
	ListMembersInBox(ctx context.Context, box spatial.Box) ([]*model.Member, error)

	// DeleteByID はユーザー所有の地点を削除する。存在しない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, userID, id string) error
}

// InviteKeyRepository は招待キーの永続化インターフェース。
type InviteKeyRepository interface {
	Create(ctx context.Context, key *model.InviteKey) error
	// FindByID は招待キーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.InviteKey, error)
	// DeleteExpired は期限切れの招待キーを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// rowScanner は*sql.Rowと*sql.Rowsに共通するScanメソッドを表す。
type rowScanner interface {
	Scan(dest ...any) error
}
