// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"slices"
	"time"
)

// 権限グループ名。
const (
	GroupAdmin     = "admin"
	GroupDeveloper = "developer"
	GroupAnonymous = "anonymous"
)

// User はディレクトリに登録されたメンバーを表す。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Name         string
	FirstName    string
	LastName     string
	Email        string
	Timezone     string
	Bio          string
	IsActive     bool
	IsStaff      bool
	Groups       []string
	AvatarData   []byte
	AvatarMime   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName は表示用の名前を返す。
// Name、姓のみ、名のみ、「名 姓」の順に採用し、いずれもなければIDを用いる。
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.LastName != "" && u.FirstName == "":
		return u.LastName
	case u.FirstName != "" && u.LastName == "":
		return u.FirstName
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	}
	return fmt.Sprintf("User: %s", u.ID)
}

// InGroup はユーザーが指定グループに所属しているかを返す。
func (u *User) InGroup(group string) bool {
	return slices.Contains(u.Groups, group)
}

// IsAdmin はadminグループに所属しているかを返す。
func (u *User) IsAdmin() bool {
	return u.InGroup(GroupAdmin)
}

// IsDeveloper はdeveloperグループに所属しているかを返す。
func (u *User) IsDeveloper() bool {
	return u.InGroup(GroupDeveloper)
}

// HasAvatar はアバター画像が登録済みかを返す。
// 一覧取得では画像本体を読み込まないため、MIMEタイプでも判定する。
func (u *User) HasAvatar() bool {
	return len(u.AvatarData) > 0 || u.AvatarMime != ""
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
