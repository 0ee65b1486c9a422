package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/emerald/internal/model"
)

const userColumns = `id, username, password_hash, name, first_name, last_name, email, timezone, bio,
	is_active, is_staff, groups, avatar, avatar_mime, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.FirstName, &u.LastName,
		&u.Email, &u.Timezone, &u.Bio, &u.IsActive, &u.IsStaff, pq.Array(&u.Groups),
		&u.AvatarData, &u.AvatarMime, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// Create は招待キーを介さずにユーザーを作成する。初期データの投入に使う。
func (r *PostgresUserRepo) Create(ctx context.Context, u *model.User) error {
	return insertUser(ctx, r.db, u)
}

// CreateWithInvite は招待キーを消費してユーザーを作成する。
// キーの削除とユーザーの挿入は同一トランザクションで行う。
func (r *PostgresUserRepo) CreateWithInvite(ctx context.Context, u *model.User, inviteKeyID string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin registration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// 同じキーで並行する登録は行ロックで直列化され、後続は0件になる
	result, err := tx.ExecContext(ctx,
		`DELETE FROM invite_keys WHERE id = $1 AND (expires_at IS NULL OR expires_at > now())`,
		inviteKeyID,
	)
	if err != nil {
		return fmt.Errorf("failed to consume invite key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrInviteKeyUnavailable
	}

	if err = insertUser(ctx, tx, u); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	return nil
}

// execer は*sql.DBと*sql.Txに共通の実行メソッド。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUser(ctx context.Context, db execer, u *model.User) error {
	groups := u.Groups
	if groups == nil {
		groups = []string{}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, name, first_name, last_name, email, timezone,
		                    bio, is_active, is_staff, groups, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Username, u.PasswordHash, u.Name, u.FirstName, u.LastName, u.Email, u.Timezone,
		u.Bio, u.IsActive, u.IsStaff, pq.Array(groups), u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィール項目を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, u *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET first_name = $2, last_name = $3, email = $4, timezone = $5, bio = $6, updated_at = now()
		 WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.Email, u.Timezone, u.Bio,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return requireAffected(result, "user", u.ID)
}

// UpdateAvatar はアバター画像を更新する。
func (r *PostgresUserRepo) UpdateAvatar(ctx context.Context, userID string, data []byte, mime string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar = $2, avatar_mime = $3, updated_at = now() WHERE id = $1`,
		userID, data, mime,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return requireAffected(result, "user", userID)
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するsessions、locationsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, "user", id)
}

func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// execCount は一括削除を実行し、削除件数を返す。
func execCount(ctx context.Context, db *sql.DB, what, query string, args ...any) (int64, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", what, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
