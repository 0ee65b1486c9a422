package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/emerald/internal/model"
)

// PostgresInviteKeyRepo はPostgreSQLを使用した招待キーリポジトリ。
type PostgresInviteKeyRepo struct {
	db *sql.DB
}

// NewPostgresInviteKeyRepo はPostgresInviteKeyRepoを生成する。
func NewPostgresInviteKeyRepo(db *sql.DB) *PostgresInviteKeyRepo {
	return &PostgresInviteKeyRepo{db: db}
}

// Create は招待キーを作成する。
func (r *PostgresInviteKeyRepo) Create(ctx context.Context, key *model.InviteKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invite_keys (id, email, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		key.ID, key.Email, key.Created, key.Expires,
	)
	if err != nil {
		return fmt.Errorf("failed to create invite key: %w", err)
	}
	return nil
}

// FindByID は招待キーを取得する。見つからない場合はnilを返す。
func (r *PostgresInviteKeyRepo) FindByID(ctx context.Context, id string) (*model.InviteKey, error) {
	key := &model.InviteKey{}
	var expires sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, created_at, expires_at FROM invite_keys WHERE id = $1`,
		id,
	).Scan(&key.ID, &key.Email, &key.Created, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invite key: %w", err)
	}
	if expires.Valid {
		key.Expires = &expires.Time
	}
	return key, nil
}

// DeleteExpired は期限切れの招待キーを削除し、削除件数を返す。
func (r *PostgresInviteKeyRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return execCount(ctx, r.db, "expired invite keys",
		`DELETE FROM invite_keys WHERE expires_at IS NOT NULL AND expires_at <= now()`)
}

// compile-time interface check
var _ InviteKeyRepository = (*PostgresInviteKeyRepo)(nil)
