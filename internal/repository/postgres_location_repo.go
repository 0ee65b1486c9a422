package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/spatial"
)

// SRID はlocations.pointの空間参照系（WGS 84）。
const SRID = 4326

// PostgresLocationRepo はPostGISを使用した地点リポジトリ。
type PostgresLocationRepo struct {
	db *sql.DB
}

// NewPostgresLocationRepo はPostgresLocationRepoを生成する。
func NewPostgresLocationRepo(db *sql.DB) *PostgresLocationRepo {
	return &PostgresLocationRepo{db: db}
}

func scanLocation(row rowScanner) (*model.Location, error) {
	l := &model.Location{}
	err := row.Scan(&l.ID, &l.UserID, &l.Name, &l.Point.Longitude, &l.Point.Latitude, &l.CreatedAt, &l.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Create は地点を作成する。
func (r *PostgresLocationRepo) Create(ctx context.Context, l *model.Location) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO locations (id, user_id, name, point, created_at, modified_at)
		 VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), $6), $7, $8)`,
		l.ID, l.UserID, l.Name, l.Point.Longitude, l.Point.Latitude, SRID, l.CreatedAt, l.ModifiedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateLocation
	}
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

// FindCurrentByUserID はユーザーの現在地を返す。未登録の場合はnilを返す。
func (r *PostgresLocationRepo) FindCurrentByUserID(ctx context.Context, userID string) (*model.Location, error) {
	l, err := scanLocation(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, ST_X(point), ST_Y(point), created_at, modified_at
		 FROM locations
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find current location: %w", err)
	}
	return l, nil
}

// ListByUserID はユーザーの地点一覧を新しい順に返す。
func (r *PostgresLocationRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Location, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, ST_X(point), ST_Y(point), created_at, modified_at
		 FROM locations
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []*model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}
	return locations, nil
}

// memberSelect はユーザーと現在地をLATERAL JOINで結合する。
// アバター本体は一覧では読み込まない。
const memberSelect = `
SELECT u.id, u.username, u.name, u.first_name, u.last_name, u.email, u.timezone, u.bio,
       u.is_active, u.is_staff, u.groups, u.avatar_mime, u.created_at, u.updated_at,
       l.id, l.name, ST_X(l.point), ST_Y(l.point), l.created_at, l.modified_at
FROM users u
%s JOIN LATERAL (
    SELECT id, name, point, created_at, modified_at
    FROM locations
    WHERE user_id = u.id
    ORDER BY created_at DESC, id DESC
    LIMIT 1
) l ON true
WHERE u.is_active %s
ORDER BY u.username`

// ListMembers は有効な全ユーザーを現在地付きで返す。
func (r *PostgresLocationRepo) ListMembers(ctx context.Context) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(memberSelect, "LEFT", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return scanMembers(rows)
}

// ListMembersInBox は現在地が矩形と交差する有効なユーザーを返す。
// GiSTインデックスを使った&&演算子による絞り込みのみ行い、円判定は呼び出し側で行う。
func (r *PostgresLocationRepo) ListMembersInBox(ctx context.Context, box spatial.Box) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(memberSelect, "", "AND l.point && ST_MakeEnvelope($1, $2, $3, $4, $5)"),
		box.MinLon, box.MinLat, box.MaxLon, box.MaxLat, SRID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members in box: %w", err)
	}
	return scanMembers(rows)
}

func scanMembers(rows *sql.Rows) ([]*model.Member, error) {
	defer rows.Close()

	members := []*model.Member{}
	for rows.Next() {
		var (
			u        model.User
			locID    sql.NullString
			locName  sql.NullString
			lon, lat sql.NullFloat64
			created  sql.NullTime
			modified sql.NullTime
		)
		err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.FirstName, &u.LastName, &u.Email,
			&u.Timezone, &u.Bio, &u.IsActive, &u.IsStaff, pq.Array(&u.Groups),
			&u.AvatarMime, &u.CreatedAt, &u.UpdatedAt,
			&locID, &locName, &lon, &lat, &created, &modified)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}

		m := &model.Member{User: &u}
		if locID.Valid {
			m.Location = &model.Location{
				ID:         locID.String,
				UserID:     u.ID,
				Name:       locName.String,
				Point:      spatial.GeoPoint{Longitude: lon.Float64, Latitude: lat.Float64},
				CreatedAt:  created.Time,
				ModifiedAt: modified.Time,
			}
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// DeleteByID はユーザー所有の地点を削除する。
func (r *PostgresLocationRepo) DeleteByID(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM locations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	return requireAffected(result, "location", id)
}

// compile-time interface check
var _ LocationRepository = (*PostgresLocationRepo)(nil)
