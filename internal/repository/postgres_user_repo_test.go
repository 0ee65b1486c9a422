package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
)

func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ LocationRepository = (*PostgresLocationRepo)(nil)
	var _ InviteKeyRepository = (*PostgresInviteKeyRepo)(nil)
}

func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Error("expected non-nil user repo")
	}
	if NewPostgresSessionRepo(nil) == nil {
		t.Error("expected non-nil session repo")
	}
	if NewPostgresLocationRepo(nil) == nil {
		t.Error("expected non-nil location repo")
	}
	if NewPostgresInviteKeyRepo(nil) == nil {
		t.Error("expected non-nil invite key repo")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"foreign key violation", &pq.Error{Code: "23503"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeResult struct {
	n   int64
	err error
}

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.n, f.err }

func TestRequireAffected(t *testing.T) {
	if err := requireAffected(fakeResult{n: 1}, "user", "u1"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	err := requireAffected(fakeResult{n: 0}, "location", "l1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := requireAffected(fakeResult{err: errors.New("driver")}, "user", "u1"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected driver error, got %v", err)
	}
}

func TestMemberSelect_Variants(t *testing.T) {
	all := fmt.Sprintf(memberSelect, "LEFT", "")
	inBox := fmt.Sprintf(memberSelect, "", "AND l.point && ST_MakeEnvelope($1, $2, $3, $4, $5)")

	if !containsAll(all, "LEFT JOIN LATERAL", "WHERE u.is_active") {
		t.Errorf("unexpected all-members query: %s", all)
	}
	if containsAll(inBox, "LEFT JOIN") {
		t.Errorf("in-box query must use inner join: %s", inBox)
	}
	if !containsAll(inBox, "ST_MakeEnvelope", "ORDER BY created_at DESC, id DESC") {
		t.Errorf("unexpected in-box query: %s", inBox)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
