// Package invite は招待キーの発行と検証を提供する。
package invite

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/repository"
)

// RegisterPath はアカウント作成ページのパス。
const RegisterPath = "/auth/register/"

// Service は招待キーのサービス層。
type Service struct {
	repo repository.InviteKeyRepository
	now  func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.InviteKeyRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Issue は招待キーを発行する。ttlが0以下の場合は無期限とする。
func (s *Service) Issue(ctx context.Context, email string, ttl time.Duration) (*model.InviteKey, error) {
	now := s.now()
	key := &model.InviteKey{
		ID:      uuid.New().String(),
		Email:   strings.TrimSpace(email),
		Created: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		key.Expires = &expires
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to issue invite key: %w", err)
	}

	slog.Info("invite key issued",
		slog.String("invite_id", key.ID),
		slog.String("email", key.Email),
		slog.Duration("ttl", ttl),
	)
	return key, nil
}

// Validate は招待キーが存在し期限内であることを検証する。
func (s *Service) Validate(ctx context.Context, id string) (*model.InviteKey, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewInvalidInviteKeyError()
	}

	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find invite key: %w", err)
	}
	if key == nil {
		return nil, model.NewInvalidInviteKeyError()
	}
	if key.IsExpired(s.now()) {
		return nil, model.NewInviteKeyExpiredError()
	}
	return key, nil
}

// RegistrationURL は招待キー付きのアカウント作成URLを返す。
func RegistrationURL(baseURL string, key *model.InviteKey) string {
	q := url.Values{}
	q.Set("key", key.ID)
	return strings.TrimRight(baseURL, "/") + RegisterPath + "?" + q.Encode()
}
