// Package auth はパスワード認証、招待制アカウント作成、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// RegisterInput は招待キーによるアカウント作成の入力。
type RegisterInput struct {
	InviteKey string
	Username  string
	Name      string
	Email     string
	Password  string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	inviteRepo  repository.InviteKeyRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	inviteRepo repository.InviteKeyRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		inviteRepo:  inviteRepo,
		config:      config,
		now:         time.Now,
	}
}

// Login はユーザー名とパスワードを検証し、セッションを発行する。
// ユーザー不在、無効ユーザー、パスワード不一致はいずれも同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string) (*model.Session, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		CheckPassword(string(dummyHash), password)
		return nil, model.NewInvalidCredentialsError()
	}
	if !CheckPassword(user.PasswordHash, password) || !user.IsActive {
		slog.Warn("login rejected", slog.String("user_id", user.ID))
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return session, nil
}

// Register は招待キーを検証してユーザーを作成し、セッションを発行する。
// 招待キーは1回限りで、ユーザー作成と同時に削除される。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Session, error) {
	key, err := s.inviteRepo.FindByID(ctx, in.InviteKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find invite key: %w", err)
	}
	if key == nil {
		return nil, model.NewInvalidInviteKeyError()
	}
	if key.IsExpired(s.now()) {
		return nil, model.NewInviteKeyExpiredError()
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, model.NewValidationError("username", "必須項目です")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, model.NewValidationError("password", fmt.Sprintf("%d文字以上で入力してください", MinPasswordLength))
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, model.NewValidationError("password", fmt.Sprintf("%dバイト以内で入力してください", MaxPasswordBytes))
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = key.Email
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Timezone:     "UTC",
		IsActive:     true,
		Groups:       []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// 使用済みのキーはここでErrInviteKeyUnavailableになる
	if err := s.userRepo.CreateWithInvite(ctx, user, key.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, model.NewDuplicateUsernameError(username)
		case errors.Is(err, repository.ErrInviteKeyUnavailable):
			return nil, model.NewInvalidInviteKeyError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
