// Package profile はプロフィール編集・地点登録・アバター・退会を提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/emerald/internal/imaging"
	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/repository"
	"github.com/hitoshi/emerald/internal/spatial"
)

// DefaultThumbnailSize はアバターサムネイルの既定の一辺（ピクセル）。
const DefaultThumbnailSize = 256

// Geocoder は住所を座標に変換するインターフェース。
type Geocoder interface {
	Geocode(ctx context.Context, address string) (spatial.GeoPoint, error)
}

// ProfileInput はプロフィール更新の入力。
type ProfileInput struct {
	FirstName string
	LastName  string
	Email     string
	Timezone  string
	Bio       string
}

// LocationInput は地点登録の入力。
// 経度・緯度が両方指定されていれば住所より優先する。
type LocationInput struct {
	Name      string
	Longitude *float64
	Latitude  *float64
	Address   string
}

// Profile はプロフィールページの表示内容。
type Profile struct {
	User      *model.User
	Current   *model.Location
	Locations []*model.Location
}

// Service はプロフィール管理のサービス層。
type Service struct {
	userRepo      repository.UserRepository
	sessionRepo   repository.SessionRepository
	locationRepo  repository.LocationRepository
	geocoder      Geocoder
	thumbnailSize int
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// geocoderがnilの場合、住所からの地点登録は行わない。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	locationRepo repository.LocationRepository,
	geocoder Geocoder,
	thumbnailSize int,
) *Service {
	if thumbnailSize <= 0 {
		thumbnailSize = DefaultThumbnailSize
	}
	return &Service{
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		locationRepo:  locationRepo,
		geocoder:      geocoder,
		thumbnailSize: thumbnailSize,
		now:           time.Now,
	}
}

func (s *Service) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// GetProfile はユーザー・現在地・地点一覧を返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	locations, err := s.locationRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("地点一覧の取得に失敗しました: %w", err)
	}

	p := &Profile{User: user, Locations: locations}
	// ListByUserIDは新しい順
	if len(locations) > 0 {
		p.Current = locations[0]
	}
	return p, nil
}

// UpdateProfile は氏名・メール・タイムゾーン・自己紹介を更新する。
// タイムゾーンが空の場合はUTCとする。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, model.NewValidationError("timezone", "不明なタイムゾーンです")
	}

	user.FirstName = strings.TrimSpace(in.FirstName)
	user.LastName = strings.TrimSpace(in.LastName)
	user.Email = strings.TrimSpace(in.Email)
	user.Timezone = tz
	user.Bio = in.Bio

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	slog.Info("profile updated", slog.String("user_id", userID))
	return user, nil
}

// CreateLocation はユーザーの地点を登録する。登録した地点が現在地になる。
func (s *Service) CreateLocation(ctx context.Context, userID string, in LocationInput) (*model.Location, error) {
	point, err := s.resolvePoint(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := point.Validate(); err != nil {
		return nil, model.NewInvalidLocationError(err.Error())
	}

	now := s.now()
	loc := &model.Location{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       strings.TrimSpace(in.Name),
		Point:      point,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if err := s.locationRepo.Create(ctx, loc); err != nil {
		if errors.Is(err, repository.ErrDuplicateLocation) {
			return nil, model.NewDuplicateLocationError()
		}
		return nil, fmt.Errorf("地点の登録に失敗しました: %w", err)
	}

	slog.Info("location created",
		slog.String("user_id", userID),
		slog.String("location_id", loc.ID),
		slog.String("point", point.String()),
	)
	return loc, nil
}

func (s *Service) resolvePoint(ctx context.Context, in LocationInput) (spatial.GeoPoint, error) {
	if in.Longitude != nil && in.Latitude != nil {
		return spatial.GeoPoint{Longitude: *in.Longitude, Latitude: *in.Latitude}, nil
	}

	address := strings.TrimSpace(in.Address)
	if address == "" || s.geocoder == nil {
		return spatial.GeoPoint{}, model.NewLocationRequiredError()
	}

	point, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		if ctx.Err() != nil {
			return spatial.GeoPoint{}, ctx.Err()
		}
		slog.Warn("geocoding failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		return spatial.GeoPoint{}, model.NewGeocodeFailedError(address)
	}
	return point, nil
}

// DeleteLocation はユーザー所有の地点を削除する。
func (s *Service) DeleteLocation(ctx context.Context, userID, locationID string) error {
	if err := s.locationRepo.DeleteByID(ctx, userID, locationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewLocationNotFoundError(locationID)
		}
		return fmt.Errorf("地点の削除に失敗しました: %w", err)
	}
	slog.Info("location deleted",
		slog.String("user_id", userID),
		slog.String("location_id", locationID),
	)
	return nil
}

// SetAvatar はアップロード画像から正方形のJPEGサムネイルを生成して保存する。
func (s *Service) SetAvatar(ctx context.Context, userID string, r io.Reader) error {
	data, err := imaging.Thumbnail(r, s.thumbnailSize)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedImage) || errors.Is(err, imaging.ErrImageTooLarge) {
			return model.NewInvalidImageError()
		}
		return fmt.Errorf("サムネイルの生成に失敗しました: %w", err)
	}

	if err := s.userRepo.UpdateAvatar(ctx, userID, data, imaging.FormatJPEG.MIMEType()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("アバターの保存に失敗しました: %w", err)
	}

	slog.Info("avatar updated",
		slog.String("user_id", userID),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（locationsはCASCADE削除）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)
	return nil
}
