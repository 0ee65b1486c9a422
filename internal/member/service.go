// Package member はメンバーの一覧・詳細・距離検索を提供する。
package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hitoshi/emerald/internal/metrics"
	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/repository"
	"github.com/hitoshi/emerald/internal/spatial"
)

// DistanceChoices は検索半径（マイル）の選択肢。
var DistanceChoices = []int{5, 10, 20, 50, 100, 500}

// DefaultDistance は検索半径の既定値（マイル）。
const DefaultDistance = 100

// SearchResult は距離検索の結果。
type SearchResult struct {
	// Origin は検索の起点となったユーザーの現在地。未登録の場合はnil。
	Origin        *model.Location
	DistanceMiles int
	Members       []*model.Member
	// Unfiltered は起点がなく全メンバーを返した場合にtrue。
	Unfiltered bool
}

// Service はメンバー検索のサービス層。
type Service struct {
	userRepo     repository.UserRepository
	locationRepo repository.LocationRepository
	metrics      metrics.MetricsCollector
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	locationRepo repository.LocationRepository,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		userRepo:     userRepo,
		locationRepo: locationRepo,
		metrics:      collector,
	}
}

// ValidDistance は距離が選択肢に含まれるかを返す。
func ValidDistance(miles int) bool {
	return slices.Contains(DistanceChoices, miles)
}

// Search はユーザーの現在地から半径distanceMiles以内のメンバーを返す。
// 現在地が未登録の場合は全メンバーを返す。
// データベースでは外接矩形で絞り込み、円内判定はspatial.FindWithinRadiusで行う。
func (s *Service) Search(ctx context.Context, userID string, distanceMiles int) (*SearchResult, error) {
	if !ValidDistance(distanceMiles) {
		return nil, model.NewValidationError("distance", fmt.Sprintf("選択肢 %v のいずれかを指定してください", DistanceChoices))
	}

	origin, err := s.locationRepo.FindCurrentByUserID(ctx, userID)
	if err != nil {
		s.record(metrics.SearchError, 0)
		return nil, fmt.Errorf("failed to find current location: %w", err)
	}

	if origin == nil {
		members, err := s.ListAll(ctx)
		if err != nil {
			s.record(metrics.SearchError, 0)
			return nil, err
		}
		s.record(metrics.SearchUnfiltered, len(members))
		return &SearchResult{DistanceMiles: distanceMiles, Members: members, Unfiltered: true}, nil
	}

	degrees, err := spatial.RadiusToDegrees(origin.Point, float64(distanceMiles))
	if err != nil {
		s.record(metrics.SearchError, 0)
		return nil, searchOriginError(err)
	}

	candidates, err := s.locationRepo.ListMembersInBox(ctx, spatial.BoundingBox(origin.Point, degrees))
	if err != nil {
		s.record(metrics.SearchError, 0)
		return nil, fmt.Errorf("failed to list members in box: %w", err)
	}

	members, err := spatial.FindWithinRadius(origin.Point, float64(distanceMiles), candidates)
	if err != nil {
		s.record(metrics.SearchError, 0)
		return nil, searchOriginError(err)
	}

	slog.Debug("member search",
		slog.String("user_id", userID),
		slog.Int("distance_miles", distanceMiles),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(members)),
	)
	s.record(metrics.SearchFiltered, len(members))

	return &SearchResult{Origin: origin, DistanceMiles: distanceMiles, Members: members}, nil
}

// searchOriginError は起点に起因する空間計算エラーをAPIErrorに変換する。
func searchOriginError(err error) error {
	var degenerate *spatial.DegenerateInputError
	switch {
	case errors.As(err, &degenerate):
		return model.NewInvalidLocationError(fmt.Sprintf("緯度 %g は極点に近すぎるため検索の起点にできません", degenerate.Latitude))
	case errors.Is(err, spatial.ErrInvalidPoint):
		return model.NewInvalidLocationError(err.Error())
	default:
		return fmt.Errorf("failed to compute search radius: %w", err)
	}
}

// GetMember は指定IDのメンバーを現在地付きで返す。
func (s *Service) GetMember(ctx context.Context, id string) (*model.Member, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, model.NewMemberNotFoundError(id)
	}

	loc, err := s.locationRepo.FindCurrentByUserID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find member location: %w", err)
	}
	return &model.Member{User: user, Location: loc}, nil
}

// ListAll は有効な全メンバーを返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Member, error) {
	members, err := s.locationRepo.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (s *Service) record(result string, count int) {
	if s.metrics != nil {
		s.metrics.RecordMemberSearch(result, count)
	}
}
