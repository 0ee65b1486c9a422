package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/emerald/internal/auth"
	"github.com/hitoshi/emerald/internal/member"
	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/profile"
	"github.com/hitoshi/emerald/internal/security"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn    func(ctx context.Context, username, password string) (*model.Session, error)
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.Session, error)
	logoutFn   func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, nil
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockInviteValidator struct {
	validateFn func(ctx context.Context, id string) (*model.InviteKey, error)
}

func (m *mockInviteValidator) Validate(ctx context.Context, id string) (*model.InviteKey, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, id)
	}
	return &model.InviteKey{ID: id}, nil
}

type mockLoginRecorder struct {
	results []string
}

func (m *mockLoginRecorder) RecordLogin(result string) {
	m.results = append(m.results, result)
}

type mockProfileService struct {
	getProfileFn     func(ctx context.Context, userID string) (*profile.Profile, error)
	updateProfileFn  func(ctx context.Context, userID string, in profile.ProfileInput) (*model.User, error)
	createLocationFn func(ctx context.Context, userID string, in profile.LocationInput) (*model.Location, error)
	deleteLocationFn func(ctx context.Context, userID, locationID string) error
	setAvatarFn      func(ctx context.Context, userID string, r io.Reader) error
	withdrawFn       func(ctx context.Context, userID string) error
}

func (m *mockProfileService) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return &profile.Profile{User: testUser(userID)}, nil
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, userID string, in profile.ProfileInput) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return testUser(userID), nil
}

func (m *mockProfileService) CreateLocation(ctx context.Context, userID string, in profile.LocationInput) (*model.Location, error) {
	if m.createLocationFn != nil {
		return m.createLocationFn(ctx, userID, in)
	}
	return &model.Location{ID: "loc-1", UserID: userID}, nil
}

func (m *mockProfileService) DeleteLocation(ctx context.Context, userID, locationID string) error {
	if m.deleteLocationFn != nil {
		return m.deleteLocationFn(ctx, userID, locationID)
	}
	return nil
}

func (m *mockProfileService) SetAvatar(ctx context.Context, userID string, r io.Reader) error {
	if m.setAvatarFn != nil {
		return m.setAvatarFn(ctx, userID, r)
	}
	return nil
}

func (m *mockProfileService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockMemberService struct {
	searchFn    func(ctx context.Context, userID string, distanceMiles int) (*member.SearchResult, error)
	getMemberFn func(ctx context.Context, id string) (*model.Member, error)
}

func (m *mockMemberService) Search(ctx context.Context, userID string, distanceMiles int) (*member.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, userID, distanceMiles)
	}
	return &member.SearchResult{DistanceMiles: distanceMiles, Unfiltered: true}, nil
}

func (m *mockMemberService) GetMember(ctx context.Context, id string) (*model.Member, error) {
	if m.getMemberFn != nil {
		return m.getMemberFn(ctx, id)
	}
	return nil, model.NewMemberNotFoundError(id)
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return testUser(id), nil
}

// --- ヘルパー ---

func testUser(id string) *model.User {
	return &model.User{
		ID:       id,
		Username: "user-" + id,
		Name:     "Test User",
		Timezone: "UTC",
		IsActive: true,
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	rn, err := NewRenderer(SiteInfo{
		Name:        "Emerald",
		NameLong:    "Emerald Heart",
		Description: "community directory",
	}, security.NewBioSanitizer())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return rn
}

// withUser はログイン済みのリクエストを返す。
func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// postForm はフォーム送信のリクエストを生成する。
func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// asHTMX はHTMXの部分リクエストとして扱われるようヘッダーを付与する。
func asHTMX(req *http.Request) *http.Request {
	req.Header.Set("HX-Request", "true")
	return req
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
