package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/emerald/internal/member"
	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/model"
)

// userResponse はGET /api/me のレスポンス。
type userResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email,omitempty"`
	Timezone    string   `json:"timezone"`
	Groups      []string `json:"groups"`
	HasAvatar   bool     `json:"has_avatar"`
}

// pointResponse は地点のJSON表現。
type pointResponse struct {
	Name      string  `json:"name,omitempty"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// memberResponse は検索結果の1メンバー。
type memberResponse struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Location    *pointResponse `json:"location,omitempty"`
}

// nearbyResponse はGET /api/members/nearby のレスポンス。
type nearbyResponse struct {
	DistanceMiles int              `json:"distance_miles"`
	Unfiltered    bool             `json:"unfiltered"`
	Origin        *pointResponse   `json:"origin,omitempty"`
	Members       []memberResponse `json:"members"`
}

// APIHandler はJSON APIのHTTPハンドラー。
type APIHandler struct {
	members MemberServiceInterface
	users   UserFinder
}

// NewAPIHandler はAPIHandlerを生成する。
func NewAPIHandler(members MemberServiceInterface, users UserFinder) *APIHandler {
	return &APIHandler{members: members, users: users}
}

// Me はGET /api/me のハンドラー。
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	groups := user.Groups
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName(),
		Email:       user.Email,
		Timezone:    user.Timezone,
		Groups:      groups,
		HasAvatar:   user.HasAvatar(),
	})
}

// Nearby はGET /api/members/nearby?distance=N のハンドラー。
// distance省略時は既定の検索半径を使う。
func (h *APIHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	distance := member.DefaultDistance
	if raw := strings.TrimSpace(r.URL.Query().Get("distance")); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewValidationError("distance", "distance must be an integer"))
			return
		}
		distance = d
	}

	result, err := h.members.Search(r.Context(), userID, distance)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNearbyResponse(result))
}

func toNearbyResponse(result *member.SearchResult) nearbyResponse {
	resp := nearbyResponse{
		DistanceMiles: result.DistanceMiles,
		Unfiltered:    result.Unfiltered,
		Members:       make([]memberResponse, 0, len(result.Members)),
	}
	if result.Origin != nil {
		resp.Origin = toPointResponse(result.Origin)
	}
	for _, m := range result.Members {
		mr := memberResponse{
			ID:          m.User.ID,
			DisplayName: m.User.DisplayName(),
		}
		if m.Location != nil {
			mr.Location = toPointResponse(m.Location)
		}
		resp.Members = append(resp.Members, mr)
	}
	return resp
}

func toPointResponse(loc *model.Location) *pointResponse {
	return &pointResponse{
		Name:      loc.Name,
		Longitude: loc.Point.Longitude,
		Latitude:  loc.Point.Latitude,
	}
}
