package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/emerald/internal/member"
	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/model"
)

// membersView は検索ページに渡す内容。
type membersView struct {
	Form   *FormView
	Result *member.SearchResult
	Error  string
}

// MemberHandler はメンバー検索・詳細のHTTPハンドラー。
type MemberHandler struct {
	service  MemberServiceInterface
	users    UserFinder
	renderer *Renderer
}

// NewMemberHandler はMemberHandlerを生成する。
func NewMemberHandler(service MemberServiceInterface, users UserFinder, renderer *Renderer) *MemberHandler {
	return &MemberHandler{
		service:  service,
		users:    users,
		renderer: renderer,
	}
}

// Search はGET/POST /members/search/ のハンドラー。
// HTMXの部分リクエストにはメンバー一覧のみを返す。
func (h *MemberHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	form, errs := bindSearchForm(r.Form)
	view := &membersView{Form: searchFormView(form).withErrors(errs)}
	status := http.StatusOK

	if errs != nil {
		view.Error = view.Form.Fields[0].Error
		status = http.StatusBadRequest
	} else {
		result, err := h.service.Search(r.Context(), userID, form.Distance)
		if err != nil {
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				serverError(w, r, err)
				return
			}
			view.Error = apiErr.Message
			status = http.StatusBadRequest
		}
		view.Result = result
	}

	user, err := currentUser(r, h.users)
	if err != nil {
		serverError(w, r, err)
		return
	}
	data := h.renderer.newPageData(r, user, tabSearch, view)
	data.Title = "Member search"

	if middleware.HTMXFromContext(r).IsPartial() {
		h.renderer.Partial(w, http.StatusOK, "members", "partial/members", data)
		return
	}
	h.renderer.Page(w, status, "members", data)
}

// Detail はGET /members/{id}/ のハンドラー。
func (h *MemberHandler) Detail(w http.ResponseWriter, r *http.Request) {
	m, ok := h.findMember(w, r)
	if !ok {
		return
	}

	user, err := currentUser(r, h.users)
	if err != nil {
		serverError(w, r, err)
		return
	}
	data := h.renderer.newPageData(r, user, tabSearch, m)
	data.Title = m.User.DisplayName()
	h.renderer.Page(w, http.StatusOK, "member", data)
}

// Avatar はGET /members/{id}/avatar のハンドラー。登録済みのアバター画像を返す。
func (h *MemberHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	m, ok := h.findMember(w, r)
	if !ok {
		return
	}
	if len(m.User.AvatarData) == 0 {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", m.User.AvatarMime)
	w.Header().Set("Content-Length", strconv.Itoa(len(m.User.AvatarData)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(m.User.AvatarData)
}

// findMember はURLのidからメンバーを取得する。UUIDでないidは404とする。
func (h *MemberHandler) findMember(w http.ResponseWriter, r *http.Request) (*model.Member, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeErrorPage(w, r, model.NewMemberNotFoundError(id))
		return nil, false
	}

	m, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		writeErrorPage(w, r, err)
		return nil, false
	}
	return m, true
}
