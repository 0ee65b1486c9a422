package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/model"
	"github.com/hitoshi/emerald/internal/security"
)

//go:embed templates
var templateFS embed.FS

// SiteInfo はすべてのページに渡すサイト情報。
type SiteInfo struct {
	Name        string
	NameLong    string
	Description string
	Debug       bool
}

// pageData はテンプレートに渡すデータ。
type pageData struct {
	Site          SiteInfo
	User          *model.User
	Tabs          []Tab
	ActiveTab     string
	Actions       []Action
	CSRFToken     string
	CSRFField     string
	Path          string
	HideHeaderBar bool
	Title         string
	Content       any
}

// Renderer は埋め込みテンプレートからページを描画する。
// ページごとにlayoutと部分テンプレートを複製したテンプレート集合を保持する。
type Renderer struct {
	site  SiteInfo
	pages map[string]*template.Template
}

// NewRenderer はtemplates/配下のページテンプレートを読み込む。
func NewRenderer(site SiteInfo, sanitizer security.BioSanitizer) (*Renderer, error) {
	base, err := template.New("base").
		Funcs(templateFuncs(sanitizer)).
		ParseFS(templateFS, "templates/layout.html", "templates/partial/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base templates: %w", err)
	}

	pageFiles, err := fs.Glob(templateFS, "templates/pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list page templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, file := range pageFiles {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone base template: %w", err)
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		pages[strings.TrimSuffix(path.Base(file), ".html")] = t
	}

	return &Renderer{site: site, pages: pages}, nil
}

// newPageData はリクエストとユーザーから共通のテンプレートデータを生成する。
func (rn *Renderer) newPageData(r *http.Request, user *model.User, activeTab string, content any) *pageData {
	tabs := TabsFor(user)
	return &pageData{
		Site:      rn.site,
		User:      user,
		Tabs:      tabs,
		ActiveTab: activeTab,
		Actions:   actionsFor(tabs, activeTab),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		CSRFField: middleware.CSRFFormField,
		Path:      r.URL.Path,
		Content:   content,
	}
}

// Page はページ全体を描画する。
func (rn *Renderer) Page(w http.ResponseWriter, status int, page string, data *pageData) {
	rn.execute(w, status, page, "layout", data)
}

// Partial はページのテンプレート集合から指定ブロックのみを描画する。
func (rn *Renderer) Partial(w http.ResponseWriter, status int, page, block string, data *pageData) {
	rn.execute(w, status, page, block, data)
}

func (rn *Renderer) execute(w http.ResponseWriter, status int, page, name string, data *pageData) {
	t, ok := rn.pages[page]
	if !ok {
		slog.Error("template not found", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render template",
			slog.String("page", page),
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// redirect はHTMXリクエストにはHX-Redirect、通常のリクエストには302で遷移させる。
// boostedリクエストは通常のリダイレクトに従う。
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if middleware.HTMXFromContext(r).IsPartial() {
		middleware.HTMXRedirect(w, location)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// renderForm はフォームページを描画する。HTMXの部分リクエストにはpartial/formのみを返す。
// htmxは4xx応答を差し替えないため、部分応答のステータスは常に200とする。
func (rn *Renderer) renderForm(w http.ResponseWriter, r *http.Request, status int, data *pageData) {
	if middleware.HTMXFromContext(r).IsPartial() {
		rn.Partial(w, http.StatusOK, "form", "partial/form", data)
		return
	}
	rn.Page(w, status, "form", data)
}

// serverError は内部エラーをログに記録し、500を返す。
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
