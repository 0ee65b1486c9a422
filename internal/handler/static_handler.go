package handler

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
	"time"
)

// HealthChecker はデータベースの疎通確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// sitemapChangeFreq は静的ページの更新頻度。
const sitemapChangeFreq = "monthly"

// sitemapPages はサイトマップに載せる静的ページ。
var sitemapPages = []string{"/robots.txt", "/ai.txt"}

// sitemapURLSet はsitemaps.orgのurlset要素。
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	ChangeFreq string `xml:"changefreq"`
}

// StaticHandler はrobots.txt、ai.txt、sitemap.xml、ヘルスチェックのHTTPハンドラー。
// テキストは起動時に一度だけ描画する。
type StaticHandler struct {
	baseURL string
	robots  []byte
	aiTxt   []byte
	health  HealthChecker
}

// NewStaticHandler はStaticHandlerを生成する。healthがnilの場合は常に正常を返す。
func NewStaticHandler(baseURL, siteName string, health HealthChecker) (*StaticHandler, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	data := struct {
		BaseURL  string
		SiteName string
	}{BaseURL: baseURL, SiteName: siteName}

	robots, err := renderText("templates/text/robots.txt", data)
	if err != nil {
		return nil, err
	}
	aiTxt, err := renderText("templates/text/ai.txt", data)
	if err != nil {
		return nil, err
	}

	return &StaticHandler{
		baseURL: baseURL,
		robots:  robots,
		aiTxt:   aiTxt,
		health:  health,
	}, nil
}

func renderText(name string, data any) ([]byte, error) {
	t, err := template.ParseFS(templateFS, name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Robots はGET /robots.txt のハンドラー。
func (h *StaticHandler) Robots(w http.ResponseWriter, r *http.Request) {
	writeCachedText(w, h.robots)
}

// AITxt はGET /ai.txt のハンドラー。
func (h *StaticHandler) AITxt(w http.ResponseWriter, r *http.Request) {
	writeCachedText(w, h.aiTxt)
}

func writeCachedText(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Sitemap はGET /sitemap.xml のハンドラー。
func (h *StaticHandler) Sitemap(w http.ResponseWriter, r *http.Request) {
	set := sitemapURLSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, page := range sitemapPages {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        h.baseURL + page,
			ChangeFreq: sitemapChangeFreq,
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

// Health はGET /health のハンドラー。データベースに疎通できない場合は503を返す。
func (h *StaticHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.health.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
