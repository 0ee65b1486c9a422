// Package security はアプリケーションのセキュリティ機能を提供する。
//
// BioSanitizer はユーザーが入力した自己紹介文をHTMLとして安全に表示できる形に変換する。
// bluemondayの許可リストポリシーで安全なタグと属性のみを通過させる。
package security

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// BioSanitizer は自己紹介文のサニタイズ機能のインターフェース。
type BioSanitizer interface {
	// Sanitize は自己紹介文を安全なHTMLに変換する。
	// タグを含まないプレーンテキストは空行で段落に、改行で<br>に変換する。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) template.HTML
}

type bioSanitizer struct {
	policy *bluemonday.Policy
}

// NewBioSanitizer はBioSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, blockquote, strong, em, a
//   - aのhref: http, https, mailtoのみ
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewBioSanitizer() BioSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "ul", "ol", "li", "blockquote", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &bioSanitizer{policy: p}
}

// Sanitize は自己紹介文を安全なHTMLに変換する。
func (s *bioSanitizer) Sanitize(raw string) template.HTML {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "<") {
		raw = paragraphs(raw)
	}
	return template.HTML(s.policy.Sanitize(raw))
}

// paragraphs はプレーンテキストを<p>と<br>で構造化する。
func paragraphs(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var b strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		for i := range lines {
			lines[i] = html.EscapeString(strings.TrimSpace(lines[i]))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
