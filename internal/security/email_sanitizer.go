package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// EmailSanitizer は通知メールのHTML本文をサニタイズする。
// メール本文は回答者の入力を含むため、送信直前に必ず通す。
type EmailSanitizer interface {
	// Sanitize は許可リストにないタグ・属性を除去したHTMLを返す。
	Sanitize(rawHTML string) string
}

type emailSanitizer struct {
	policy *bluemonday.Policy
}

// NewEmailSanitizer はメール本文用のサニタイザーを生成する。
// ポリシーの内容:
//   - 許可タグ: div, p, br, h2, h3, strong, em, ul, li, a, img
//   - aのhref: https と mailto のみ
//   - imgのsrc: https のみ
//   - style属性は体裁用のプロパティのみ残し、on*イベント属性は除去
func NewEmailSanitizer() *emailSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"div", "p", "br", "h2", "h3",
		"strong", "em", "ul", "li",
	)

	// プロパティ値はbluemondayの既定ハンドラーで検証される
	p.AllowStyles(
		"color", "background", "font-family", "line-height",
		"margin", "margin-top", "margin-bottom", "padding", "padding-left",
		"border-radius", "max-width",
	).Globally()

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")

	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})
	p.AllowURLSchemes("mailto")

	return &emailSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして返す。
func (s *emailSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
