// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextFormatterService は投稿本文のプレーンテキストを表示用HTMLに変換する。
// URLとハッシュタグをリンク化した後、bluemondayの許可リストで
// a要素とbr要素以外を除去する。
package security

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TextFormatterService は投稿本文を安全なHTMLへ変換する機能のインターフェース。
type TextFormatterService interface {
	// Format はテキストをエスケープし、URLとハッシュタグをリンク化したHTMLを返す。
	// 改行は<br>に変換する。同一入力に対して常に同一出力を返す。
	Format(text string) string
}

var (
	urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)
	tagPattern = regexp.MustCompile(`[#＃]([\p{L}\p{N}_]+)`)
)

// textFormatter はTextFormatterServiceの実装。
type textFormatter struct {
	policy  *bluemonday.Policy
	tagBase string
}

// NewTextFormatter はTextFormatterServiceの新しいインスタンスを生成する。
// tagBaseはハッシュタグのリンク先（例: "/posts"）で、?q=#tag が付与される。
// ポリシーの内容:
//   - 許可タグ: a, br
//   - aタグ: href のみ許可し、外部リンクには target="_blank" と rel="noopener noreferrer" を付与
func NewTextFormatter(tagBase string) *textFormatter {
	p := bluemonday.NewPolicy()
	p.AllowElements("br")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(true)
	p.RequireNoFollowOnLinks(false)
	p.RequireNoReferrerOnFullyQualifiedLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	if tagBase == "" {
		tagBase = "/posts"
	}
	return &textFormatter{policy: p, tagBase: tagBase}
}

// Format はテキストを表示用HTMLに変換する。
func (f *textFormatter) Format(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	linked := urlPattern.ReplaceAllStringFunc(html.EscapeString(text), func(u string) string {
		return `<a href="` + u + `">` + u + `</a>`
	})

	root := &xhtml.Node{Type: xhtml.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := xhtml.ParseFragment(strings.NewReader(linked), root)
	if err != nil {
		return f.policy.Sanitize(strings.ReplaceAll(linked, "\n", "<br>\n"))
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	f.linkifyTags(root)

	var b strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := xhtml.Render(&b, c); err != nil {
			return f.policy.Sanitize(strings.ReplaceAll(linked, "\n", "<br>\n"))
		}
	}
	return f.policy.Sanitize(strings.ReplaceAll(b.String(), "\n", "<br>\n"))
}

// linkifyTags はa要素の外側にあるテキストノードのハッシュタグをリンクに置き換える。
func (f *textFormatter) linkifyTags(n *xhtml.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == xhtml.ElementNode && c.DataAtom == atom.A:
			// リンク内のタグはそのまま
		case c.Type == xhtml.TextNode:
			f.replaceTextNode(n, c)
		case c.FirstChild != nil:
			f.linkifyTags(c)
		}
		c = next
	}
}

func (f *textFormatter) replaceTextNode(parent, textNode *xhtml.Node) {
	data := textNode.Data
	locs := tagPattern.FindAllStringSubmatchIndex(data, -1)
	if len(locs) == 0 {
		return
	}

	pos := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		tag := data[loc[2]:loc[3]]
		if precededByWordChar(data, start) {
			continue
		}
		if start > pos {
			parent.InsertBefore(&xhtml.Node{Type: xhtml.TextNode, Data: data[pos:start]}, textNode)
		}
		anchor := &xhtml.Node{
			Type:     xhtml.ElementNode,
			Data:     "a",
			DataAtom: atom.A,
			Attr:     []xhtml.Attribute{{Key: "href", Val: f.tagBase + "?q=" + url.QueryEscape("#"+tag)}},
		}
		anchor.AppendChild(&xhtml.Node{Type: xhtml.TextNode, Data: "#" + tag})
		parent.InsertBefore(anchor, textNode)
		pos = end
	}

	if pos == 0 {
		return
	}
	if pos < len(data) {
		parent.InsertBefore(&xhtml.Node{Type: xhtml.TextNode, Data: data[pos:]}, textNode)
	}
	parent.RemoveChild(textNode)
}

// precededByWordChar は位置iの直前が文字・数字・アンダースコアかを返す。
func precededByWordChar(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// compile-time interface check
var _ TextFormatterService = (*textFormatter)(nil)
