package filter

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/hitoshi/bbs/internal/model"
)

// NGWordSeparator はNGワード入力の区切り文字。
const NGWordSeparator = "|"

// ParseNGWords は "|" 区切りのNGワード文字列を分解する。
// 前後の空白を除去し、空要素と重複を取り除いて入力順に返す。
func ParseNGWords(raw string) []string {
	words := []string{}
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, NGWordSeparator) {
		w := strings.TrimSpace(part)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

// NGMatcher は大文字小文字を区別せずにNGワードを照合する。
type NGMatcher struct {
	folded []string
	caser  cases.Caser
}

// NewNGMatcher はNGワード一覧から照合器を生成する。
func NewNGMatcher(words []string) *NGMatcher {
	caser := cases.Fold()
	folded := make([]string, 0, len(words))
	for _, w := range words {
		folded = append(folded, caser.String(w))
	}
	return &NGMatcher{folded: folded, caser: caser}
}

// Empty はNGワードが1件もないかを返す。
func (m *NGMatcher) Empty() bool {
	return len(m.folded) == 0
}

// Matches は投稿者・題名・本文のいずれかにNGワードが含まれるかを返す。
func (m *NGMatcher) Matches(p model.Post) bool {
	if m.Empty() {
		return false
	}
	haystack := m.caser.String(p.Author + " " + p.Title + " " + p.Body)
	for _, w := range m.folded {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}

// Apply はNGワードに一致する投稿を除外し、残った投稿と除外件数を返す。
func (m *NGMatcher) Apply(posts []model.Post) ([]model.Post, int) {
	if m.Empty() {
		return posts, 0
	}
	visible := make([]model.Post, 0, len(posts))
	hidden := 0
	for _, p := range posts {
		if m.Matches(p) {
			hidden++
			continue
		}
		visible = append(visible, p)
	}
	return visible, hidden
}

// ApplyNGWords はraw文字列を解釈してNGワードによる除外を行う。
func ApplyNGWords(posts []model.Post, raw string) ([]model.Post, int) {
	return NewNGMatcher(ParseNGWords(raw)).Apply(posts)
}
