// Package filter はハッシュタグ抽出・集計、NGワード除外、投稿者名の絵文字生成を提供する。
package filter

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hitoshi/bbs/internal/model"
)

// DefaultTagLimit はタグ一覧の既定表示件数。
const DefaultTagLimit = 15

var (
	hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

	// 全角の＃は半角#として扱う
	fullWidthHash = strings.NewReplacer("＃", "#")
)

// ExtractTags はテキストに含まれるハッシュタグ（#を除く）を初出順・重複なしで返す。
func ExtractTags(text string) []string {
	normalized := fullWidthHash.Replace(text)
	matches := hashtagPattern.FindAllStringSubmatch(normalized, -1)

	tags := []string{}
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		tag := strings.TrimSpace(m[1])
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// BuildTagCounts は投稿ごとのタグ（題名と本文から抽出）を集計し、
// 件数の降順・タグ名の昇順で並べてlimit件に切り詰める。
// 1投稿内で同じタグが複数回現れても1件と数える。
func BuildTagCounts(posts []model.Post, limit int) []model.TagCount {
	counts := map[string]int{}
	for _, p := range posts {
		for _, tag := range ExtractTags(p.Title + "\n" + p.Body) {
			counts[tag]++
		}
	}

	items := make([]model.TagCount, 0, len(counts))
	for tag, n := range counts {
		items = append(items, model.TagCount{Tag: tag, Count: n})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Tag < items[j].Tag
	})

	if limit < 0 {
		limit = 0
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
