// Package reply は自分の投稿への返信について未読一覧と通知文を組み立てる。
//
// 入力は投稿全件とセッションのオーナーキーハッシュで、
// 既読・通知済みの状態はsession.IDSetとして受け渡す。
package reply

import (
	"fmt"
	"time"

	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/session"
)

// UntitledPlaceholder は返信先の題名が分からない場合の表示。
const UntitledPlaceholder = "（題名なし）"

// Item は未読返信の一覧に表示する1件。
type Item struct {
	ReplyID        int64
	ParentID       int64
	ParentTitle    string
	ReplyAuthor    string
	ReplyCreatedAt time.Time
}

// MyPostIDs はオーナーキーハッシュが一致する投稿IDの集合を返す。
func MyPostIDs(posts []model.Post, ownerKeyHash string) map[int64]bool {
	mine := make(map[int64]bool)
	for _, p := range posts {
		if p.IsOwnedBy(ownerKeyHash) {
			mine[p.ID] = true
		}
	}
	return mine
}

func titlesByID(posts []model.Post) map[int64]string {
	titles := make(map[int64]string, len(posts))
	for _, p := range posts {
		titles[p.ID] = p.Title
	}
	return titles
}

// parentTitleOf は返信先の題名を返す。題名が空なら代替表示を返す。
func parentTitleOf(titles map[int64]string, parentID int64) string {
	if t := titles[parentID]; t != "" {
		return t
	}
	return UntitledPlaceholder
}

// isReplyToMe は投稿が自分の投稿への他人からの返信かを返す。
func isReplyToMe(p model.Post, mine map[int64]bool, ownerKeyHash string) bool {
	if p.ParentID == nil || !mine[*p.ParentID] {
		return false
	}
	return !p.IsOwnedBy(ownerKeyHash)
}

// UnreadItems は自分の投稿への他人からの返信のうち、既読でないものを投稿の並び順で返す。
func UnreadItems(posts []model.Post, ownerKeyHash string, read session.IDSet) []Item {
	mine := MyPostIDs(posts, ownerKeyHash)
	titles := titlesByID(posts)

	items := []Item{}
	for _, p := range posts {
		if !isReplyToMe(p, mine, ownerKeyHash) || read.Has(p.ID) {
			continue
		}
		parentTitle := parentTitleOf(titles, *p.ParentID)
		items = append(items, Item{
			ReplyID:        p.ID,
			ParentID:       *p.ParentID,
			ParentTitle:    parentTitle,
			ReplyAuthor:    p.Author,
			ReplyCreatedAt: p.CreatedAt,
		})
	}
	return items
}

// MarkAsRead はreplyIDが自分の投稿への他人からの返信であれば既読集合に追加する。
// 該当しないIDは無視し、追加したかどうかを返す。
func MarkAsRead(posts []model.Post, ownerKeyHash string, replyID int64, read *session.IDSet) bool {
	if replyID <= 0 {
		return false
	}
	mine := MyPostIDs(posts, ownerKeyHash)
	for _, p := range posts {
		if p.ID != replyID {
			continue
		}
		if !isReplyToMe(p, mine, ownerKeyHash) {
			return false
		}
		read.Add(replyID)
		return true
	}
	return false
}

// BuildNotices は未通知の返信について通知文を作り、通知済み集合に追加する。
// 自分自身による返信は通知せずに通知済みとする。
func BuildNotices(posts []model.Post, ownerKeyHash string, notified *session.IDSet) []string {
	mine := MyPostIDs(posts, ownerKeyHash)
	titles := titlesByID(posts)

	notices := []string{}
	for _, p := range posts {
		if p.ParentID == nil || !mine[*p.ParentID] || notified.Has(p.ID) {
			continue
		}
		notified.Add(p.ID)
		if p.IsOwnedBy(ownerKeyHash) {
			continue
		}
		parentTitle := parentTitleOf(titles, *p.ParentID)
		notices = append(notices, fmt.Sprintf("あなたの投稿「%s」に返信がありました。", parentTitle))
	}
	return notices
}
