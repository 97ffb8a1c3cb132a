package reply

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/session"
)

const (
	myHash    = "my-hash"
	otherHash = "other-hash"
)

func ptr[T any](v T) *T { return &v }

// fixturePosts は自分の投稿2件と返信を含む投稿一覧をID降順で返す。
//
//	1: 自分のルート投稿「最初の投稿」
//	2: 他人の投稿
//	3: 1への他人の返信
//	4: 1への自分の返信
//	5: 2への他人の返信（自分宛てではない）
//	6: 自分の題名なし投稿
//	7: 6への匿名の返信
func fixturePosts() []model.Post {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return []model.Post{
		{ID: 7, Body: "re", ParentID: ptr(int64(6)), ThreadID: 6, Author: "匿名", CreatedAt: at.Add(7 * time.Minute)},
		{ID: 6, Body: "no title", ThreadID: 6, OwnerKeyHash: ptr(myHash), CreatedAt: at.Add(6 * time.Minute)},
		{ID: 5, Body: "re", ParentID: ptr(int64(2)), ThreadID: 2, OwnerKeyHash: ptr(otherHash), CreatedAt: at.Add(5 * time.Minute)},
		{ID: 4, Body: "self", ParentID: ptr(int64(1)), ThreadID: 1, OwnerKeyHash: ptr(myHash), CreatedAt: at.Add(4 * time.Minute)},
		{ID: 3, Body: "re", Author: "花子", ParentID: ptr(int64(1)), ThreadID: 1, OwnerKeyHash: ptr(otherHash), CreatedAt: at.Add(3 * time.Minute)},
		{ID: 2, Title: "他人", Body: "b", ThreadID: 2, OwnerKeyHash: ptr(otherHash), CreatedAt: at.Add(2 * time.Minute)},
		{ID: 1, Title: "最初の投稿", Body: "b", ThreadID: 1, OwnerKeyHash: ptr(myHash), CreatedAt: at.Add(1 * time.Minute)},
	}
}

func TestMyPostIDs(t *testing.T) {
	mine := MyPostIDs(fixturePosts(), myHash)
	assert.Equal(t, map[int64]bool{1: true, 4: true, 6: true}, mine)
	assert.Empty(t, MyPostIDs(fixturePosts(), ""))
}

// 自分の投稿への他人の返信のみが未読として並ぶこと
func TestUnreadItems(t *testing.T) {
	items := UnreadItems(fixturePosts(), myHash, session.NewIDSet(nil))

	require.Len(t, items, 2)
	assert.Equal(t, int64(7), items[0].ReplyID)
	assert.Equal(t, UntitledPlaceholder, items[0].ParentTitle)
	assert.Equal(t, Item{
		ReplyID:        3,
		ParentID:       1,
		ParentTitle:    "最初の投稿",
		ReplyAuthor:    "花子",
		ReplyCreatedAt: time.Date(2026, 2, 1, 10, 3, 0, 0, time.UTC),
	}, items[1])
}

// 既読の返信は未読一覧に含まれないこと
func TestUnreadItems_ExcludesRead(t *testing.T) {
	items := UnreadItems(fixturePosts(), myHash, session.NewIDSet([]int64{3}))
	require.Len(t, items, 1)
	assert.Equal(t, int64(7), items[0].ReplyID)
}

// 対象の返信のみ既読にできること
func TestMarkAsRead(t *testing.T) {
	posts := fixturePosts()

	tests := []struct {
		name    string
		replyID int64
		want    bool
	}{
		{name: "他人からの返信", replyID: 3, want: true},
		{name: "自分の返信", replyID: 4, want: false},
		{name: "他人宛ての返信", replyID: 5, want: false},
		{name: "ルート投稿", replyID: 1, want: false},
		{name: "存在しないID", replyID: 99, want: false},
		{name: "不正なID", replyID: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read := session.NewIDSet(nil)
			got := MarkAsRead(posts, myHash, tt.replyID, &read)
			assert.Equal(t, tt.want, got)
			if tt.want {
				assert.True(t, read.Has(tt.replyID))
			} else {
				assert.Equal(t, 0, read.Len())
			}
		})
	}
}

// 未通知の返信のみ通知し、自分の返信は通知せずに通知済みにすること
func TestBuildNotices(t *testing.T) {
	posts := fixturePosts()
	notified := session.NewIDSet(nil)

	notices := BuildNotices(posts, myHash, &notified)

	assert.Equal(t, []string{
		"あなたの投稿「（題名なし）」に返信がありました。",
		"あなたの投稿「最初の投稿」に返信がありました。",
	}, notices)
	assert.Equal(t, []int64{7, 4, 3}, notified.Slice())

	// 2回目は通知しない
	again := BuildNotices(posts, myHash, &notified)
	assert.Empty(t, again)
}
