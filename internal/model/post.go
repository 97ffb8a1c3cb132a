// Package model はドメインモデルを定義する。
package model

import "time"

// Post は掲示板の投稿を表す。
// 作成後は更新操作（投稿者・題名・本文・いいね数）以外で変更されない。
type Post struct {
	ID                int64
	Author            string
	Title             string
	Body              string
	CreatedAt         time.Time
	ParentID          *int64  // 返信先の投稿ID。ルート投稿はnil
	ThreadID          int64   // スレッドのルート投稿ID。ルート投稿は自身のID
	OwnerKeyHash      *string // 投稿したセッションのオーナーキーのSHA-256。匿名投稿はnil
	LikeCount         int
	AuthorIsGenerated bool // 投稿者名が #秘密 から生成された絵文字を含むか
}

// IsReply は投稿が返信かどうかを返す。
func (p *Post) IsReply() bool {
	return p.ParentID != nil
}

// IsOwnedBy は投稿のオーナーキーハッシュが指定値と一致するかを返す。
// ハッシュ未設定の投稿は誰の所有でもない。
func (p *Post) IsOwnedBy(ownerKeyHash string) bool {
	if p.OwnerKeyHash == nil || ownerKeyHash == "" {
		return false
	}
	return *p.OwnerKeyHash == ownerKeyHash
}

// NewPost は永続化前の投稿データを表す。
// ID・作成日時・スレッドID（ルートの場合）はストアが割り当てる。
type NewPost struct {
	Author            string
	Title             string
	Body              string
	ParentID          *int64
	ThreadID          *int64
	OwnerKeyHash      *string
	AuthorIsGenerated bool
}

// PostUpdate は投稿の更新内容を表す。
type PostUpdate struct {
	Author            string
	Title             string
	Body              string
	AuthorIsGenerated bool
}

// PeriodCount は日別・月別の投稿件数を表す。
// Periodは "YYYY-MM-DD" または "YYYY-MM" 形式。
type PeriodCount struct {
	Period string
	Count  int
}

// TagCount はハッシュタグの出現投稿数を表す。
type TagCount struct {
	Tag   string
	Count int
}
