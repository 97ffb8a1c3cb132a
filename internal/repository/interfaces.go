// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/bbs/internal/model"
)

// PostRepository は投稿データの永続化インターフェース。
// 見つからない場合はエラーではなくnil（または空スライス）を返す。
type PostRepository interface {
	// All は全投稿をID降順で返す。
	All(ctx context.Context) ([]model.Post, error)

	// ListBoard は最新latest件とsince以降に作成された投稿の和集合をID降順で返す。
	ListBoard(ctx context.Context, latest int, since time.Time) ([]model.Post, error)

	// Search は投稿者・題名・本文のいずれかにqueryを含む投稿をID降順で返す。
	// 大文字小文字は区別しない。fromDate/toDate（YYYY-MM-DD）は空文字列なら無制限で、
	// 指定時は作成日（時刻を除く）がその範囲（両端含む）に入る投稿に絞り込む。
	Search(ctx context.Context, query, fromDate, toDate string) ([]model.Post, error)

	// FindByDate は指定日（YYYY-MM-DD）の投稿をID昇順で返す。
	FindByDate(ctx context.Context, date string) ([]model.Post, error)

	// FindByMonth は指定月（YYYY-MM）の投稿をID昇順で返す。
	FindByMonth(ctx context.Context, month string) ([]model.Post, error)

	// ListDatesWithCounts は日別の投稿件数を日付降順で返す。
	ListDatesWithCounts(ctx context.Context) ([]model.PeriodCount, error)

	// ListMonthsWithCounts は月別の投稿件数を月降順で返す。
	ListMonthsWithCounts(ctx context.Context) ([]model.PeriodCount, error)

	// FindThreadPosts はスレッドIDを共有する投稿をID昇順で返す。
	// 空スライスはスレッドが存在しないことを示す。
	FindThreadPosts(ctx context.Context, threadID int64) ([]model.Post, error)

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Post, error)

	// Create は投稿を作成する。IDと作成日時を割り当て、
	// ThreadIDが未指定の場合は新しいIDをスレッドIDとする。
	Create(ctx context.Context, p model.NewPost) (*model.Post, error)

	// IsOwnedBy は投稿のオーナーキーハッシュが一致するかを定数時間で比較する。
	IsOwnedBy(ctx context.Context, id int64, ownerKeyHash string) (bool, error)

	// Update はIDとオーナーキーハッシュが一致する場合のみ更新する。
	// 一致しない場合や投稿が存在しない場合はnilを返す。
	Update(ctx context.Context, id int64, ownerKeyHash string, upd model.PostUpdate) (*model.Post, error)

	// Delete はIDとオーナーキーハッシュが一致する場合のみ削除し、削除したかを返す。
	Delete(ctx context.Context, id int64, ownerKeyHash string) (bool, error)

	// ToggleLike はlikedがfalseならいいね数を1増やし、trueなら0を下限に1減らす。
	// 単一の更新文で行う。投稿が存在しない場合はnilを返す。
	ToggleLike(ctx context.Context, id int64, liked bool) (*model.Post, error)
}

// SessionRepository はブラウザセッションの永続化インターフェース。
type SessionRepository interface {
	// Find は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
	Find(ctx context.Context, id string) (*model.StoredSession, error)

	// Save はセッションを保存し、有効期限をttl後に延長する。
	Save(ctx context.Context, id string, data model.SessionData, ttl time.Duration) error

	// Delete は指定IDのセッションを削除する。
	Delete(ctx context.Context, id string) error
}

// ExpiredSessionDeleter は期限切れセッションを一括削除できるストア。
// TTLで自動失効しないストア（PostgreSQL等）が実装する。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}
