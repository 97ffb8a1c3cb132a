package repository

import (
	"context"
	"crypto/subtle"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/hitoshi/bbs/internal/model"
)

// MemoryPostRepo はプロセス内メモリに投稿を保持するリポジトリ。
// 開発用サーバー（STORE_DRIVER=memory）とサービス層のテストで使用する。
type MemoryPostRepo struct {
	mu     sync.Mutex
	posts  map[int64]*model.Post
	nextID int64
	loc    *time.Location
	now    func() time.Time
	fold   cases.Caser
}

// NewMemoryPostRepo はMemoryPostRepoを生成する。locがnilの場合はUTCを使う。
func NewMemoryPostRepo(loc *time.Location) *MemoryPostRepo {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryPostRepo{
		posts:  make(map[int64]*model.Post),
		nextID: 1,
		loc:    loc,
		now:    time.Now,
		fold:   cases.Fold(),
	}
}

// SetClock は作成日時に使う時計を差し替える。
func (r *MemoryPostRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryPostRepo) collect(match func(p *model.Post) bool, asc bool) []model.Post {
	out := []model.Post{}
	for _, p := range r.posts {
		if match(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].ID < out[j].ID
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *MemoryPostRepo) localDate(p *model.Post) string {
	return p.CreatedAt.In(r.loc).Format("2006-01-02")
}

// All は全投稿をID降順で返す。
func (r *MemoryPostRepo) All(_ context.Context) ([]model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(*model.Post) bool { return true }, false), nil
}

// ListBoard は最新latest件とsince以降の投稿の和集合をID降順で返す。
func (r *MemoryPostRepo) ListBoard(_ context.Context, latest int, since time.Time) ([]model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.collect(func(*model.Post) bool { return true }, false)
	out := []model.Post{}
	for i, p := range all {
		if i < latest || !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Search は投稿者・題名・本文の部分一致と作成日の範囲で投稿を検索する。
func (r *MemoryPostRepo) Search(_ context.Context, query, fromDate, toDate string) ([]model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := r.fold.String(strings.TrimSpace(query))
	return r.collect(func(p *model.Post) bool {
		if needle != "" {
			hay := r.fold.String(p.Author + "\n" + p.Title + "\n" + p.Body)
			if !strings.Contains(hay, needle) {
				return false
			}
		}
		d := r.localDate(p)
		if fromDate != "" && d < fromDate {
			return false
		}
		if toDate != "" && d > toDate {
			return false
		}
		return true
	}, false), nil
}

// FindByDate は指定日の投稿をID昇順で返す。
func (r *MemoryPostRepo) FindByDate(_ context.Context, date string) ([]model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(p *model.Post) bool { return r.localDate(p) == date }, true), nil
}

// FindByMonth は指定月の投稿をID昇順で返す。
func (r *MemoryPostRepo) FindByMonth(_ context.Context, month string) ([]model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(p *model.Post) bool { return r.localDate(p)[:7] == month }, true), nil
}

// ListDatesWithCounts は日別の投稿件数を日付降順で返す。
func (r *MemoryPostRepo) ListDatesWithCounts(_ context.Context) ([]model.PeriodCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.periodCounts(10), nil
}

// ListMonthsWithCounts は月別の投稿件数を月降順で返す。
func (r *MemoryPostRepo) ListMonthsWithCounts(_ context.Context) ([]model.PeriodCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.periodCounts(7), nil
}

func (r *MemoryPostRepo) periodCounts(width int) []model.PeriodCount {
	counts := map[string]int{}
	for _, p := range r.posts {
		counts[r.localDate(p)[:width]]++
	}
	out := make([]model.PeriodCount, 0, len(counts))
	for period, n := range counts {
		out = append(out, model.PeriodCount{Period: period, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return out
}

// FindThreadPosts はスレッドの投稿をID昇順で返す。
func (r *MemoryPostRepo) FindThreadPosts(_ context.Context, threadID int64) ([]model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(p *model.Post) bool { return p.ThreadID == threadID }, true), nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *MemoryPostRepo) FindByID(_ context.Context, id int64) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Create は投稿を作成する。
func (r *MemoryPostRepo) Create(_ context.Context, np model.NewPost) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	p := &model.Post{
		ID:                id,
		Author:            np.Author,
		Title:             np.Title,
		Body:              np.Body,
		CreatedAt:         r.now(),
		ParentID:          copyInt64(np.ParentID),
		ThreadID:          id,
		AuthorIsGenerated: np.AuthorIsGenerated,
	}
	if np.ThreadID != nil {
		p.ThreadID = *np.ThreadID
	}
	if np.OwnerKeyHash != nil {
		h := *np.OwnerKeyHash
		p.OwnerKeyHash = &h
	}
	r.posts[id] = p

	cp := *p
	return &cp, nil
}

func (r *MemoryPostRepo) owned(p *model.Post, ownerKeyHash string) bool {
	if p.OwnerKeyHash == nil || ownerKeyHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*p.OwnerKeyHash), []byte(ownerKeyHash)) == 1
}

// IsOwnedBy は投稿のオーナーキーハッシュと定数時間で比較する。
func (r *MemoryPostRepo) IsOwnedBy(_ context.Context, id int64, ownerKeyHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return false, nil
	}
	return r.owned(p, ownerKeyHash), nil
}

// Update はIDとオーナーキーハッシュが一致する投稿を更新する。
func (r *MemoryPostRepo) Update(_ context.Context, id int64, ownerKeyHash string, upd model.PostUpdate) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || !r.owned(p, ownerKeyHash) {
		return nil, nil
	}
	p.Author = upd.Author
	p.Title = upd.Title
	p.Body = upd.Body
	p.AuthorIsGenerated = upd.AuthorIsGenerated

	cp := *p
	return &cp, nil
}

// Delete はIDとオーナーキーハッシュが一致する投稿を削除する。
func (r *MemoryPostRepo) Delete(_ context.Context, id int64, ownerKeyHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || !r.owned(p, ownerKeyHash) {
		return false, nil
	}
	delete(r.posts, id)
	return true, nil
}

// ToggleLike はいいね数を増減する。0未満にはならない。
func (r *MemoryPostRepo) ToggleLike(_ context.Context, id int64, liked bool) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	if liked {
		if p.LikeCount > 0 {
			p.LikeCount--
		}
	} else {
		p.LikeCount++
	}
	cp := *p
	return &cp, nil
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// compile-time interface check
var _ PostRepository = (*MemoryPostRepo)(nil)
