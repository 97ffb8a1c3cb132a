// Package post は投稿の作成・更新・削除・いいねと一覧取得を提供する。
package post

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/hitoshi/bbs/internal/filter"
	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/repository"
	"github.com/hitoshi/bbs/internal/security"
)

// BoardOptions は掲示板トップの表示範囲の設定。
type BoardOptions struct {
	LatestLimit int            // 常に表示する最新件数
	WindowDays  int            // 最新件数に加えて表示する日数
	Location    *time.Location // 日付計算に使うタイムゾーン
}

// DefaultBoardOptions は最新100件と直近31日の和集合を表示する設定を返す。
func DefaultBoardOptions() BoardOptions {
	return BoardOptions{LatestLimit: 100, WindowDays: 31, Location: time.UTC}
}

// PostService は投稿に関するユースケースを提供する。
type PostService struct {
	repo repository.PostRepository
	opts BoardOptions
	now  func() time.Time
}

// NewPostService はPostServiceの新しいインスタンスを生成する。
func NewPostService(repo repository.PostRepository, opts BoardOptions) *PostService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &PostService{repo: repo, opts: opts, now: time.Now}
}

// ListPosts は全投稿をID降順で返す。
func (s *PostService) ListPosts(ctx context.Context) ([]model.Post, error) {
	return s.repo.All(ctx)
}

// ListBoardPosts は掲示板トップに表示する投稿を返す。
// queryが空なら最新LatestLimit件と直近WindowDays日の和集合、
// 指定があれば全期間の検索結果を返す。
func (s *PostService) ListBoardPosts(ctx context.Context, query string) ([]model.Post, error) {
	query = strings.TrimSpace(query)
	if query != "" {
		return s.repo.Search(ctx, query, "", "")
	}
	since := s.now().AddDate(0, 0, -s.opts.WindowDays)
	return s.repo.ListBoard(ctx, s.opts.LatestLimit, since)
}

// ListRecentPosts は今日を含む直近days日（暦日）の投稿を返す。daysは1以上に補正する。
func (s *PostService) ListRecentPosts(ctx context.Context, days int) ([]model.Post, error) {
	if days < 1 {
		days = 1
	}
	today := s.now().In(s.opts.Location)
	from := today.AddDate(0, 0, -(days - 1))
	return s.repo.Search(ctx, "", from.Format(time.DateOnly), today.Format(time.DateOnly))
}

// ListPostsMentioning はいずれかの語を題名か本文に含む投稿を新しい順にlimit件まで返す。
// 大文字小文字は区別しない。
func (s *PostService) ListPostsMentioning(ctx context.Context, words []string, limit int) ([]model.Post, error) {
	posts, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	caser := cases.Fold()
	folded := make([]string, 0, len(words))
	for _, w := range words {
		folded = append(folded, caser.String(w))
	}

	result := []model.Post{}
	for _, p := range posts {
		if len(result) >= limit {
			break
		}
		haystack := caser.String(p.Title + "\n" + p.Body)
		for _, w := range folded {
			if strings.Contains(haystack, w) {
				result = append(result, p)
				break
			}
		}
	}
	return result, nil
}

// ListThreadPosts はスレッドの投稿を古い順に返す。
func (s *PostService) ListThreadPosts(ctx context.Context, threadID int64) ([]model.Post, error) {
	if threadID <= 0 {
		return nil, model.NewInvalidThreadIDError()
	}
	posts, err := s.repo.FindThreadPosts(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, model.NewThreadNotFoundError()
	}
	return posts, nil
}

// GetPost は投稿を取得する。存在しない場合はNotFoundエラーを返す。
func (s *PostService) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	if id <= 0 {
		return nil, model.NewInvalidPostIDError()
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewPostNotFoundError()
	}
	return p, nil
}

// CreatePost は投稿を作成する。
// replyToIDを指定した場合は返信先と同じスレッドに属する。
// ownerKeyが空の場合は所有者なしの投稿になる。
func (s *PostService) CreatePost(ctx context.Context, author, title, body, ownerKey string, replyToID *int64) (*model.Post, error) {
	author, title, body, err := validateFields(author, title, body)
	if err != nil {
		return nil, err
	}
	author, generated := filter.NormalizeAuthor(author)

	np := model.NewPost{
		Author:            author,
		Title:             title,
		Body:              body,
		AuthorIsGenerated: generated,
	}

	if replyToID != nil {
		if *replyToID <= 0 {
			return nil, model.NewInvalidReplyToError()
		}
		parent, err := s.repo.FindByID(ctx, *replyToID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, model.NewReplyToNotFoundError()
		}
		parentID := parent.ID
		threadID := parent.ThreadID
		if threadID <= 0 {
			threadID = parent.ID
		}
		np.ParentID = &parentID
		np.ThreadID = &threadID
	}

	if ownerKey != "" {
		hash := security.HashOwnerKey(ownerKey)
		np.OwnerKeyHash = &hash
	}

	return s.repo.Create(ctx, np)
}

// CanModifyPost は現在のオーナーキーで投稿を編集・削除できるかを返す。
func (s *PostService) CanModifyPost(ctx context.Context, id int64, ownerKey string) (bool, error) {
	if ownerKey == "" {
		return false, nil
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if p == nil || p.OwnerKeyHash == nil {
		return false, nil
	}
	return s.repo.IsOwnedBy(ctx, id, security.HashOwnerKey(ownerKey))
}

// ManageableIDs は一覧中の投稿のうち、現在のオーナーキーで管理できるIDの集合を返す。
func (s *PostService) ManageableIDs(posts []model.Post, ownerKey string) map[int64]bool {
	manageable := make(map[int64]bool)
	if ownerKey == "" {
		return manageable
	}
	hash := security.HashOwnerKey(ownerKey)
	for _, p := range posts {
		if p.IsOwnedBy(hash) {
			manageable[p.ID] = true
		}
	}
	return manageable
}

// ensureOwner は投稿の存在と所有を確認し、オーナーキーハッシュを返す。
func (s *PostService) ensureOwner(ctx context.Context, id int64, ownerKey string, forbidden func() *model.AppError) (string, error) {
	if id <= 0 {
		return "", model.NewInvalidPostIDError()
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return "", model.NewPostNotFoundError()
	}
	if ownerKey == "" {
		return "", forbidden()
	}
	hash := security.HashOwnerKey(ownerKey)
	owned, err := s.repo.IsOwnedBy(ctx, id, hash)
	if err != nil {
		return "", err
	}
	if !owned {
		return "", forbidden()
	}
	return hash, nil
}

// UpdatePost は所有者による投稿の更新を行う。
func (s *PostService) UpdatePost(ctx context.Context, id int64, author, title, body, ownerKey string) (*model.Post, error) {
	hash, err := s.ensureOwner(ctx, id, ownerKey, model.NewEditForbiddenError)
	if err != nil {
		return nil, err
	}

	author, title, body, err = validateFields(author, title, body)
	if err != nil {
		return nil, err
	}
	author, generated := filter.NormalizeAuthor(author)

	updated, err := s.repo.Update(ctx, id, hash, model.PostUpdate{
		Author:            author,
		Title:             title,
		Body:              body,
		AuthorIsGenerated: generated,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, model.NewUpdateFailedError()
	}
	return updated, nil
}

// DeletePost は所有者による投稿の削除を行う。
func (s *PostService) DeletePost(ctx context.Context, id int64, ownerKey string) error {
	hash, err := s.ensureOwner(ctx, id, ownerKey, model.NewDeleteForbiddenError)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id, hash)
	if err != nil {
		return err
	}
	if !deleted {
		return model.NewDeleteFailedError()
	}
	return nil
}

// ToggleLike はlikedがfalseならいいねを付け、trueなら外す。
func (s *PostService) ToggleLike(ctx context.Context, id int64, liked bool) (*model.Post, error) {
	if id <= 0 {
		return nil, model.NewInvalidPostIDError()
	}
	p, err := s.repo.ToggleLike(ctx, id, liked)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewPostNotFoundError()
	}
	return p, nil
}

// validateFields は各項目の前後の空白を除去し、本文の必須チェックを行う。
func validateFields(author, title, body string) (string, string, string, error) {
	author = strings.TrimSpace(author)
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if body == "" {
		return "", "", "", model.NewBodyRequiredError()
	}
	return author, title, body, nil
}
