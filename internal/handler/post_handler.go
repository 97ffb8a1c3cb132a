package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bbs/internal/filter"
	"github.com/hitoshi/bbs/internal/metrics"
	"github.com/hitoshi/bbs/internal/middleware"
	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/reply"
	"github.com/hitoshi/bbs/internal/session"
	"github.com/hitoshi/bbs/internal/view"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
	ListBoardPosts(ctx context.Context, query string) ([]model.Post, error)
	ListRecentPosts(ctx context.Context, days int) ([]model.Post, error)
	ListThreadPosts(ctx context.Context, threadID int64) ([]model.Post, error)
	GetPost(ctx context.Context, id int64) (*model.Post, error)
	CreatePost(ctx context.Context, author, title, body, ownerKey string, replyToID *int64) (*model.Post, error)
	UpdatePost(ctx context.Context, id int64, author, title, body, ownerKey string) (*model.Post, error)
	DeletePost(ctx context.Context, id int64, ownerKey string) error
	ToggleLike(ctx context.Context, id int64, liked bool) (*model.Post, error)
	CanModifyPost(ctx context.Context, id int64, ownerKey string) (bool, error)
	ManageableIDs(posts []model.Post, ownerKey string) map[int64]bool
}

// Renderer は画面描画のインターフェース。
type Renderer interface {
	Render(w http.ResponseWriter, status int, name string, page view.Page)
}

// PostHandlerConfig は一覧画面の集計設定。
type PostHandlerConfig struct {
	TagWindowDays int // ハッシュタグ集計の対象日数
	TagLimit      int // ハッシュタグ一覧の最大件数
}

// PostHandler は投稿の一覧・作成・編集・削除・いいねのHTTPハンドラー。
type PostHandler struct {
	service   PostServiceInterface
	renderer  Renderer
	collector metrics.MetricsCollector
	config    PostHandlerConfig
}

// NewPostHandler はPostHandlerを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewPostHandler(service PostServiceInterface, renderer Renderer, collector metrics.MetricsCollector, config PostHandlerConfig) *PostHandler {
	if config.TagWindowDays <= 0 {
		config.TagWindowDays = 7
	}
	if config.TagLimit <= 0 {
		config.TagLimit = filter.DefaultTagLimit
	}
	return &PostHandler{
		service:   service,
		renderer:  renderer,
		collector: collector,
		config:    config,
	}
}

// indexData は一覧画面の表示データ。
type indexData struct {
	Cards       []view.PostCard
	FilterQuery string
	NGWordsRaw  string
	HasNGWords  bool
	HiddenByNG  int
	IsNarrowing bool
	Tags        []model.TagCount
	UnreadItems []reply.Item
}

// createData は書き込み画面の表示データ。
type createData struct {
	ReplyTo *model.Post
	Old     map[string]string
}

// editData は編集画面の表示データ。
type editData struct {
	Post *model.Post
	Old  map[string]string
}

// threadData はスレッド画面の表示データ。
type threadData struct {
	ThreadID int64
	Cards    []view.PostCard
}

// Index は投稿一覧を表示する。
// GET / , GET /posts
func (h *PostHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	ownerKey := sess.OwnerKey()
	ownerKeyHash := sess.OwnerKeyHash()
	q := r.URL.Query()

	allPosts, err := h.service.ListPosts(ctx)
	if err != nil {
		h.serverError(w, r, "failed to list posts", err)
		return
	}

	// 既読化は未読一覧の計算より先に行う
	if replyID := parsePositiveID(q.Get("mark_read_reply_id")); replyID > 0 {
		read := sess.ReadIDs()
		if reply.MarkAsRead(allPosts, ownerKeyHash, replyID, &read) {
			sess.SetReadIDs(read)
		}
	}
	unread := reply.UnreadItems(allPosts, ownerKeyHash, sess.ReadIDs())

	notified := sess.NotifiedIDs()
	notices := reply.BuildNotices(allPosts, ownerKeyHash, &notified)
	sess.SetNotifiedIDs(notified)

	filterQuery := resolveSessionParam(q, "q", "clear_filter", sess.FilterQuery, sess.SetFilterQuery)
	ngRaw := resolveSessionParam(q, "ng", "clear_ng", sess.NGWordsRaw, sess.SetNGWordsRaw)
	matcher := filter.NewNGMatcher(filter.ParseNGWords(ngRaw))

	posts, err := h.service.ListBoardPosts(ctx, filterQuery)
	if err != nil {
		h.serverError(w, r, "failed to list board posts", err)
		return
	}
	posts, hidden := matcher.Apply(posts)

	recent, err := h.service.ListRecentPosts(ctx, h.config.TagWindowDays)
	if err != nil {
		h.serverError(w, r, "failed to list recent posts", err)
		return
	}
	recent, _ = matcher.Apply(recent)

	csrfToken := sess.CSRFToken()
	data := indexData{
		Cards:       h.buildCards(posts, sess, h.service.ManageableIDs(posts, ownerKey), csrfToken, r.URL.RequestURI(), false),
		FilterQuery: filterQuery,
		NGWordsRaw:  ngRaw,
		HasNGWords:  !matcher.Empty(),
		HiddenByNG:  hidden,
		IsNarrowing: filterQuery != "" || !matcher.Empty(),
		Tags:        filter.BuildTagCounts(recent, h.config.TagLimit),
		UnreadItems: unread,
	}
	sess.PopOld()

	h.renderer.Render(w, http.StatusOK, view.PagePostsIndex, view.Page{
		Title:     "投稿一覧",
		CSRFToken: csrfToken,
		Flash:     sess.PopFlash(),
		Notices:   notices,
		Data:      data,
	})
}

// Create は書き込みフォームを表示する。
// GET /posts/create
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	old := sess.PopOld()

	var replyTo *model.Post
	if replyToID := parsePositiveID(r.URL.Query().Get("reply_to")); replyToID > 0 {
		p, err := h.service.GetPost(ctx, replyToID)
		if err != nil {
			h.redirectOnError(w, r, sess, "/posts", err)
			return
		}
		replyTo = p
		if strings.TrimSpace(old["title"]) == "" {
			old["title"] = "＞" + p.Author
		}
		if strings.TrimSpace(old["body"]) == "" {
			old["body"] = quoteBody(p.Body) + "\n\n"
		}
	} else if fq := sess.FilterQuery(); fq != "" && strings.TrimSpace(old["title"]) == "" {
		// 絞り込み中は題名に絞り込み語を入れておく
		old["title"] = fq + " "
	}

	h.renderer.Render(w, http.StatusOK, view.PagePostsCreate, view.Page{
		Title:     "新規投稿",
		CSRFToken: sess.CSRFToken(),
		Flash:     sess.PopFlash(),
		Data:      createData{ReplyTo: replyTo, Old: old},
	})
}

// Store は投稿を作成する。
// POST /posts
func (h *PostHandler) Store(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	author := r.PostFormValue("author")
	title := r.PostFormValue("title")
	body := r.PostFormValue("body")

	var replyToID *int64
	if id := parsePositiveID(r.PostFormValue("reply_to")); id > 0 {
		replyToID = &id
	}

	p, err := h.service.CreatePost(ctx, author, title, body, sess.OwnerKey(), replyToID)
	if err != nil {
		if model.KindOf(err) == model.KindSystem {
			h.serverError(w, r, "failed to create post", err)
			return
		}
		path := "/posts/create"
		if replyToID != nil {
			path += "?reply_to=" + strconv.FormatInt(*replyToID, 10)
		}
		sess.SetOld(map[string]string{"author": author, "title": title, "body": body})
		h.redirectOnError(w, r, sess, path, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordPostCreated(p.IsReply())
	}
	slog.Info("post created",
		slog.Int64("post_id", p.ID),
		slog.Int64("thread_id", p.ThreadID),
		slog.String("request_id", middleware.RequestIDFromContext(ctx)),
	)

	sess.SetFlashSuccess("投稿を作成しました。")
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

// Edit は編集フォームを表示する。
// GET /posts/{id}/edit
func (h *PostHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	id := parsePositiveID(chi.URLParam(r, "id"))
	if id <= 0 {
		h.redirectOnError(w, r, sess, "/posts", model.NewInvalidPostIDError())
		return
	}

	ok, err := h.service.CanModifyPost(ctx, id, sess.OwnerKey())
	if err != nil {
		h.serverError(w, r, "failed to check post owner", err)
		return
	}
	if !ok {
		h.redirectOnError(w, r, sess, "/posts", model.NewEditForbiddenError())
		return
	}

	p, err := h.service.GetPost(ctx, id)
	if err != nil {
		h.redirectOnError(w, r, sess, "/posts", err)
		return
	}

	old := sess.PopOld()
	if len(old) == 0 {
		old = map[string]string{"author": p.Author, "title": p.Title, "body": p.Body}
	}

	h.renderer.Render(w, http.StatusOK, view.PagePostsEdit, view.Page{
		Title:     "投稿編集",
		CSRFToken: sess.CSRFToken(),
		Flash:     sess.PopFlash(),
		Data:      editData{Post: p, Old: old},
	})
}

// Update は投稿を更新する。
// POST /posts/{id}/update
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	id := parsePositiveID(chi.URLParam(r, "id"))
	if id <= 0 {
		h.redirectOnError(w, r, sess, "/posts", model.NewInvalidPostIDError())
		return
	}

	author := r.PostFormValue("author")
	title := r.PostFormValue("title")
	body := r.PostFormValue("body")

	if _, err := h.service.UpdatePost(ctx, id, author, title, body, sess.OwnerKey()); err != nil {
		switch model.KindOf(err) {
		case model.KindSystem:
			h.serverError(w, r, "failed to update post", err)
		case model.KindValidation:
			sess.SetOld(map[string]string{"author": author, "title": title, "body": body})
			h.redirectOnError(w, r, sess, fmt.Sprintf("/posts/%d/edit", id), err)
		default:
			h.redirectOnError(w, r, sess, "/posts", err)
		}
		return
	}

	if h.collector != nil {
		h.collector.RecordPostUpdated()
	}
	sess.SetFlashSuccess("投稿を更新しました。")
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

// Delete は投稿を削除する。
// POST /posts/{id}/delete
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	id := parsePositiveID(chi.URLParam(r, "id"))
	if id <= 0 {
		h.redirectOnError(w, r, sess, "/posts", model.NewInvalidPostIDError())
		return
	}

	if err := h.service.DeletePost(ctx, id, sess.OwnerKey()); err != nil {
		if model.KindOf(err) == model.KindSystem {
			h.serverError(w, r, "failed to delete post", err)
			return
		}
		h.redirectOnError(w, r, sess, "/posts", err)
		return
	}

	if h.collector != nil {
		h.collector.RecordPostDeleted()
	}
	sess.SetFlashSuccess("投稿を削除しました。")
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

// Thread はスレッドの投稿を古い順に表示する。
// GET /posts/thread/{id}
func (h *PostHandler) Thread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	threadID := parsePositiveID(chi.URLParam(r, "id"))
	if threadID <= 0 {
		h.redirectOnError(w, r, sess, "/posts", model.NewInvalidThreadIDError())
		return
	}

	posts, err := h.service.ListThreadPosts(ctx, threadID)
	if err != nil {
		if model.KindOf(err) == model.KindSystem {
			h.serverError(w, r, "failed to list thread posts", err)
			return
		}
		h.redirectOnError(w, r, sess, "/posts", err)
		return
	}

	csrfToken := sess.CSRFToken()
	h.renderer.Render(w, http.StatusOK, view.PagePostsThread, view.Page{
		Title:     "スレッド表示",
		CSRFToken: csrfToken,
		Flash:     sess.PopFlash(),
		Data: threadData{
			ThreadID: threadID,
			Cards:    h.buildCards(posts, sess, h.service.ManageableIDs(posts, sess.OwnerKey()), csrfToken, r.URL.RequestURI(), true),
		},
	})
}

// ToggleLike はセッションのいいね状態を反転し、投稿のいいね数を増減する。
// POST /posts/{id}/like
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	redirectPath := sanitizeRedirectPath(r.PostFormValue("redirect_to"))

	id := parsePositiveID(chi.URLParam(r, "id"))
	if id <= 0 {
		h.redirectOnError(w, r, sess, redirectPath, model.NewInvalidPostIDError())
		return
	}

	liked := sess.LikedIDs()
	isLiked := liked.Has(id)

	if _, err := h.service.ToggleLike(ctx, id, isLiked); err != nil {
		if model.KindOf(err) == model.KindSystem {
			h.serverError(w, r, "failed to toggle like", err)
			return
		}
		h.redirectOnError(w, r, sess, redirectPath, err)
		return
	}

	if isLiked {
		liked.Remove(id)
	} else {
		liked.Add(id)
	}
	sess.SetLikedIDs(liked)

	if h.collector != nil {
		h.collector.RecordLike(isLiked)
	}
	http.Redirect(w, r, redirectPath, http.StatusSeeOther)
}

// buildCards は投稿一覧を表示用のカードに変換する。
func (h *PostHandler) buildCards(posts []model.Post, sess *session.Context, manageable map[int64]bool, csrfToken, redirectTo string, showParent bool) []view.PostCard {
	return buildPostCards(posts, sess.LikedIDs(), manageable, csrfToken, redirectTo, showParent)
}

// redirectOnError はエラーメッセージをフラッシュに積んでリダイレクトする。
func (h *PostHandler) redirectOnError(w http.ResponseWriter, r *http.Request, sess *session.Context, path string, err error) {
	if model.KindOf(err) == model.KindSystem {
		h.serverError(w, r, "unexpected error", err)
		return
	}
	sess.AddFlashErrors(model.MessageOf(err))
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// serverError は内部エラーをログに記録して500を返す。
func (h *PostHandler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logServerError(r, msg, err)
	middleware.WriteInternalServerError(w)
}

// buildPostCards は投稿一覧を表示用のカードに変換する。
func buildPostCards(posts []model.Post, liked session.IDSet, manageable map[int64]bool, csrfToken, redirectTo string, showParent bool) []view.PostCard {
	cards := make([]view.PostCard, 0, len(posts))
	for _, p := range posts {
		cards = append(cards, view.PostCard{
			Post:       p,
			Liked:      liked.Has(p.ID),
			CanManage:  manageable[p.ID],
			CSRFToken:  csrfToken,
			RedirectTo: redirectTo,
			ShowParent: showParent,
		})
	}
	return cards
}

// logServerError は内部エラーをリクエスト情報付きで記録する。
func logServerError(r *http.Request, msg string, err error) {
	slog.Error(msg,
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
}

// resolveSessionParam はクエリの値でセッションの保存値を更新し、有効な値を返す。
// clearKeyがあれば消去、keyがあればその値（空なら消去）、どちらもなければ保存値を使う。
func resolveSessionParam(q url.Values, key, clearKey string, get func() string, set func(string)) string {
	if q.Has(clearKey) {
		set("")
		return ""
	}
	if q.Has(key) {
		set(q.Get(key))
		return get()
	}
	return get()
}

// parsePositiveID は正の整数IDを返す。不正な値は0を返す。
func parsePositiveID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// quoteBody は本文の各行の先頭に "> " を付ける。
func quoteBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// sanitizeRedirectPath はサイト内の絶対パスのみを許可し、それ以外は/postsを返す。
// "//host" や "/\host" は外部への遷移になるため拒否する。
func sanitizeRedirectPath(redirectTo string) string {
	if !strings.HasPrefix(redirectTo, "/") ||
		strings.HasPrefix(redirectTo, "//") ||
		strings.HasPrefix(redirectTo, "/\\") {
		return "/posts"
	}
	return redirectTo
}
