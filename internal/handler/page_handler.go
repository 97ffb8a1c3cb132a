package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/bbs/internal/middleware"
	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/session"
	"github.com/hitoshi/bbs/internal/view"
)

// feedbackLimit は広報室に表示する意見・要望の最大件数。
const feedbackLimit = 12

// feedbackWords は意見・要望として拾うハッシュタグ。
var feedbackWords = []string{"#意見", "#要望"}

// PressUpdate は広報室の更新履歴の1項目。
type PressUpdate struct {
	Date   string
	Change string
	Usage  string
}

// pressUpdates は新しい順の更新履歴。
var pressUpdates = []PressUpdate{
	{
		Date:   "2026-03-01",
		Change: "題名のハッシュタグ対応を追加しました（題名内 #タグ のクリック絞り込み + タグ一覧集計）。",
		Usage:  "題名に #タグ を含めて投稿すると、クリックで絞り込みでき、ハッシュタグ一覧にも反映されます。",
	},
	{
		Date:   "2026-03-01",
		Change: "絞り込み中の書き込みフォームで、題名欄に絞り込みキーワードを自動入力するようにしました。",
		Usage:  "絞り込み状態で「書き込み」を開くと、題名欄に「キーワード + 半角スペース」が入ります。",
	},
	{
		Date:   "2026-03-01",
		Change: "過去ログの投稿カードにも「■（返信）」「◆（スレッド表示）」リンクを追加しました。",
		Usage:  "過去ログ検索結果から直接、返信投稿やスレッド表示へ移動できます。",
	},
	{
		Date:   "2026-02-27",
		Change: "過去ログダウンロードを月別（YYYY-MM）に変更しました。",
		Usage:  "過去ログページの「月別ログダウンロード」から対象月を選んで保存してください。",
	},
	{
		Date:   "2026-02-27",
		Change: "掲示板トップの表示範囲を「最新100件 + 直近1か月（和集合）」に変更しました。",
		Usage:  "古い投稿が見えない場合は過去ログ検索を使って探してください。",
	},
	{
		Date:   "2026-02-27",
		Change: "過去ログは条件未指定時に0件表示、条件指定時は無制限検索に変更しました。",
		Usage:  "検索語または開始日/終了日を入力して検索してください。",
	},
	{
		Date:   "2026-02-26",
		Change: "投稿者名の #秘密 から絵文字2個を生成する「絵文字トリップ」に対応しました。",
		Usage:  "例「しば#ひみつ」と入力すると、表示名は「しば + 絵文字2個」になります。",
	},
	{
		Date:   "2026-02-26",
		Change: "未読返信バーとジャンプ導線を追加しました。",
		Usage:  "一覧上部の未読リンクを押すと該当返信へ移動し、既読にできます。",
	},
	{
		Date:   "2026-02-26",
		Change: "広報室の #意見 / #要望 リンクを絞り込み付きに更新しました。",
		Usage:  "広報室からリンクを開くと関連投稿だけ確認できます。",
	},
}

// FeedbackServiceInterface は広報室が必要とするサービスインターフェース。
type FeedbackServiceInterface interface {
	ListPostsMentioning(ctx context.Context, words []string, limit int) ([]model.Post, error)
}

// PageHandler は静的ページのHTTPハンドラー。
type PageHandler struct {
	service  FeedbackServiceInterface
	renderer Renderer
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(service FeedbackServiceInterface, renderer Renderer) *PageHandler {
	return &PageHandler{service: service, renderer: renderer}
}

// pressData は広報室画面の表示データ。
type pressData struct {
	FeedbackPosts []model.Post
	Updates       []PressUpdate
}

// Press は広報室を表示する。
// GET /press
func (h *PageHandler) Press(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	posts, err := h.service.ListPostsMentioning(ctx, feedbackWords, feedbackLimit)
	if err != nil {
		logServerError(r, "failed to list feedback posts", err)
		middleware.WriteInternalServerError(w)
		return
	}

	h.renderer.Render(w, http.StatusOK, view.PagePress, view.Page{
		Title:     "広報室",
		CSRFToken: sess.CSRFToken(),
		Flash:     sess.PopFlash(),
		Data:      pressData{FeedbackPosts: posts, Updates: pressUpdates},
	})
}
