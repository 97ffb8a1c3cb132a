package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/bbs/internal/logs"
	"github.com/hitoshi/bbs/internal/middleware"
	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/session"
	"github.com/hitoshi/bbs/internal/view"
)

// LogServiceInterface はログハンドラーが必要とするサービスインターフェース。
type LogServiceInterface interface {
	SearchLogs(ctx context.Context, query, fromDate, toDate string) ([]model.Post, error)
	ListDownloadableMonths(ctx context.Context) ([]model.PeriodCount, error)
	BuildDailyLogText(ctx context.Context, date string) (string, error)
	BuildMonthlyLogText(ctx context.Context, month string) (string, error)
}

// LogHandler は過去ログの検索とダウンロードのHTTPハンドラー。
type LogHandler struct {
	service  LogServiceInterface
	renderer Renderer
}

// NewLogHandler はLogHandlerを生成する。
func NewLogHandler(service LogServiceInterface, renderer Renderer) *LogHandler {
	return &LogHandler{service: service, renderer: renderer}
}

// logsData は過去ログ画面の表示データ。
type logsData struct {
	Months   []model.PeriodCount
	Query    string
	FromDate string
	ToDate   string
	Searched bool
	Cards    []view.PostCard
}

// Index は過去ログ画面を表示する。条件未指定時は検索結果を0件とする。
// GET /logs
func (h *LogHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	q := r.URL.Query()

	data := logsData{
		Query:    strings.TrimSpace(q.Get("q")),
		FromDate: strings.TrimSpace(q.Get("from")),
		ToDate:   strings.TrimSpace(q.Get("to")),
		Cards:    []view.PostCard{},
	}

	months, err := h.service.ListDownloadableMonths(ctx)
	if err != nil {
		logServerError(r, "failed to list downloadable months", err)
		middleware.WriteInternalServerError(w)
		return
	}
	data.Months = months

	csrfToken := sess.CSRFToken()
	if logs.HasCriteria(data.Query, data.FromDate, data.ToDate) {
		posts, err := h.service.SearchLogs(ctx, data.Query, data.FromDate, data.ToDate)
		switch {
		case err == nil:
			data.Searched = true
			data.Cards = buildPostCards(posts, sess.LikedIDs(), nil, csrfToken, r.URL.RequestURI(), false)
		case model.KindOf(err) == model.KindValidation:
			sess.AddFlashErrors(model.MessageOf(err))
		default:
			logServerError(r, "failed to search logs", err)
			middleware.WriteInternalServerError(w)
			return
		}
	}

	h.renderer.Render(w, http.StatusOK, view.PageLogsIndex, view.Page{
		Title:     "過去ログ",
		CSRFToken: csrfToken,
		Flash:     sess.PopFlash(),
		Data:      data,
	})
}

// Download は日別または月別のログをテキストファイルとして返す。
// monthが指定されていれば月別、なければdateで日別とする。
// GET /logs/download?month=YYYY-MM , GET /logs/download?date=YYYY-MM-DD
func (h *LogHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		text     string
		filename string
		err      error
	)
	if q.Has("month") {
		month := q.Get("month")
		text, err = h.service.BuildMonthlyLogText(ctx, month)
		filename = logs.MonthlyFilename(month)
	} else {
		date := q.Get("date")
		text, err = h.service.BuildDailyLogText(ctx, date)
		filename = logs.DailyFilename(date)
	}

	if err != nil {
		if model.KindOf(err) == model.KindValidation {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.MessageOf(err))
			return
		}
		logServerError(r, "failed to build log text", err)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
