package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/bbs/internal/metrics"
	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/session"
)

// CSRFFormField はフォームでCSRFトークンを送るフィールド名。
const CSRFFormField = "_token"

// NewCSRFMiddleware はCSRFトークンの検証ミドルウェアを返す。
// Sessionミドルウェアの内側に配置する。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
// 状態変更メソッドはフォームの_tokenとセッションのトークンを定数時間で比較し、
// 不一致の場合は変更を行わずにエラーメッセージ付きでリダイレクトする。
// どの検証に失敗したかは利用者に明かさない。
func NewCSRFMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			sess := session.FromContext(r.Context())
			if sess.VerifyCSRF(r.PostFormValue(CSRFFormField)) {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("CSRF validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			if collector != nil {
				collector.RecordCSRFRejected()
			}

			sess.AddFlashErrors(model.NewInvalidRequestError().Message)
			http.Redirect(w, r, csrfFallbackPath(r), http.StatusSeeOther)
		})
	}
}

// csrfFallbackPath はCSRF検証失敗時のリダイレクト先を返す。
// 新規投稿はフォームへ、それ以外は一覧へ戻す。
func csrfFallbackPath(r *http.Request) string {
	if r.URL.Path == "/posts" {
		return "/posts/create"
	}
	return "/posts"
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
