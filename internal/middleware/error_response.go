package middleware

import (
	"net/http"

	"github.com/hitoshi/bbs/internal/model"
)

// WriteErrorResponse はtext/plainでエラーメッセージを書き込む。
// ログのダウンロードなど、画面遷移しないエンドポイントで使う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(message + "\n"))
}

// WriteAppError はAppErrorの種別に応じたステータスでメッセージを書き込む。
// AppError以外は内部エラーとして扱う。
func WriteAppError(w http.ResponseWriter, err error) {
	switch model.KindOf(err) {
	case model.KindValidation:
		WriteErrorResponse(w, http.StatusBadRequest, model.MessageOf(err))
	case model.KindNotFound:
		WriteErrorResponse(w, http.StatusNotFound, model.MessageOf(err))
	case model.KindPermission:
		WriteErrorResponse(w, http.StatusForbidden, model.MessageOf(err))
	case model.KindConflict:
		WriteErrorResponse(w, http.StatusConflict, model.MessageOf(err))
	default:
		WriteInternalServerError(w)
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, "内部エラーが発生しました。しばらく待ってから再度お試しください。")
}
