package model

import (
	"errors"
	"fmt"
)

// ErrorKind はアプリケーションエラーの種別を表す。
// ハンドラーは種別に応じてフォーム再表示かリダイレクトかを選ぶ。
type ErrorKind string

const (
	// KindValidation は入力形式の誤り（本文未入力、日付形式など）。
	KindValidation ErrorKind = "validation"
	// KindNotFound は投稿・スレッドが存在しない。
	KindNotFound ErrorKind = "not_found"
	// KindPermission はオーナーキー不一致による権限エラー。
	KindPermission ErrorKind = "permission"
	// KindConflict は条件付き更新が一致しなかった（競合）。
	KindConflict ErrorKind = "conflict"
	// KindSystem は上記以外の内部エラー。
	KindSystem ErrorKind = "system"
)

// AppError はユーザーに表示するメッセージを持つエラー。
type AppError struct {
	Kind    ErrorKind
	Code    string // エラーコード
	Message string // 利用者向けメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// KindOf はエラーの種別を返す。AppError以外はKindSystemとする。
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindSystem
}

// MessageOf は利用者向けメッセージを返す。AppError以外は汎用メッセージ。
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "内部エラーが発生しました。"
}

// 定義済みエラーコード
const (
	ErrCodeBodyRequired     = "BODY_REQUIRED"
	ErrCodeInvalidPostID    = "INVALID_POST_ID"
	ErrCodeInvalidThreadID  = "INVALID_THREAD_ID"
	ErrCodeInvalidReplyTo   = "INVALID_REPLY_TO"
	ErrCodeInvalidDate      = "INVALID_DATE"
	ErrCodeInvalidMonth     = "INVALID_MONTH"
	ErrCodeInvalidDateRange = "INVALID_DATE_RANGE"
	ErrCodePostNotFound     = "POST_NOT_FOUND"
	ErrCodeReplyToNotFound  = "REPLY_TO_NOT_FOUND"
	ErrCodeThreadNotFound   = "THREAD_NOT_FOUND"
	ErrCodeEditForbidden    = "EDIT_FORBIDDEN"
	ErrCodeDeleteForbidden  = "DELETE_FORBIDDEN"
	ErrCodeUpdateFailed     = "UPDATE_FAILED"
	ErrCodeDeleteFailed     = "DELETE_FAILED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
)

// NewBodyRequiredError は本文未入力エラーを生成する。
func NewBodyRequiredError() *AppError {
	return &AppError{Kind: KindValidation, Code: ErrCodeBodyRequired, Message: "本文は必須です。"}
}

// NewInvalidPostIDError は不正な投稿IDエラーを生成する。
func NewInvalidPostIDError() *AppError {
	return &AppError{Kind: KindValidation, Code: ErrCodeInvalidPostID, Message: "不正な投稿IDです。"}
}

// NewInvalidThreadIDError は不正なスレッドIDエラーを生成する。
func NewInvalidThreadIDError() *AppError {
	return &AppError{Kind: KindValidation, Code: ErrCodeInvalidThreadID, Message: "不正なスレッドIDです。"}
}

// NewInvalidReplyToError は不正な返信先IDエラーを生成する。
func NewInvalidReplyToError() *AppError {
	return &AppError{Kind: KindValidation, Code: ErrCodeInvalidReplyTo, Message: "返信先IDが不正です。"}
}

// NewInvalidDateError は日付形式エラーを生成する。labelは「開始日」「終了日」など。
func NewInvalidDateError(label string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidDate,
		Message: fmt.Sprintf("%sの形式が不正です。YYYY-MM-DD で指定してください。", label),
	}
}

// NewInvalidMonthError は年月形式エラーを生成する。
func NewInvalidMonthError() *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidMonth,
		Message: "年月の形式が不正です。YYYY-MM で指定してください。",
	}
}

// NewInvalidDateRangeError は開始日が終了日より後の場合のエラーを生成する。
func NewInvalidDateRangeError() *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidDateRange,
		Message: "開始日は終了日以前で指定してください。",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError() *AppError {
	return &AppError{Kind: KindNotFound, Code: ErrCodePostNotFound, Message: "投稿が見つかりません。"}
}

// NewReplyToNotFoundError は返信先未検出エラーを生成する。
func NewReplyToNotFoundError() *AppError {
	return &AppError{Kind: KindNotFound, Code: ErrCodeReplyToNotFound, Message: "返信先の投稿が見つかりません。"}
}

// NewThreadNotFoundError はスレッド未検出エラーを生成する。
func NewThreadNotFoundError() *AppError {
	return &AppError{Kind: KindNotFound, Code: ErrCodeThreadNotFound, Message: "スレッドが見つかりません。"}
}

// NewEditForbiddenError は編集権限エラーを生成する。
func NewEditForbiddenError() *AppError {
	return &AppError{
		Kind:    KindPermission,
		Code:    ErrCodeEditForbidden,
		Message: "この投稿は現在のセッションでは編集できません。",
	}
}

// NewDeleteForbiddenError は削除権限エラーを生成する。
func NewDeleteForbiddenError() *AppError {
	return &AppError{
		Kind:    KindPermission,
		Code:    ErrCodeDeleteForbidden,
		Message: "この投稿は現在のセッションでは削除できません。",
	}
}

// NewUpdateFailedError は条件付き更新が一致しなかった場合のエラーを生成する。
func NewUpdateFailedError() *AppError {
	return &AppError{Kind: KindConflict, Code: ErrCodeUpdateFailed, Message: "投稿の更新に失敗しました。"}
}

// NewDeleteFailedError は条件付き削除が一致しなかった場合のエラーを生成する。
func NewDeleteFailedError() *AppError {
	return &AppError{Kind: KindConflict, Code: ErrCodeDeleteFailed, Message: "投稿の削除に失敗しました。"}
}

// NewInvalidRequestError はCSRF検証失敗などの汎用エラーを生成する。
// どの検証に失敗したかは明かさない。
func NewInvalidRequestError() *AppError {
	return &AppError{Kind: KindValidation, Code: ErrCodeInvalidRequest, Message: "不正なリクエストです。"}
}
