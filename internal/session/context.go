// Package session はブラウザセッションごとの状態を型付きで扱う。
//
// Context はセッションストアから読み出したデータを保持し、
// 変更があった場合のみミドルウェアが保存する。
package session

import (
	"context"
	"slices"
	"strings"

	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/security"
)

type contextKey struct{}

// Context はリクエスト中のセッション状態。
// 同一セッションの並行リクエストは後勝ちで保存される。
type Context struct {
	id    string
	data  model.SessionData
	isNew bool
	dirty bool
}

// New はセッションIDと保存済みデータからContextを生成する。
func New(id string, data model.SessionData, isNew bool) *Context {
	return &Context{id: id, data: data, isNew: isNew, dirty: isNew}
}

// WithContext はContextをリクエストコンテキストに格納する。
func WithContext(ctx context.Context, s *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext はリクエストコンテキストからContextを取得する。
// セッションミドルウェアを通過していない場合は空の一時セッションを返す。
func FromContext(ctx context.Context) *Context {
	if s, ok := ctx.Value(contextKey{}).(*Context); ok && s != nil {
		return s
	}
	return New("", model.SessionData{}, false)
}

// ID はセッションIDを返す。
func (s *Context) ID() string { return s.id }

// IsNew はこのリクエストで作成されたセッションかを返す。
func (s *Context) IsNew() bool { return s.isNew }

// Dirty は保存が必要な変更があるかを返す。
func (s *Context) Dirty() bool { return s.dirty }

// Data は保存用のセッションデータを返す。
func (s *Context) Data() model.SessionData { return s.data }

// OwnerKey はオーナーキーを返す。未発行なら生成する。
func (s *Context) OwnerKey() string {
	if s.data.OwnerKey == "" {
		s.data.OwnerKey = security.NewToken()
		s.dirty = true
	}
	return s.data.OwnerKey
}

// OwnerKeyHash はオーナーキーのSHA-256を返す。
func (s *Context) OwnerKeyHash() string {
	return security.HashOwnerKey(s.OwnerKey())
}

// CSRFToken はCSRFトークンを返す。未発行なら生成する。
func (s *Context) CSRFToken() string {
	if s.data.CSRFToken == "" {
		s.data.CSRFToken = security.NewToken()
		s.dirty = true
	}
	return s.data.CSRFToken
}

// VerifyCSRF はフォームのトークンが発行済みトークンと一致するかを定数時間で比較する。
func (s *Context) VerifyCSRF(token string) bool {
	return security.TokensEqual(s.data.CSRFToken, token)
}

// LikedIDs はいいね済み投稿IDの集合を返す。
func (s *Context) LikedIDs() IDSet { return NewIDSet(s.data.LikedPostIDs) }

// SetLikedIDs はいいね済み投稿IDの集合を保存する。
func (s *Context) SetLikedIDs(set IDSet) {
	s.data.LikedPostIDs = set.Slice()
	s.dirty = true
}

// ReadIDs は既読の返信IDの集合を返す。
func (s *Context) ReadIDs() IDSet { return NewIDSet(s.data.ReadReplyIDs) }

// SetReadIDs は既読の返信IDの集合を保存する。
func (s *Context) SetReadIDs(set IDSet) {
	s.data.ReadReplyIDs = set.Slice()
	s.dirty = true
}

// NotifiedIDs は通知済みの返信IDの集合を返す。
func (s *Context) NotifiedIDs() IDSet { return NewIDSet(s.data.NotifiedReplyIDs) }

// SetNotifiedIDs は通知済みの返信IDの集合を保存する。
func (s *Context) SetNotifiedIDs(set IDSet) {
	next := set.Slice()
	if slices.Equal(next, s.data.NotifiedReplyIDs) {
		return
	}
	s.data.NotifiedReplyIDs = next
	s.dirty = true
}

// FilterQuery は保存中の絞り込み文字列を返す。
func (s *Context) FilterQuery() string { return s.data.FilterQuery }

// SetFilterQuery は絞り込み文字列を保存する。空白のみなら消去する。
func (s *Context) SetFilterQuery(q string) {
	q = strings.TrimSpace(q)
	if q == s.data.FilterQuery {
		return
	}
	s.data.FilterQuery = q
	s.dirty = true
}

// NGWordsRaw は保存中のNGワード文字列を返す。
func (s *Context) NGWordsRaw() string { return s.data.NGWordsRaw }

// SetNGWordsRaw はNGワード文字列を保存する。空白のみなら消去する。
func (s *Context) SetNGWordsRaw(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == s.data.NGWordsRaw {
		return
	}
	s.data.NGWordsRaw = raw
	s.dirty = true
}

// Flash は次のリクエストで一度だけ表示するメッセージ。
type Flash struct {
	Success string
	Errors  []string
}

// SetFlashSuccess は成功メッセージを設定する。
func (s *Context) SetFlashSuccess(msg string) {
	s.data.FlashSuccess = msg
	s.dirty = true
}

// AddFlashErrors はエラーメッセージを追加する。
func (s *Context) AddFlashErrors(msgs ...string) {
	if len(msgs) == 0 {
		return
	}
	s.data.FlashErrors = append(s.data.FlashErrors, msgs...)
	s.dirty = true
}

// PopFlash はフラッシュメッセージを取り出して消去する。
func (s *Context) PopFlash() Flash {
	f := Flash{Success: s.data.FlashSuccess, Errors: s.data.FlashErrors}
	if f.Success != "" || len(f.Errors) > 0 {
		s.data.FlashSuccess = ""
		s.data.FlashErrors = nil
		s.dirty = true
	}
	return f
}

// SetOld はフォームの入力値を次のリクエストへ引き継ぐ。
func (s *Context) SetOld(old map[string]string) {
	if len(old) == 0 {
		return
	}
	s.data.Old = old
	s.dirty = true
}

// PopOld は引き継いだ入力値を取り出して消去する。
func (s *Context) PopOld() map[string]string {
	old := s.data.Old
	if old == nil {
		return map[string]string{}
	}
	s.data.Old = nil
	s.dirty = true
	return old
}
