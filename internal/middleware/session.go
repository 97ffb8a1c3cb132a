// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/security"
	"github.com/hitoshi/bbs/internal/session"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "bbs_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// SessionStore はセッションの読み書きに必要なインターフェース。
// repository.SessionRepositoryと同じメソッド集合を持つ。
type SessionStore interface {
	Find(ctx context.Context, id string) (*model.StoredSession, error)
	Save(ctx context.Context, id string, data model.SessionData, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	TTL          time.Duration
	CookieSecure bool
}

// NewSessionMiddleware はCookieからセッションを読み込み、
// session.Contextとしてリクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または期限切れの場合は新しいセッションを発行する。
// ハンドラー実行後、変更があった場合と残り有効期間が半分を切った場合に保存する。
func NewSessionMiddleware(store SessionStore, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var stored *model.StoredSession
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				stored, err = store.Find(ctx, cookie.Value)
				if err != nil {
					// 読み込めない場合は新規セッションとして続行する
					slog.Error("failed to load session",
						slog.String("error", err.Error()),
					)
					stored = nil
				} else if stored == nil {
					// 失効済みまたは不明なIDはストアから取り除いてから新規発行する
					if err := store.Delete(ctx, cookie.Value); err != nil {
						slog.Warn("failed to delete stale session",
							slog.String("error", err.Error()),
						)
					}
				}
			}

			var sess *session.Context
			touch := false
			if stored == nil {
				sess = session.New(security.NewToken(), model.SessionData{}, true)
				touch = true
			} else {
				sess = session.New(stored.ID, stored.Data, false)
				touch = time.Until(stored.ExpiresAt) < config.TTL/2
			}

			// Cookieはヘッダー送出前に設定する必要がある
			if touch {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    sess.ID(),
					Path:     "/",
					MaxAge:   int(config.TTL.Seconds()),
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			setLoggedSessionID(ctx, sess.ID())
			next.ServeHTTP(w, r.WithContext(session.WithContext(ctx, sess)))

			if !sess.Dirty() && !touch {
				return
			}
			if err := store.Save(context.WithoutCancel(ctx), sess.ID(), sess.Data(), config.TTL); err != nil {
				slog.Error("failed to save session",
					slog.String("error", err.Error()),
				)
			}
		})
	}
}
