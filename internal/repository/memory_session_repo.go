package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/bbs/internal/model"
)

// MemorySessionRepo はプロセス内メモリにセッションを保持するリポジトリ。
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.StoredSession
	now      func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]model.StoredSession),
		now:      time.Now,
	}
}

// Find は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) Find(_ context.Context, id string) (*model.StoredSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return &s, nil
}

// Save はセッションを保存し、有効期限を延長する。
func (r *MemorySessionRepo) Save(_ context.Context, id string, data model.SessionData, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	s, ok := r.sessions[id]
	if !ok {
		s = model.StoredSession{ID: id, CreatedAt: now}
	}
	s.Data = data
	s.ExpiresAt = now.Add(ttl)
	r.sessions[id] = s
	return nil
}

// Delete は指定IDのセッションを削除する。
func (r *MemorySessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var n int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var (
	_ SessionRepository     = (*MemorySessionRepo)(nil)
	_ ExpiredSessionDeleter = (*MemorySessionRepo)(nil)
)
