package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/bbs/internal/model"
)

// redisSessionKeyPrefix はセッションキーの接頭辞。
const redisSessionKeyPrefix = "bbs:session:"

// redisSessionEnvelope はRedisに保存するセッションの値。
type redisSessionEnvelope struct {
	Data      model.SessionData `json:"data"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 有効期限はキーのTTLで管理するため、期限切れ削除のジョブは不要。
type RedisSessionRepo struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.UniversalClient) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

// NewRedisClient はREDIS_URL形式のURLまたはhost:portからクライアントを生成する。
func NewRedisClient(addr string) *redis.Client {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	return redis.NewClient(opts)
}

// Find は指定IDのセッションを取得する。存在しない場合はnilを返す。
func (r *RedisSessionRepo) Find(ctx context.Context, id string) (*model.StoredSession, error) {
	raw, err := r.client.Get(ctx, redisSessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var env redisSessionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	return &model.StoredSession{
		ID:        id,
		Data:      env.Data,
		ExpiresAt: env.ExpiresAt,
		CreatedAt: env.CreatedAt,
	}, nil
}

// Save はセッションを保存し、キーのTTLをttlに設定する。
// 既存セッションの作成日時は引き継ぐ。
func (r *RedisSessionRepo) Save(ctx context.Context, id string, data model.SessionData, ttl time.Duration) error {
	now := r.now().UTC()
	createdAt := now

	existing, err := r.Find(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil && !existing.CreatedAt.IsZero() {
		createdAt = existing.CreatedAt
	}

	raw, err := json.Marshal(redisSessionEnvelope{
		Data:      data,
		ExpiresAt: now.Add(ttl),
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	if err := r.client.Set(ctx, redisSessionKeyPrefix+id, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete は指定IDのセッションを削除する。
func (r *RedisSessionRepo) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisSessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
