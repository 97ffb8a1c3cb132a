package model

import "time"

// SessionData はブラウザセッションごとに保持する状態。
// セッションストアにJSONとして保存される。
type SessionData struct {
	OwnerKey         string            `json:"owner_key,omitempty"`
	CSRFToken        string            `json:"csrf_token,omitempty"`
	LikedPostIDs     []int64           `json:"liked_post_ids,omitempty"`
	ReadReplyIDs     []int64           `json:"read_reply_ids,omitempty"`
	NotifiedReplyIDs []int64           `json:"notified_reply_ids,omitempty"`
	FilterQuery      string            `json:"post_filter_query,omitempty"`
	NGWordsRaw       string            `json:"post_ng_words_raw,omitempty"`
	FlashSuccess     string            `json:"success,omitempty"`
	FlashErrors      []string          `json:"errors,omitempty"`
	Old              map[string]string `json:"old,omitempty"`
}

// StoredSession はセッションストアから読み出したセッション。
type StoredSession struct {
	ID        string
	Data      SessionData
	ExpiresAt time.Time
	CreatedAt time.Time
}
