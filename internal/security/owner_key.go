package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// tokenBytes はオーナーキーとCSRFトークンのバイト長（256ビット）。
const tokenBytes = 32

// NewToken は256ビットの乱数を16進文字列で返す。
// crypto/rand.Read は失敗しない。
func NewToken() string {
	b := make([]byte, tokenBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// HashOwnerKey はオーナーキーのSHA-256を16進文字列で返す。
// 投稿に保存・比較されるのはこのハッシュのみ。
func HashOwnerKey(ownerKey string) string {
	sum := sha256.Sum256([]byte(ownerKey))
	return hex.EncodeToString(sum[:])
}

// TokensEqual は2つのトークンを定数時間で比較する。どちらかが空ならfalse。
func TokensEqual(expected, given string) bool {
	if expected == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
