package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

var emojiPalette = [...]string{
	"😀", "😃", "😄", "😁", "😆", "😅", "🙂", "😉",
	"😊", "😇", "🥰", "😍", "🤩", "😘", "😗", "😚",
	"😋", "😎", "🤓", "🧐", "😺", "😸", "😹", "😻",
	"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼",
	"🐨", "🐯", "🦁", "🐮", "🐷", "🐸", "🐵", "🐔",
	"🐧", "🐦", "🦄", "🐝", "🦋", "🌸", "🌼", "🌻",
	"🍀", "🌈", "⭐", "🌟", "🔥", "⚡", "🎈", "🎉",
	"🎵", "🎶", "🍎", "🍇", "🍓", "🍉", "🍙", "🍵",
}

// EmojiFromSecret は秘密文字列から2文字の絵文字を決定的に生成する。
// SHA-256の16進表記の先頭8桁と次の8桁をそれぞれパレット数で割った余りを使う。
// 空白のみの場合は空文字列を返す。
func EmojiFromSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(secret))
	digest := hex.EncodeToString(sum[:])
	size := uint64(len(emojiPalette))

	first, _ := strconv.ParseUint(digest[0:8], 16, 64)
	second, _ := strconv.ParseUint(digest[8:16], 16, 64)

	return emojiPalette[first%size] + emojiPalette[second%size]
}

// NormalizeAuthor は "名前#秘密" 形式の投稿者名を表示用に変換する。
// 最初の#で分割し、秘密が空なら名前のみを返す。
// 秘密がある場合は絵文字を付与し、generatedにtrueを返す。
func NormalizeAuthor(author string) (name string, generated bool) {
	idx := strings.Index(author, "#")
	if idx < 0 {
		return author, false
	}

	displayName := strings.TrimSpace(author[:idx])
	secret := strings.TrimSpace(author[idx+1:])
	if secret == "" {
		return displayName, false
	}

	emoji := EmojiFromSecret(secret)
	if displayName == "" {
		return emoji, true
	}
	return displayName + " " + emoji, true
}
