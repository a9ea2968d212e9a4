package gateway

import "strings"

// NormalizeChatID は送信先入力を正規化されたチャットアドレスに変換する。
// 既に"@c.us"（個人）または"@g.us"（グループ）で終わる場合はそのまま返す。
// それ以外は数字のみを抽出して"@c.us"を付与する。
// 有効なアドレスにできない場合は空文字列を返す。
func NormalizeChatID(to string) string {
	trimmed := strings.TrimSpace(to)
	if trimmed == "" {
		return ""
	}

	if strings.HasSuffix(trimmed, "@c.us") || strings.HasSuffix(trimmed, "@g.us") {
		return trimmed
	}

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	return digits.String() + "@c.us"
}
