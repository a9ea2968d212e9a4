package autoreply

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。matchをキーとする自動応答ルールのテーブル。
const schema = `
CREATE TABLE IF NOT EXISTS autoreply_rules (
    -- 受信メッセージとの一致判定に使うキー（小文字・前後空白除去済み）
    match TEXT PRIMARY KEY,
    -- 一致時に返信するテキスト
    reply TEXT NOT NULL
);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
