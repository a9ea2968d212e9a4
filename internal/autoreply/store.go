// Package autoreply は自動応答ルールの永続ストアを提供する。
//
// SQLiteを正としつつ、読み取りはメモリ上のミラーから応答する。
// ミラーの更新は永続化の成功後にのみ行うため、読み手が
// 未コミットの変更を観測することはない。
package autoreply

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// seedRule は初回起動時（テーブルが空の場合）に投入されるデフォルトルール。
var seedRule = Rule{Match: "hello", Reply: "world"}

// Rule は自動応答ルール。matchは小文字・前後空白除去済みの一意キー。
type Rule struct {
	// Match は受信メッセージとの一致判定に使うキー。
	Match string `json:"match"`
	// Reply は一致時に返信するテキスト。
	Reply string `json:"reply"`
}

// Store は自動応答ルールのストア。
// 永続化にはSQLiteを使用し、読み取り用にメモリ上のミラーを保持する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// mu はmirrorへのアクセスを直列化する。永続I/Oは保護しない。
	mu sync.RWMutex
	// mirror は永続データのメモリコピー。挿入順を保つ。
	mirror []Rule
}

// Open は指定パスのSQLiteデータベースを開いてストアを生成する。
// ディレクトリが存在しない場合は作成する。
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("データベースディレクトリの作成に失敗: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	store, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New は既存のデータベース接続からストアを生成し、スキーマを適用する。
func New(db *sql.DB) (*Store, error) {
	if err := initSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize は起動時に永続データをミラーへ読み込む。
// テーブルが空の場合はシードルールを投入してから全件を返す。
// この呼び出しが完了するまでミラーは空のままであり、List は空集合を返しうる。
func (s *Store) Initialize(ctx context.Context) ([]Rule, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM autoreply_rules`).Scan(&count); err != nil {
		return nil, fmt.Errorf("ルール件数の取得に失敗: %w", err)
	}

	if count == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO autoreply_rules(match, reply) VALUES(?, ?)`,
			seedRule.Match, seedRule.Reply,
		); err != nil {
			return nil, fmt.Errorf("シードルールの投入に失敗: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT match, reply FROM autoreply_rules`)
	if err != nil {
		return nil, fmt.Errorf("ルール一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.Match, &r.Reply); err != nil {
			return nil, fmt.Errorf("ルール行の読み取りに失敗: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ルール一覧の走査に失敗: %w", err)
	}

	s.mu.Lock()
	s.mirror = rules
	s.mu.Unlock()

	return s.snapshot(), nil
}

// List は現在のミラーのスナップショットを返す。永続ストレージには触れない。
func (s *Store) List() []Rule {
	return s.snapshot()
}

// Upsert はルールを永続ストレージに書き込み、成功後にミラーを更新する。
// 同一キーのルールが存在する場合はreplyを置き換える。
// 入力の正規化（小文字化・空白除去）は呼び出し側で済ませておくこと。
func (s *Store) Upsert(ctx context.Context, match, reply string) (Rule, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO autoreply_rules(match, reply) VALUES(?, ?)
		 ON CONFLICT(match) DO UPDATE SET reply = excluded.reply`,
		match, reply,
	); err != nil {
		return Rule{}, fmt.Errorf("ルールの保存に失敗: %w", err)
	}

	rule := Rule{Match: match, Reply: reply}

	s.mu.Lock()
	next := make([]Rule, 0, len(s.mirror)+1)
	for _, r := range s.mirror {
		if r.Match != match {
			next = append(next, r)
		}
	}
	s.mirror = append(next, rule)
	s.mu.Unlock()

	return rule, nil
}

// Remove はルールを永続ストレージから削除する。
// 実際に行が削除された場合のみミラーからも取り除き、trueを返す。
func (s *Store) Remove(ctx context.Context, match string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM autoreply_rules WHERE match = ?`, match)
	if err != nil {
		return false, fmt.Errorf("ルールの削除に失敗: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除行数の取得に失敗: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	s.mu.Lock()
	next := make([]Rule, 0, len(s.mirror))
	for _, r := range s.mirror {
		if r.Match != match {
			next = append(next, r)
		}
	}
	s.mirror = next
	s.mu.Unlock()

	return true, nil
}

// Match は受信メッセージ本文に一致するルールの返信テキストを返す。
// 本文は小文字化・前後空白除去してから完全一致で判定する。
func (s *Store) Match(text string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.mirror {
		if r.Match == normalized {
			return r.Reply, true
		}
	}
	return "", false
}

// snapshot はミラーのコピーを返す。呼び出し側の変更はストアに影響しない。
func (s *Store) snapshot() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]Rule, len(s.mirror))
	copy(rules, s.mirror)
	return rules
}
