package autoreply

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// setupTestStore はテスト用のストアをインメモリSQLiteで構築する。
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := New(db)
	if err != nil {
		t.Fatalf("ストアの生成に失敗: %v", err)
	}
	return store
}

// findRule はルール一覧から指定キーのルールを探すヘルパー関数。
func findRule(rules []Rule, match string) (Rule, bool) {
	for _, r := range rules {
		if r.Match == match {
			return r, true
		}
	}
	return Rule{}, false
}

// TestInitialize は起動時のシード投入とミラー読み込みを検証する。
func TestInitialize(t *testing.T) {
	t.Parallel()

	t.Run("空のストアにはシードルールが投入されること", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)

		rules, err := store.Initialize(context.Background())
		if err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		if len(rules) != 1 {
			t.Fatalf("ルール数 = %d, want 1", len(rules))
		}
		if rules[0].Match != "hello" || rules[0].Reply != "world" {
			t.Errorf("シードルール = %+v, want {hello world}", rules[0])
		}
	})

	t.Run("既存データがある場合はシードを投入しないこと", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)

		if _, err := store.db.Exec(
			`INSERT INTO autoreply_rules(match, reply) VALUES('ping', 'pong')`); err != nil {
			t.Fatalf("テストデータの投入に失敗: %v", err)
		}

		rules, err := store.Initialize(context.Background())
		if err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		if len(rules) != 1 {
			t.Fatalf("ルール数 = %d, want 1", len(rules))
		}
		if rules[0].Match != "ping" {
			t.Errorf("match = %q, want %q", rules[0].Match, "ping")
		}
		if _, found := findRule(rules, "hello"); found {
			t.Error("既存データがあるのにシードルールが投入された")
		}
	})

	t.Run("Initialize前のListは空を返すこと", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)

		if got := store.List(); len(got) != 0 {
			t.Errorf("ルール数 = %d, want 0", len(got))
		}
	})
}

// TestUpsert はルールの登録・更新とミラーの同期を検証する。
func TestUpsert(t *testing.T) {
	t.Parallel()

	t.Run("新規ルールを登録するとListに現れること", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		rule, err := store.Upsert(context.Background(), "hi", "there")
		if err != nil {
			t.Fatalf("Upsert()でエラーが発生: %v", err)
		}
		if rule.Match != "hi" || rule.Reply != "there" {
			t.Errorf("rule = %+v, want {hi there}", rule)
		}

		got, found := findRule(store.List(), "hi")
		if !found {
			t.Fatal("登録したルールがListに含まれていない")
		}
		if got.Reply != "there" {
			t.Errorf("reply = %q, want %q", got.Reply, "there")
		}
	})

	t.Run("同一キーの再登録ではルールが重複しないこと", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		if _, err := store.Upsert(context.Background(), "hi", "there"); err != nil {
			t.Fatalf("1回目のUpsert()でエラーが発生: %v", err)
		}
		if _, err := store.Upsert(context.Background(), "hi", "updated"); err != nil {
			t.Fatalf("2回目のUpsert()でエラーが発生: %v", err)
		}

		count := 0
		var last Rule
		for _, r := range store.List() {
			if r.Match == "hi" {
				count++
				last = r
			}
		}
		if count != 1 {
			t.Fatalf("キー hi のルール数 = %d, want 1", count)
		}
		if last.Reply != "updated" {
			t.Errorf("reply = %q, want %q", last.Reply, "updated")
		}
	})

	t.Run("更新が永続ストレージにも反映されること", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		if _, err := store.Upsert(context.Background(), "hi", "there"); err != nil {
			t.Fatalf("Upsert()でエラーが発生: %v", err)
		}

		var reply string
		err := store.db.QueryRow(
			`SELECT reply FROM autoreply_rules WHERE match = 'hi'`).Scan(&reply)
		if err != nil {
			t.Fatalf("永続データの取得に失敗: %v", err)
		}
		if reply != "there" {
			t.Errorf("永続データのreply = %q, want %q", reply, "there")
		}
	})

	t.Run("永続化に失敗した場合はミラーが変更されないこと", func(t *testing.T) {
		t.Parallel()

		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			t.Fatalf("インメモリDBの作成に失敗: %v", err)
		}
		store, err := New(db)
		if err != nil {
			t.Fatalf("ストアの生成に失敗: %v", err)
		}
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}
		before := store.List()

		// DBを閉じて書き込みを失敗させる
		db.Close()

		if _, err := store.Upsert(context.Background(), "hi", "there"); err == nil {
			t.Fatal("閉じたDBへのUpsert()が成功してしまった")
		}

		after := store.List()
		if len(after) != len(before) {
			t.Errorf("ミラーのルール数 = %d, want %d", len(after), len(before))
		}
		if _, found := findRule(after, "hi"); found {
			t.Error("永続化に失敗したルールがミラーに残っている")
		}
	})
}

// TestRemove はルール削除とミラーの同期を検証する。
func TestRemove(t *testing.T) {
	t.Parallel()

	t.Run("削除後のListには含まれず2回目の削除はfalseになること", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}
		if _, err := store.Upsert(context.Background(), "hi", "there"); err != nil {
			t.Fatalf("Upsert()でエラーが発生: %v", err)
		}

		removed, err := store.Remove(context.Background(), "hi")
		if err != nil {
			t.Fatalf("Remove()でエラーが発生: %v", err)
		}
		if !removed {
			t.Fatal("Remove() = false, want true")
		}
		if _, found := findRule(store.List(), "hi"); found {
			t.Error("削除したルールがListに残っている")
		}

		removed, err = store.Remove(context.Background(), "hi")
		if err != nil {
			t.Fatalf("2回目のRemove()でエラーが発生: %v", err)
		}
		if removed {
			t.Error("2回目のRemove() = true, want false")
		}
	})

	t.Run("存在しないキーの削除はfalseを返すこと", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		removed, err := store.Remove(context.Background(), "doesnotexist")
		if err != nil {
			t.Fatalf("Remove()でエラーが発生: %v", err)
		}
		if removed {
			t.Error("Remove() = true, want false")
		}
	})
}

// TestList はミラーのスナップショット性を検証する。
func TestList(t *testing.T) {
	t.Parallel()

	t.Run("返されたスライスを変更してもストアに影響しないこと", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		rules := store.List()
		if len(rules) == 0 {
			t.Fatal("ルールが空")
		}
		rules[0].Reply = "mutated"

		if got := store.List(); got[0].Reply == "mutated" {
			t.Error("呼び出し側の変更がストアに反映されている")
		}
	})
}

// TestMatch は受信メッセージとの一致判定を検証する。
func TestMatch(t *testing.T) {
	t.Parallel()

	t.Run("大文字小文字と前後空白を無視して一致すること", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		for _, text := range []string{"hello", "  hello  ", "HELLO", "Hello"} {
			reply, ok := store.Match(text)
			if !ok {
				t.Errorf("Match(%q) = false, want true", text)
				continue
			}
			if reply != "world" {
				t.Errorf("Match(%q) = %q, want %q", text, reply, "world")
			}
		}
	})

	t.Run("一致しない本文はfalseを返すこと", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		if _, err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		if _, ok := store.Match("goodbye"); ok {
			t.Error("Match(goodbye) = true, want false")
		}
		if _, ok := store.Match("hello there"); ok {
			t.Error("部分一致で応答してしまった")
		}
	})
}
