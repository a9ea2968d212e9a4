// bowasゲートウェイのエントリポイント。
// WhatsAppメッセージングクライアントの前段に立つ認証付きHTTP APIを起動する。
// 環境変数から設定を読み込み、自動応答ルールストアとセッションクライアントを
// 組み立ててサーバーを開始する。
package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/nao1215/bowas/internal/autoreply"
	"github.com/nao1215/bowas/internal/gateway"
	"github.com/nao1215/bowas/internal/whatsapp"
	"github.com/nao1215/bowas/pkg/token"
)

func main() {
	host := getEnvOr("HOST", "0.0.0.0")
	port := getEnvOr("PORT", "3000")
	jwtSecret := getEnvOr("JWT_SECRET", "dev-insecure-change-me")
	jwtIssuer := os.Getenv("JWT_ISSUER")
	jwtAudience := os.Getenv("JWT_AUDIENCE")
	authUsername := getEnvOr("AUTH_USERNAME", "admin")
	authPassword := getEnvOr("AUTH_PASSWORD", "admin")
	corsOrigin := getEnvOr("CORS_ORIGIN", "*")
	dbPath := getEnvOr("AUTOREPLY_DB_PATH", "./data/autoreply.db")

	ttlSeconds, err := strconv.Atoi(getEnvOr("JWT_TTL_SECONDS", "3600"))
	if err != nil || ttlSeconds <= 0 {
		log.Fatalf("JWT_TTL_SECONDSが不正です: %s", os.Getenv("JWT_TTL_SECONDS"))
	}

	if jwtSecret == "dev-insecure-change-me" {
		log.Print("警告: JWT_SECRETがデフォルト値のままです。本番環境では必ず設定してください")
	}
	if authUsername == "admin" && authPassword == "admin" {
		log.Print("警告: AUTH_USERNAME/AUTH_PASSWORDがデフォルト値のままです")
	}

	store, err := autoreply.Open(dbPath)
	if err != nil {
		log.Fatalf("自動応答ストアの初期化に失敗: %v", err)
	}
	defer store.Close()

	rules, err := store.Initialize(context.Background())
	if err != nil {
		log.Fatalf("自動応答ルールの読み込みに失敗: %v", err)
	}
	log.Printf("自動応答ルールを読み込みました: %d件", len(rules))

	// TODO(transport): whatsapp-web相当の本番トランスポートが実装されたら
	// 環境変数で切り替えられるようにする。
	client := whatsapp.NewClient(whatsapp.NewDevTransport(), store)
	if err := client.Start(context.Background()); err != nil {
		log.Fatalf("WhatsAppクライアントの起動に失敗: %v", err)
	}

	server := gateway.NewServer(gateway.Config{
		Addr:         host + ":" + port,
		AuthUsername: authUsername,
		AuthPassword: authPassword,
		TokenTTL:     time.Duration(ttlSeconds) * time.Second,
		CORSOrigin:   corsOrigin,
		Tokens:       token.NewService(jwtSecret, jwtIssuer, jwtAudience),
		Rules:        store,
		Session:      client,
	})

	log.Printf("ゲートウェイを起動します: %s:%s", host, port)
	if err := server.Run(); err != nil {
		log.Fatalf("ゲートウェイの起動に失敗: %v", err)
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
