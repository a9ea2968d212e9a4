// 運用・検証用のJWT発行ツール。
// 環境変数JWT_SECRET（必須）とJWT_ISSUER/JWT_AUDIENCE（任意）を読み、
// 引数で指定したサブジェクトとTTLのトークンを標準出力に書き出す。
//
// 使い方: genjwt [sub] [ttl-seconds]
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/nao1215/bowas/pkg/token"
)

func main() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRETが必要です")
	}

	sub := "bowas-client"
	if len(os.Args) > 1 {
		sub = os.Args[1]
	}

	ttlSeconds := 3600
	if len(os.Args) > 2 {
		v, err := strconv.Atoi(os.Args[2])
		if err != nil || v <= 0 {
			log.Fatalf("TTLが不正です: %s", os.Args[2])
		}
		ttlSeconds = v
	}

	svc := token.NewService(secret, os.Getenv("JWT_ISSUER"), os.Getenv("JWT_AUDIENCE"))
	signed, err := svc.Issue(sub, time.Duration(ttlSeconds)*time.Second)
	if err != nil {
		log.Fatalf("トークンの発行に失敗: %v", err)
	}

	fmt.Println(signed)
}
