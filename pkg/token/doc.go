// Package token はHMAC-SHA256署名付きBearerトークンの発行と検証を提供する。
//
// トークンはHS256で署名されたJWTであり、時刻ベースのクレーム（nbf/exp）と
// 任意のiss/audクレームを検証する。検証失敗の理由はエラー値として公開され、
// HTTPレスポンスのエラーメッセージにそのまま使用できる。
package token
