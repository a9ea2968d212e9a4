// Package gateway はWhatsAppメッセージングクライアントの前段に立つ
// 認証付きHTTPゲートウェイを提供する。
//
// ルーティング、入力検証、Bearerトークンによる認証ゲート、
// レスポンス整形を担当する。WhatsAppプロトコル自体の処理は行わず、
// 注入されたSessionインターフェース経由で外部クライアントを操作する。
package gateway
