// Package whatsapp はWhatsAppセッションとの境界を提供する。
//
// ゲートウェイが利用するSessionインターフェースと、その実装である
// Clientを含む。実際のプロトコル処理（ブラウザ自動化等）はTransport
// インターフェースの背後に隠蔽され、このパッケージはセッション状態の
// 追跡とQRコードの描画のみを担当する。
package whatsapp
