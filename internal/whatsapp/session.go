package whatsapp

import (
	"context"
	"errors"
)

// セッション操作のエラー。メッセージはAPIレスポンスにそのまま載る。
var (
	// ErrAlreadyAuthenticated は認証済みセッションに対するQR要求のエラー。
	ErrAlreadyAuthenticated = errors.New("WhatsApp client is already authenticated")
	// ErrQRNotAvailable はQRコードが未生成の状態でのQR要求のエラー。
	ErrQRNotAvailable = errors.New("QR is not available yet. Please retry in a few seconds")
)

// SendResult はメッセージ送信の結果。
type SendResult struct {
	// ID は送信されたメッセージの識別子。トランスポートが返さない場合は空。
	ID string
}

// QROptions はQRコード取得のオプション。
type QROptions struct {
	// AsText がtrueの場合、端末表示用の文字列としてQRを描画する。
	AsText bool
}

// QRResult は認証用QRコードの取得結果。
type QRResult struct {
	// Mode は描画モード（"text" または "image"）。
	Mode string `json:"mode"`
	// QR は端末表示用のQR文字列。textモードでのみ設定される。
	QR string `json:"qr,omitempty"`
	// QRImageDataURL はPNG形式のdata URL。imageモードでのみ設定される。
	QRImageDataURL string `json:"qrImageDataUrl,omitempty"`
	// GeneratedAt はQRペイロードの生成時刻（RFC 3339）。
	GeneratedAt string `json:"generatedAt,omitempty"`
}

// Message はトランスポートから受信したメッセージ。
type Message struct {
	// From は送信元のチャットアドレス。
	From string
	// Body はメッセージ本文。
	Body string
	// FromMe は自分自身が送信したメッセージかどうか。
	FromMe bool
}

// Session はゲートウェイが利用するセッション操作のインターフェース。
// 実装はセッション状態を内部で一貫させる責任を持つ。
type Session interface {
	// IsReady はセッションが認証済みで送信可能かを返す。
	IsReady() bool
	// Send はメッセージを送信する。chatIDは正規化済みのチャットアドレス。
	Send(ctx context.Context, chatID, text string) (SendResult, error)
	// RequestAuthQR は現在の認証用QRコードを描画して返す。
	RequestAuthQR(ctx context.Context, opts QROptions) (QRResult, error)
	// Deauthenticate はセッションを破棄し、再認証の準備を行う。
	Deauthenticate(ctx context.Context) error
}

// EventHandler はトランスポートからのセッションイベントを受け取る。
type EventHandler interface {
	// OnQR は新しい認証用QRペイロードの生成を通知する。
	OnQR(payload string)
	// OnReady はセッションが認証済みになったことを通知する。
	OnReady()
	// OnDisconnected はセッションの切断を通知する。
	OnDisconnected(reason string)
	// OnAuthFailure は認証失敗を通知する。
	OnAuthFailure(message string)
	// OnMessage はメッセージの受信を通知する。
	OnMessage(msg Message)
}

// Transport はWhatsAppとの実際の通信を担う。
// プロトコルの詳細（whatsapp-web相当のブラウザ自動化等）はこの背後に置く。
type Transport interface {
	// Start はトランスポートを起動し、イベントをhandlerへ通知する。
	Start(ctx context.Context, handler EventHandler) error
	// SendText はテキストメッセージを送信し、メッセージIDを返す。
	SendText(ctx context.Context, chatID, text string) (string, error)
	// Logout はセッションの認証情報を破棄する。
	Logout(ctx context.Context) error
}

// Responder は受信メッセージに対する自動応答を決定する。
// autoreply.Storeが実装する。
type Responder interface {
	// Match は本文に一致する返信テキストを返す。一致しない場合は false。
	Match(text string) (string, bool)
}
