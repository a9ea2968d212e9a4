package whatsapp

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// DevTransport は実際のWhatsApp接続を持たない開発用トランスポート。
// 起動時にダミーのQRペイロードを発行し、送信はログに記録して
// 生成したメッセージIDを返す。本番環境では使用しないこと。
type DevTransport struct {
	// mu はsentへのアクセスを直列化する。
	mu sync.Mutex
	// sent は送信されたメッセージの記録。
	sent []devMessage
}

// devMessage はDevTransportが記録する送信済みメッセージ。
type devMessage struct {
	ChatID string
	Text   string
}

// NewDevTransport は新しい開発用トランスポートを生成する。
func NewDevTransport() *DevTransport {
	return &DevTransport{}
}

// Start はダミーのQRペイロードをイベントハンドラへ通知する。
func (t *DevTransport) Start(_ context.Context, handler EventHandler) error {
	handler.OnQR("bowas-dev-qr-" + uuid.New().String())
	return nil
}

// SendText は送信を記録し、生成したメッセージIDを返す。
func (t *DevTransport) SendText(_ context.Context, chatID, text string) (string, error) {
	t.mu.Lock()
	t.sent = append(t.sent, devMessage{ChatID: chatID, Text: text})
	t.mu.Unlock()

	id := uuid.New().String()
	log.Printf("[dev] メッセージ送信: to=%s id=%s", chatID, id)
	return id, nil
}

// Logout は何もしない。
func (t *DevTransport) Logout(_ context.Context) error {
	return nil
}
