package whatsapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// qrImageSize は画像モードで描画するQRコードのピクセル幅。
const qrImageSize = 300

// Client はTransportの上にセッション状態を追跡するSession実装。
// トランスポートからのイベント（QR生成・認証完了・切断）を受けて
// 状態を更新し、受信メッセージへの自動応答も行う。
type Client struct {
	// transport は実際の通信を担うトランスポート。
	transport Transport
	// responder は受信メッセージへの自動応答を決定する。nilの場合は応答しない。
	responder Responder

	// mu は以下のセッション状態を保護する。
	mu sync.Mutex
	// ready はセッションが認証済みかどうか。
	ready bool
	// latestQR は最新の認証用QRペイロード。未生成の場合は空。
	latestQR string
	// latestQRAt はlatestQRの生成時刻。
	latestQRAt time.Time
}

// NewClient は新しいクライアントを生成する。responderはnilでもよい。
func NewClient(transport Transport, responder Responder) *Client {
	return &Client{
		transport: transport,
		responder: responder,
	}
}

// Start はトランスポートを起動する。イベントはこのクライアント自身が受け取る。
func (c *Client) Start(ctx context.Context) error {
	return c.transport.Start(ctx, c)
}

// IsReady はセッションが認証済みで送信可能かを返す。
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Send はテキストメッセージをトランスポート経由で送信する。
// 準備状態の事前確認は呼び出し側（ゲートウェイ）の責任。
func (c *Client) Send(ctx context.Context, chatID, text string) (SendResult, error) {
	id, err := c.transport.SendText(ctx, chatID, text)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{ID: id}, nil
}

// RequestAuthQR は最新の認証用QRペイロードを描画して返す。
// 認証済みの場合はErrAlreadyAuthenticated、QR未生成の場合は
// ErrQRNotAvailableを返す。
func (c *Client) RequestAuthQR(_ context.Context, opts QROptions) (QRResult, error) {
	c.mu.Lock()
	ready := c.ready
	payload := c.latestQR
	generatedAt := c.latestQRAt
	c.mu.Unlock()

	if ready {
		return QRResult{}, ErrAlreadyAuthenticated
	}
	if payload == "" {
		return QRResult{}, ErrQRNotAvailable
	}

	if opts.AsText {
		qr, err := qrcode.New(payload, qrcode.Medium)
		if err != nil {
			return QRResult{}, fmt.Errorf("QRコードの生成に失敗: %w", err)
		}
		return QRResult{
			Mode:        "text",
			QR:          qr.ToSmallString(false),
			GeneratedAt: generatedAt.Format(time.RFC3339),
		}, nil
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return QRResult{}, fmt.Errorf("QR画像の生成に失敗: %w", err)
	}
	return QRResult{
		Mode:           "image",
		QRImageDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		GeneratedAt:    generatedAt.Format(time.RFC3339),
	}, nil
}

// Deauthenticate はセッションを破棄してトランスポートを再起動する。
// ログアウトの失敗は無視する（既に未認証・切断済みの場合があるため）。
// 再起動後のトランスポートは呼び出し元のコンテキストに縛らない。
// リクエスト起点の破棄でも、再起動したセッションはリクエスト完了後も生き続ける。
func (c *Client) Deauthenticate(ctx context.Context) error {
	if err := c.transport.Logout(ctx); err != nil {
		log.Printf("ログアウトに失敗（無視して続行）: %v", err)
	}

	c.mu.Lock()
	c.ready = false
	c.latestQR = ""
	c.latestQRAt = time.Time{}
	c.mu.Unlock()

	if err := c.transport.Start(context.Background(), c); err != nil {
		return fmt.Errorf("トランスポートの再起動に失敗: %w", err)
	}
	return nil
}

// OnQR は新しい認証用QRペイロードを記録する。
func (c *Client) OnQR(payload string) {
	c.mu.Lock()
	c.latestQR = payload
	c.latestQRAt = time.Now()
	c.mu.Unlock()
	log.Print("WhatsApp QRコードが生成されました。POST /whatsapp/auth で取得できます")
}

// OnReady はセッションを認証済み状態にし、QRペイロードを破棄する。
func (c *Client) OnReady() {
	c.mu.Lock()
	c.ready = true
	c.latestQR = ""
	c.latestQRAt = time.Time{}
	c.mu.Unlock()
	log.Print("WhatsAppクライアントの準備が完了しました")
}

// OnDisconnected はセッションを未認証状態に戻す。
func (c *Client) OnDisconnected(reason string) {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	log.Printf("WhatsAppクライアントが切断されました: %s", reason)
}

// OnAuthFailure はセッションを未認証状態に戻す。
func (c *Client) OnAuthFailure(message string) {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	log.Printf("WhatsApp認証に失敗しました: %s", message)
}

// OnMessage は受信メッセージに対して自動応答する。
// 自分自身のメッセージとグループメッセージは対象外。
func (c *Client) OnMessage(msg Message) {
	if c.responder == nil || msg.FromMe {
		return
	}
	if strings.HasSuffix(msg.From, "@g.us") {
		return
	}

	reply, ok := c.responder.Match(msg.Body)
	if !ok {
		return
	}

	if _, err := c.transport.SendText(context.Background(), msg.From, reply); err != nil {
		log.Printf("自動応答の送信に失敗: %v", err)
		return
	}
	log.Printf("自動応答を送信しました: to=%s reply=%q", msg.From, reply)
}
