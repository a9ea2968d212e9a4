package gateway

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/bowas/internal/autoreply"
	"github.com/nao1215/bowas/internal/whatsapp"
	"github.com/nao1215/bowas/pkg/middleware"
	"github.com/nao1215/bowas/pkg/token"
)

// maxBodyBytes はリクエストボディの上限（1 MiB）。
// 超過した場合は400を返し、サーバーが接続を閉じる。
const maxBodyBytes = 1 << 20

// Config はゲートウェイサーバーの設定。
type Config struct {
	// Addr はリッスンアドレス（例 ":3000"）。
	Addr string
	// AuthUsername はログインに使用するユーザー名。
	AuthUsername string
	// AuthPassword はログインに使用するパスワード。
	AuthPassword string
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration
	// CORSOrigin は許可するオリジン。空の場合は"*"。
	CORSOrigin string
	// Tokens はトークンの発行・検証サービス。
	Tokens *token.Service
	// Rules は自動応答ルールのストア。
	Rules *autoreply.Store
	// Session はWhatsAppセッションへの操作窓口。
	Session whatsapp.Session
}

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// tokens はトークンの発行・検証サービス。
	tokens *token.Service
	// rules は自動応答ルールのストア。
	rules *autoreply.Store
	// session はWhatsAppセッションへの操作窓口。
	session whatsapp.Session
	// authUsername / authPassword はログイン認証情報。
	authUsername string
	authPassword string
	// tokenTTL は発行するトークンの有効期間。
	tokenTTL time.Duration
}

// NewServer は新しいゲートウェイサーバーを生成する。
func NewServer(cfg Config) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.CORSOrigin))

	s := &Server{
		router:       router,
		addr:         cfg.Addr,
		tokens:       cfg.Tokens,
		rules:        cfg.Rules,
		session:      cfg.Session,
		authUsername: cfg.AuthUsername,
		authPassword: cfg.AuthPassword,
		tokenTTL:     cfg.TokenTTL,
	}
	s.setupRoutes()

	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(s.addr)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証不要のエンドポイント
	s.router.GET("/health", s.handleHealth())
	s.router.POST("/login", s.handleLogin())
	s.router.GET("/autoreply/rules", s.handleListRules())

	// Bearerトークン必須のエンドポイント
	authed := s.router.Group("", middleware.BearerAuth(s.tokens))
	{
		authed.POST("/send", s.handleSend())
		authed.POST("/whatsapp/auth", s.handleAuthQR())
		authed.POST("/whatsapp/deauth", s.handleDeauth())
	}

	// ルール変更は入力検証を認証より先に行うため、ハンドラ内で認証する
	s.router.POST("/autoreply/rules", s.handleUpsertRule())
	s.router.DELETE("/autoreply/rules", s.handleRemoveRule())

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

// bindJSON はリクエストボディをJSONとして読み取る。
// ボディは1 MiBで打ち切り、空ボディは空オブジェクトとして扱う。
// 失敗時はエラーレスポンスを書き込んでfalseを返す。
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			// 空ボディは許容し、フィールド検証に委ねる
			return true
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Request body is too large"})
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return false
	}
	return true
}

// handleHealth は死活確認ハンドラを返す。WhatsAppセッションの準備状態も含める。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"whatsappReady": s.session.IsReady(),
		})
	}
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Username はログインユーザー名。
	Username string `json:"username"`
	// Password はログインパスワード。
	Password string `json:"password"`
}

// handleLogin は認証情報を検証してトークンを発行するハンドラを返す。
// 失敗時はどのフィールドが誤っているかを明かさない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if !s.bindJSON(c, &req) {
			return
		}

		if req.Username != s.authUsername || req.Password != s.authPassword {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}

		tokenString, err := s.tokens.Issue(req.Username, s.tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
			log.Printf("トークン発行エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":     tokenString,
			"tokenType": "Bearer",
			"expiresIn": int64(s.tokenTTL.Seconds()),
		})
	}
}

// sendRequest はメッセージ送信リクエストのJSON構造。
type sendRequest struct {
	// To は送信先。電話番号またはチャットアドレス。
	To string `json:"to"`
	// Message は送信するテキスト。
	Message string `json:"message"`
}

// handleSend はメッセージ送信ハンドラを返す。
// 送信先を正規化し、セッションの準備完了を確認してから送信を委譲する。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if !s.bindJSON(c, &req) {
			return
		}

		chatID := NormalizeChatID(req.To)
		text := strings.TrimSpace(req.Message)
		if chatID == "" || text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Required fields: to, message"})
			return
		}

		if !s.session.IsReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WhatsApp client is not ready yet"})
			return
		}

		sent, err := s.session.Send(c.Request.Context(), chatID, text)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			log.Printf("メッセージ送信エラー: to=%s, error=%v", chatID, err)
			return
		}

		var id any
		if sent.ID != "" {
			id = sent.ID
		}
		log.Printf("メッセージを送信しました: sub=%s, to=%s", middleware.GetSubject(c), chatID)
		c.JSON(http.StatusOK, gin.H{
			"ok": true,
			"to": chatID,
			"id": id,
		})
	}
}

// qrHTMLPage は画像QRを埋め込む最小のHTMLページ。
const qrHTMLPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>WhatsApp Auth QR</title>
</head>
<body>
<h1>Scan this QR code with WhatsApp</h1>
<img src="%s" alt="WhatsApp auth QR" width="300" height="300">
<p>Generated at: %s</p>
</body>
</html>
`

// handleAuthQR は認証用QRコードの取得ハンドラを返す。
// クエリフラグ text / html（true・1・yes を真とみなす）で出力形式を切り替える。
func (s *Server) handleAuthQR() gin.HandlerFunc {
	return func(c *gin.Context) {
		asText := truthyFlag(c.Query("text"))
		asHTML := truthyFlag(c.Query("html"))

		// HTMLモードは画像形式のQRを必要とする
		result, err := s.session.RequestAuthQR(c.Request.Context(), whatsapp.QROptions{
			AsText: asText && !asHTML,
		})
		if err != nil {
			if errors.Is(err, whatsapp.ErrAlreadyAuthenticated) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		if asHTML {
			if result.QRImageDataURL == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "HTML mode requires an image QR"})
				return
			}
			page := fmt.Sprintf(qrHTMLPage, result.QRImageDataURL, result.GeneratedAt)
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// handleDeauth はセッション破棄ハンドラを返す。
func (s *Server) handleDeauth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.session.Deauthenticate(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deauthenticate client"})
			log.Printf("セッション破棄エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"message": "WhatsApp client deauthenticated. A new QR will be generated shortly.",
		})
	}
}

// handleListRules は自動応答ルールの一覧取得ハンドラを返す。
// ミラーから応答するため永続ストレージには触れない。
func (s *Server) handleListRules() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.rules.List())
	}
}

// upsertRuleRequest は自動応答ルール登録リクエストのJSON構造。
type upsertRuleRequest struct {
	// Match は一致判定キー。
	Match string `json:"match"`
	// Reply は返信テキスト。
	Reply string `json:"reply"`
}

// handleUpsertRule は自動応答ルールの登録・更新ハンドラを返す。
// 入力検証を認証より先に行う。
func (s *Server) handleUpsertRule() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req upsertRuleRequest
		if !s.bindJSON(c, &req) {
			return
		}

		match := strings.ToLower(strings.TrimSpace(req.Match))
		reply := strings.TrimSpace(req.Reply)
		if match == "" || reply == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Required fields: match, reply"})
			return
		}

		if _, err := s.tokens.AuthenticateRequest(c.Request.Header); err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: " + err.Error()})
			return
		}

		rule, err := s.rules.Upsert(c.Request.Context(), match, reply)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save auto-reply rule"})
			log.Printf("ルール保存エラー: match=%s, error=%v", match, err)
			return
		}

		c.JSON(http.StatusOK, rule)
	}
}

// handleRemoveRule は自動応答ルールの削除ハンドラを返す。
// matchクエリパラメータの検証を認証より先に行う。
func (s *Server) handleRemoveRule() gin.HandlerFunc {
	return func(c *gin.Context) {
		match := strings.ToLower(strings.TrimSpace(c.Query("match")))
		if match == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Required query parameter: match"})
			return
		}

		if _, err := s.tokens.AuthenticateRequest(c.Request.Header); err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: " + err.Error()})
			return
		}

		removed, err := s.rules.Remove(c.Request.Context(), match)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete auto-reply rule"})
			log.Printf("ルール削除エラー: match=%s, error=%v", match, err)
			return
		}
		if !removed {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// truthyFlag はクエリフラグ値が真かどうかを判定する。
// "true"・"1"・"yes"（大文字小文字区別なし）を真とみなす。
func truthyFlag(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
