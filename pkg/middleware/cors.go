package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS はクロスオリジンリクエストを許可するGinミドルウェアを返す。
// エラーレスポンスを含む全レスポンスにCORSヘッダーを付与し、
// OPTIONSプリフライトには204で応答する。
// originには許可するオリジン（通常は"*"）を指定する。
func CORS(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
