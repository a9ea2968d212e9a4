package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nao1215/bowas/pkg/token"
)

// contextKeyClaims はGinコンテキストに格納する検証済みクレームのキー。
const contextKeyClaims = "claims"

// BearerAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに検証済みクレームを設定する。
// 失敗時は401と WWW-Authenticate: Bearer ヘッダーを返す。
func BearerAuth(svc *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := svc.AuthenticateRequest(c.Request.Header)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized: " + err.Error(),
			})
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims はGinコンテキストから検証済みクレームを取得する。
// BearerAuthミドルウェアが事前に適用されている必要がある。
func GetClaims(c *gin.Context) jwt.MapClaims {
	value, _ := c.Get(contextKeyClaims)
	if claims, ok := value.(jwt.MapClaims); ok {
		return claims
	}
	return nil
}

// GetSubject は検証済みクレームからsubクレームを取得する。
func GetSubject(c *gin.Context) string {
	if sub, ok := GetClaims(c)["sub"].(string); ok {
		return sub
	}
	return ""
}
