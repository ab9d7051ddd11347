package middlewares

import (
	"net/http"
	"strings"

	"rpsserver/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AddressKey はgin.Contextに呼び出し元アドレスを保存するキー
const AddressKey = "Address"

// BearerToken はAuthorizationヘッダーからトークン文字列を取り出す
func BearerToken(c *gin.Context) string {
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// トークンを検証し、呼び出し元のアドレスをコンテキストにセットするミドルウェア
func AuthMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := BearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			return
		}

		claims, err := auth.ParseToken(tokenString)
		if err != nil {
			logger.Warn("認証失敗", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(AddressKey, claims.Address)
		c.Next()
	}
}

// Caller は AuthMiddleware がセットしたアドレスを返す
func Caller(c *gin.Context) string {
	return c.GetString(AddressKey)
}
