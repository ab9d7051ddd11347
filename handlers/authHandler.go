package handlers

import (
	"net/http"
	"time"

	"rpsserver/auth"
	"rpsserver/middlewares"
	"rpsserver/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenHandler はトークンを発行します。
// 有効なトークンが送られた場合は同じアドレスのまま、期限が近ければ更新する。
// トークンが無い・無効な場合は新しい匿名アドレスを作り initialGrant を入金する。
func TokenHandler(c *gin.Context, reg *registry.Registry, initialGrant uint64, logger *zap.Logger) {
	now := time.Now()
	if tokenString := middlewares.BearerToken(c); tokenString != "" {
		if claims, err := auth.ParseToken(tokenString); err == nil {
			if auth.NeedsRefresh(claims, now) {
				newToken, err := auth.GenerateToken(claims.Address, now)
				if err != nil {
					logger.Error("Token generation error", zap.Error(err))
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
					return
				}
				tokenString = newToken
			}
			c.JSON(http.StatusOK, gin.H{"address": claims.Address, "token": tokenString})
			return
		}
	}

	address := auth.NewAddress()
	newToken, err := auth.GenerateToken(address, now)
	if err != nil {
		logger.Error("Token generation error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	if initialGrant > 0 {
		if err := reg.Grant(c.Request.Context(), address, initialGrant); err != nil {
			logger.Error("Failed to grant initial balance", zap.String("address", address), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}
	}
	logger.Info("New address issued", zap.String("address", address))
	c.JSON(http.StatusCreated, gin.H{"address": address, "token": newToken})
}
