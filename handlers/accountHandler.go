package handlers

import (
	"net/http"

	"rpsserver/middlewares"
	"rpsserver/registry"

	"github.com/gin-gonic/gin"
	gometrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

// BalanceHandler は呼び出し元の保管残高を返す
func BalanceHandler(c *gin.Context, reg *registry.Registry, logger *zap.Logger) {
	address := middlewares.Caller(c)
	balance, err := reg.Balance(c.Request.Context(), address)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "balance": balance})
}

func MetricsHandler(c *gin.Context, reg *registry.Registry) {
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	gometrics.WriteJSONOnce(reg.Metrics(), c.Writer)
}
