package handlers

import (
	"net/http"
	"time"

	"rpsserver/broadcast"
	"rpsserver/middlewares"
	"rpsserver/models"
	"rpsserver/registry"
	"rpsserver/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func originAllowed(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

// SetupRouter は各HTTPリクエストのルーティングを設定する
func SetupRouter(reg *registry.Registry, hub *broadcast.Hub, config models.Config, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	if len(config.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     config.AllowOrigins,
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originAllowed(config.AllowOrigins),
	}

	router.POST("/auth/token", func(c *gin.Context) {
		TokenHandler(c, reg, config.InitialGrant, logger)
	})
	router.GET("/competitions", func(c *gin.Context) {
		ListCompetitions(c, reg, logger)
	})
	router.GET("/competitions/:id", func(c *gin.Context) {
		GetCompetition(c, reg, logger)
	})
	router.GET("/metrics", func(c *gin.Context) {
		MetricsHandler(c, reg)
	})
	router.GET("/ws", func(c *gin.Context) {
		HandleConnections(c, hub, upgrader, logger)
	})

	authorized := router.Group("/", middlewares.AuthMiddleware(logger))
	authorized.GET("/accounts/me", func(c *gin.Context) {
		BalanceHandler(c, reg, logger)
	})
	authorized.POST("/competitions", func(c *gin.Context) {
		CreateCompetition(c, reg, logger)
	})
	authorized.POST("/competitions/:id/entry", func(c *gin.Context) {
		EnterCompetition(c, reg, logger)
	})
	authorized.POST("/competitions/:id/judge", func(c *gin.Context) {
		JudgeCompetition(c, reg, logger)
	})
	authorized.POST("/competitions/:id/close", func(c *gin.Context) {
		CloseCompetition(c, reg, logger)
	})
	authorized.POST("/competitions/:id/force-close", func(c *gin.Context) {
		ForceCloseCompetition(c, reg, logger)
	})

	return router
}
