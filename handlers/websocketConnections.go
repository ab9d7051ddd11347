package handlers

import (
	"time"

	"rpsserver/broadcast"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 10 * time.Second
)

// HandleConnections はWebsocketで競技イベントを配信する。
// ?competition=<id> を指定するとその競技のイベントだけを受け取る
func HandleConnections(c *gin.Context, hub *broadcast.Hub, upgrader websocket.Upgrader, logger *zap.Logger) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを返している
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	client := hub.Register(conn, c.Query("competition"))
	defer hub.Unregister(client)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		if err := client.KeepAlive(done, pingPeriod); err != nil {
			logger.Error("Error sending ping", zap.Error(err))
		}
	}()

	// 購読専用。クライアントからのメッセージは読み捨てる
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}
	}
}
