package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	// 配信待ちがこれを超えたクライアントは切断する
	sendBuffer = 64
)

// Client はイベントを購読しているWebsocket接続
type Client struct {
	conn          *websocket.Conn
	competitionID string // 空文字は全ての競技
	send          chan []byte
	mu            sync.Mutex
}

func newClient(conn *websocket.Conn, competitionID string) *Client {
	return &Client{
		conn:          conn,
		competitionID: competitionID,
		send:          make(chan []byte, sendBuffer),
	}
}

func (c *Client) wants(competitionID string) bool {
	return c.competitionID == "" || c.competitionID == competitionID
}

// gorilla/websocket は同時書き込みを許さないため書き込みを直列化する
func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// writeLoop は send が閉じられるか書き込みに失敗するまでイベントを送る
func (c *Client) writeLoop(h *Hub) {
	for payload := range c.send {
		if err := c.write(websocket.TextMessage, payload); err != nil {
			h.logger.Error("Failed to broadcast event", zap.Error(err))
			h.Unregister(c)
			return
		}
	}
}

// KeepAlive sends a ping every period until done is closed or a ping fails.
func (c *Client) KeepAlive(done <-chan struct{}, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
