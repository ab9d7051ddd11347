// Package broadcast fans registry events out to websocket subscribers.
// With a Redis client every server instance publishes to one channel and
// relays what it receives to its own subscribers.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"rpsserver/models"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Hub struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	ready   chan struct{}
}

// NewHub creates a hub. rdb may be nil, then events are delivered to the
// local subscribers only.
func NewHub(rdb *redis.Client, channel string, logger *zap.Logger) *Hub {
	return &Hub{
		rdb:     rdb,
		channel: channel,
		logger:  logger,
		clients: make(map[*Client]bool),
		ready:   make(chan struct{}),
	}
}

// Publish implements registry.Publisher.
func (h *Hub) Publish(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if h.rdb == nil {
		h.deliver(payload, ev.CompetitionID)
		return nil
	}
	return h.rdb.Publish(ctx, h.channel, payload).Err()
}

// Ready is closed once Run has subscribed to the Redis channel.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run relays the Redis channel to local subscribers until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.rdb == nil {
		close(h.ready)
		<-ctx.Done()
		return nil
	}

	sub := h.rdb.Subscribe(ctx, h.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(h.ready)
	h.logger.Info("Subscribed to event channel", zap.String("channel", h.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Error("Error decoding event", zap.Error(err))
				continue
			}
			h.deliver([]byte(msg.Payload), ev.CompetitionID)
		}
	}
}

func (h *Hub) Register(conn *websocket.Conn, competitionID string) *Client {
	client := newClient(conn, competitionID)
	h.add(client)
	go client.writeLoop(h)
	h.logger.Info("New client added", zap.String("competition", competitionID))
	return client
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	if ok {
		client.conn.Close()
		h.logger.Info("Client removed", zap.String("competition", client.competitionID))
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver は各クライアントの送信キューに積むだけで待たない。
// キューが溢れたクライアントは切断する
func (h *Hub) deliver(payload []byte, competitionID string) {
	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !client.wants(competitionID) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Dropping slow subscriber", zap.String("competition", client.competitionID))
		h.Unregister(client)
	}
}
