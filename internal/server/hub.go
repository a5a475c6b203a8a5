package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + writeWait
	sendBuffer = 32
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frame messages out to websocket clients. Slow clients drop
// frames rather than stall the session.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	count      atomic.Int32
	log        *zap.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 1),
		log:        logger.Named("hub"),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Broadcast queues msg for every client. If the previous message has not
// been dispatched yet, msg is dropped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Run dispatches messages until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]struct{})
	defer func() {
		for c := range clients {
			close(c.send)
		}
		h.count.Store(0)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			clients[c] = struct{}{}
			h.count.Store(int32(len(clients)))
			h.log.Debug("client connected", zap.String("remote", c.conn.RemoteAddr().String()))
		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				h.count.Store(int32(len(clients)))
				h.log.Debug("client disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
			}
		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
				default:
				}
			}
		}
	}
}

func (h *Hub) add(ctx context.Context, c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) remove(ctx context.Context, c *client) {
	select {
	case h.unregister <- c:
	case <-ctx.Done():
	}
}

func (c *client) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ws ping error", zap.Error(err))
				return
			}
		}
	}
}
