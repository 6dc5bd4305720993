package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"commerce-sync-engine/internal/domain"
)

// Client is one downstream notification subscriber connection.
type Client struct {
	ID      string
	Subject string
	Conn    *websocket.Conn
	Manager *Manager
	Send    chan []byte

	filterMu sync.RWMutex
	filter   map[domain.EntityType]bool
}

func NewClient(id, subject string, entityTypes []domain.EntityType, conn *websocket.Conn, manager *Manager) *Client {
	c := &Client{
		ID:      id,
		Subject: subject,
		Conn:    conn,
		Manager: manager,
		Send:    make(chan []byte, 256),
	}
	c.SetFilter(entityTypes)
	return c
}

func (c *Client) SetFilter(entityTypes []domain.EntityType) {
	filter := make(map[domain.EntityType]bool, len(entityTypes))
	for _, et := range entityTypes {
		if et != "" {
			filter[et] = true
		}
	}
	c.filterMu.Lock()
	c.filter = filter
	c.filterMu.Unlock()
}

// Wants reports whether the client subscribed to entityType.
func (c *Client) Wants(entityType domain.EntityType) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return len(c.filter) == 0 || c.filter[entityType]
}

func (c *Client) ReadPump() {
	defer func() {
		c.Manager.Leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 << 10)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] read error: %v", err)
			}
			break
		}

		if !c.Manager.deliver(&ClientMessage{Client: c, Message: message}) {
			break
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Manager.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
