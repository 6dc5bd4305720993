package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"commerce-sync-engine/internal/domain"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager fans engine notifications out to connected subscribers.
type Manager struct {
	clients          map[string]*Client
	subjectIndex     map[string]map[string]bool
	clientsMutex     sync.RWMutex
	Register         chan *Client
	Unregister       chan *Client
	HandleMessage    chan *ClientMessage
	done             chan struct{}
	stopOnce         sync.Once
	maxConnPerClient int
	writeWait        time.Duration
	pongWait         time.Duration
	pingPeriod       time.Duration
}

func NewManager(maxConnPerClient int, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:          make(map[string]*Client),
		subjectIndex:     make(map[string]map[string]bool),
		Register:         make(chan *Client),
		Unregister:       make(chan *Client),
		HandleMessage:    make(chan *ClientMessage),
		done:             make(chan struct{}),
		maxConnPerClient: maxConnPerClient,
		writeWait:        writeWait,
		pongWait:         pongWait,
		pingPeriod:       pingPeriod,
	}
}

func (m *Manager) Run(ctx context.Context) {
	defer m.stopOnce.Do(func() { close(m.done) })

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return

		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

// Join hands client to the run loop. It reports false once the manager has
// stopped.
func (m *Manager) Join(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

// Leave hands client to the run loop for removal. It is a no-op once the
// manager has stopped.
func (m *Manager) Leave(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) deliver(msg *ClientMessage) bool {
	select {
	case m.HandleMessage <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.subjectIndex[client.Subject] == nil {
		m.subjectIndex[client.Subject] = make(map[string]bool)
	}

	if m.maxConnPerClient > 0 && len(m.subjectIndex[client.Subject]) >= m.maxConnPerClient {
		log.Printf("[WebSocket] max connections reached for %s", client.Subject)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.subjectIndex[client.Subject][client.ID] = true

	log.Printf("[WebSocket] client registered: %s (subject: %s)", client.ID, client.Subject)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.subjectIndex[client.Subject], client.ID)

		if len(m.subjectIndex[client.Subject]) == 0 {
			delete(m.subjectIndex, client.Subject)
		}

		close(client.Send)
		log.Printf("[WebSocket] client unregistered: %s", client.ID)
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.subjectIndex = make(map[string]map[string]bool)
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		log.Printf("[WebSocket] error unmarshaling message: %v", err)
		return
	}

	client := clientMsg.Client
	switch msg.Type {
	case TypePing:
		m.reply(client, TypePong, nil)

	case TypeSubscribe:
		var payload SubscribePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			m.reply(client, TypeAck, AckPayload{Error: "invalid subscribe payload"})
			return
		}
		client.SetFilter(payload.EntityTypes)
		m.reply(client, TypeAck, AckPayload{Success: true})

	default:
		log.Printf("[WebSocket] unknown message type: %s", msg.Type)
	}
}

func (m *Manager) reply(client *Client, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
		log.Printf("[WebSocket] client %s send buffer full", client.ID)
	}
}

// Notify publishes n to every client subscribed to its entity type. Clients
// whose buffers are full are disconnected.
func (m *Manager) Notify(n domain.EntityUpdated) {
	msg, err := NewMessage(messageTypeFor(n.Kind), n)
	if err != nil {
		log.Printf("[WebSocket] failed to build notification: %v", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	var slow []*Client
	m.clientsMutex.RLock()
	for _, client := range m.clients {
		if !client.Wants(n.EntityType) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		log.Printf("[WebSocket] client %s send buffer full, closing connection", client.ID)
		go m.Leave(client)
	}
}

func (m *Manager) Connections() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}
