package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Lead feed message types
const (
	MsgLeadProgress  MessageType = "lead_progress"
	MsgLeadCompleted MessageType = "lead_completed"
	MsgFeedJoined    MessageType = "feed_joined"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans lead events out to the hosts watching a client's feed
type Hub struct {
	// clientID -> connections
	feeds map[string]map[*Connection]struct{}

	mu     sync.RWMutex
	logger *slog.Logger

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	quit       chan struct{}
	closeOnce  sync.Once
}

// Connection represents one host's WebSocket connection
type Connection struct {
	ClientID string
	HostID   string
	Send     chan []byte
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	ClientID string
	Message  *Message
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		feeds:      make(map[string]map[*Connection]struct{}),
		logger:     logger,
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		quit:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for clientID, conns := range h.feeds {
				for conn := range conns {
					close(conn.Send)
				}
				delete(h.feeds, clientID)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.feeds[conn.ClientID] == nil {
				h.feeds[conn.ClientID] = make(map[*Connection]struct{})
			}
			h.feeds[conn.ClientID][conn] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("host joined lead feed", "client_id", conn.ClientID, "host_id", conn.HostID)

			data, _ := json.Marshal(&Message{
				Type:    MsgFeedJoined,
				Payload: json.RawMessage(`{"clientId":` + quote(conn.ClientID) + `}`),
			})
			select {
			case conn.Send <- data:
			default:
			}

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.feeds[conn.ClientID]; ok {
				if _, ok := conns[conn]; ok {
					delete(conns, conn)
					close(conn.Send)
					if len(conns) == 0 {
						delete(h.feeds, conn.ClientID)
					}
					h.logger.Info("host left lead feed", "client_id", conn.ClientID, "host_id", conn.HostID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Message)
			if err != nil {
				h.logger.Error("failed to encode feed message", "type", msg.Message.Type, "error", err)
				continue
			}
			h.mu.RLock()
			for conn := range h.feeds[msg.ClientID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.quit:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.quit:
	}
}

// Close disconnects every host and stops the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// Watchers returns how many hosts are connected to a client's feed
func (h *Hub) Watchers(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.feeds[clientID])
}

// BroadcastToClient sends a message to every host watching the client (implements service.Broadcaster).
// It never blocks the caller: when the hub is backed up the event is dropped.
func (h *Hub) BroadcastToClient(clientID string, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode feed payload", "type", msgType, "error", err)
		return
	}
	msg := &BroadcastMessage{
		ClientID: clientID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	default:
		h.logger.Warn("lead feed backed up, dropping event", "client_id", clientID, "type", msgType)
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
