package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// Hub tracks feed connections and the room each one follows.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection
	rooms       map[uuid.UUID]int64 // connection_id -> chat_id, 0 for all rooms
	logger      zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*Connection),
		rooms:       make(map[uuid.UUID]int64),
		logger:      logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a connection following chatID (0 for every room).
func (h *Hub) Register(conn *Connection, chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn.ID] = conn
	h.rooms[conn.ID] = chatID
	h.logger.Debug().Str("conn_id", conn.ID.String()).Int64("chat_id", chatID).Msg("connection registered")
}

// Unregister closes and removes a connection.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	conn, exists := h.connections[id]
	delete(h.connections, id)
	delete(h.rooms, id)
	h.mu.Unlock()

	if exists {
		conn.Close()
		h.logger.Debug().Str("conn_id", id.String()).Msg("connection unregistered")
	}
}

// Follow switches the room a connection receives updates for.
func (h *Hub) Follow(id uuid.UUID, chatID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[id]; !exists {
		return ErrConnectionNotFound
	}
	h.rooms[id] = chatID
	return nil
}

// Len reports the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Publish delivers msg to every connection following chatID or all rooms.
// A chatID of 0 reaches every connection. Slow consumers are skipped.
func (h *Hub) Publish(chatID int64, msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, conn := range h.connections {
		if follow := h.rooms[id]; chatID != 0 && follow != 0 && follow != chatID {
			continue
		}
		if err := conn.Send(msg); err != nil {
			h.logger.Warn().Err(err).Str("conn_id", id.String()).Msg("publish_send_failed")
			continue
		}
		delivered++
	}
	return delivered
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	ID     uuid.UUID
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection under a fresh id.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	id := uuid.New()
	return &Connection{
		ID:     id,
		conn:   conn,
		sendCh: make(chan Message, 64),
		logger: logger.With().Str("conn_id", id.String()).Logger(),
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.sendCh)
	c.conn.Close()
}

// WritePump sends queued messages and keeps the connection alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump receives messages and calls the handler until the peer goes away.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Msg("message handler error")
		}
	}
}

// Serve runs a feed connection until it closes: it registers with the hub,
// answers pings and subscription changes, and unregisters on exit.
func (h *Hub) Serve(conn *websocket.Conn, chatID int64) {
	c := NewConnection(conn, h.logger)
	h.Register(c, chatID)
	defer h.Unregister(c.ID)

	go c.WritePump()
	c.ReadPump(func(msg Message) error {
		switch msg.Type {
		case TypePing:
			return c.Send(Message{Type: TypePong, RequestID: msg.RequestID})
		case TypeSubscribe:
			var req SubscribePayload
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				return c.sendError(msg.RequestID, "invalid_payload", "Invalid subscribe payload")
			}
			if err := h.Follow(c.ID, req.ChatID); err != nil {
				return err
			}
			ack, err := NewMessage(TypeSubscribed, req)
			if err != nil {
				return err
			}
			ack.RequestID = msg.RequestID
			return c.Send(ack)
		default:
			return c.sendError(msg.RequestID, "unknown_message_type", "Unknown message type: "+msg.Type)
		}
	})
}

func (c *Connection) sendError(requestID, code, message string) error {
	msg, err := NewMessage(TypeError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return c.Send(msg)
}

var (
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "Connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
