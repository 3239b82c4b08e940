package ws

import "encoding/json"

// MessageType constants for the leaderboard feed protocol.
const (
	// Client -> Server
	TypeSubscribe = "subscribe"
	TypePing      = "ping"

	// Server -> Client
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeSubscribed        = "subscribed"
	TypeError             = "error"
	TypePong              = "pong"
)

// Leaderboard scopes.
const (
	ScopeGlobal = "global"
	ScopeRoom   = "room"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// SubscribePayload narrows a connection to one room. ChatID 0 means all rooms.
type SubscribePayload struct {
	ChatID int64 `json:"chat_id"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// LeaderboardUpdatePayload is published after score changes.
type LeaderboardUpdatePayload struct {
	Scope       string             `json:"scope"`
	ChatID      int64              `json:"chat_id,omitempty"`
	Top         []LeaderboardEntry `json:"top"`
	PublishedAt string             `json:"published_at"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}
