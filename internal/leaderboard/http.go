package leaderboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	httperrors "github.com/lizardjazz1/morning-quiz-bot/pkg/http/errors"
	ws "github.com/lizardjazz1/morning-quiz-bot/pkg/http/ws"
)

const maxLimit = 100

// HTTPHandler exposes REST endpoints for leaderboard queries and the live feed.
type HTTPHandler struct {
	source   Source
	hub      *ws.Hub
	upgrader websocket.Upgrader
	topN     int
	logger   zerolog.Logger
}

// NewHTTPHandler constructs a leaderboard HTTP handler. hub may be nil, in
// which case the feed endpoint is unavailable.
func NewHTTPHandler(source Source, hub *ws.Hub, upgrader websocket.Upgrader, topN int, logger zerolog.Logger) *HTTPHandler {
	if topN <= 0 {
		topN = 10
	}
	return &HTTPHandler{
		source:   source,
		hub:      hub,
		upgrader: upgrader,
		topN:     topN,
		logger:   logger.With().Str("component", "leaderboard_http").Logger(),
	}
}

// HandleGlobal serves GET /v1/leaderboards/global?limit=10.
func (h *HTTPHandler) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	writeJSON(w, ws.LeaderboardUpdatePayload{
		Scope:       ws.ScopeGlobal,
		Top:         toWSEntries(h.source.GlobalLeaderboard(limit)),
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleRoom serves GET /v1/leaderboards/rooms/{chat_id}?limit=10.
func (h *HTTPHandler) HandleRoom(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.PathValue("chat_id"), 10, 64)
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidChatID, "chat_id must be an integer")
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	writeJSON(w, ws.LeaderboardUpdatePayload{
		Scope:       ws.ScopeRoom,
		ChatID:      chatID,
		Top:         toWSEntries(h.source.Leaderboard(chatID, limit)),
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleFeed upgrades GET /ws/leaderboard[?chat_id=N] to a live update stream.
func (h *HTTPHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeFeedUnavailable, "Leaderboard feed is disabled")
		return
	}
	var chatID int64
	if raw := r.URL.Query().Get("chat_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidChatID, "chat_id must be an integer")
			return
		}
		chatID = parsed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.hub.Serve(conn, chatID)
}

func (h *HTTPHandler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.topN, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 || parsed > maxLimit {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "limit must be between 1 and 100", "limit")
		return 0, false
	}
	return parsed, true
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
