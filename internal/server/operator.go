package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lizardjazz1/morning-quiz-bot/internal/auth"
	"github.com/lizardjazz1/morning-quiz-bot/internal/quiz"
	httperrors "github.com/lizardjazz1/morning-quiz-bot/pkg/http/errors"
)

// SessionEngine is the part of the quiz engine the operator API drives.
type SessionEngine interface {
	StartSession(ctx context.Context, chatID, userID int64, category string) error
	StopSession(ctx context.Context, chatID, userID int64, isAdmin bool) error
	ActiveSession(chatID int64) (quiz.SessionInfo, bool)
	PendingSession(chatID int64) (time.Time, bool)
}

// PendingSessionInfo describes an announced session that has not started yet.
type PendingSessionInfo struct {
	ChatID   int64     `json:"chat_id"`
	Pending  bool      `json:"pending"`
	StartsAt time.Time `json:"starts_at"`
}

// OperatorHandlers lets an operator start and stop sessions remotely.
type OperatorHandlers struct {
	engine SessionEngine
	logger zerolog.Logger
}

// NewOperatorHandlers creates operator API handlers.
func NewOperatorHandlers(engine SessionEngine, logger zerolog.Logger) *OperatorHandlers {
	return &OperatorHandlers{
		engine: engine,
		logger: logger.With().Str("component", "operator_http").Logger(),
	}
}

// StartSessionRequest is the POST body.
type StartSessionRequest struct {
	Category string `json:"category"`
	UserID   int64  `json:"user_id"`
}

// GetSession handles GET /v1/rooms/{chat_id}/session.
func (h *OperatorHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if startsAt, pending := h.engine.PendingSession(chatID); pending {
		respondJSON(w, http.StatusOK, PendingSessionInfo{ChatID: chatID, Pending: true, StartsAt: startsAt})
		return
	}
	info, running := h.engine.ActiveSession(chatID)
	if !running {
		httperrors.RespondError(w, http.StatusNotFound, httperrors.ErrCodeNothingToStop, "No running session")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// StartSession handles POST /v1/rooms/{chat_id}/session.
func (h *OperatorHandlers) StartSession(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	var req StartSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON body")
			return
		}
	}

	if err := h.engine.StartSession(r.Context(), chatID, req.UserID, req.Category); err != nil {
		h.respondEngineError(w, r, chatID, err)
		return
	}
	h.logOperator(r, chatID).Msg("session started by operator")

	info, _ := h.engine.ActiveSession(chatID)
	respondJSON(w, http.StatusCreated, info)
}

// StopSession handles DELETE /v1/rooms/{chat_id}/session.
func (h *OperatorHandlers) StopSession(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if err := h.engine.StopSession(r.Context(), chatID, 0, true); err != nil {
		h.respondEngineError(w, r, chatID, err)
		return
	}
	h.logOperator(r, chatID).Msg("session stopped by operator")
	w.WriteHeader(http.StatusNoContent)
}

func (h *OperatorHandlers) logOperator(r *http.Request, chatID int64) *zerolog.Event {
	evt := h.logger.Info().Int64("chat_id", chatID)
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		evt = evt.Str("operator", claims.Subject)
	}
	return evt
}

func (h *OperatorHandlers) respondEngineError(w http.ResponseWriter, r *http.Request, chatID int64, err error) {
	var rej *quiz.Rejection
	if !errors.As(err, &rej) {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Str("path", r.URL.Path).Msg("operator request failed")
		httperrors.RespondInternalError(w, "Internal error")
		return
	}
	switch rej.Reason {
	case quiz.ReasonAlreadyRunning:
		httperrors.RespondConflict(w, httperrors.ErrCodeAlreadyRunning, rej.Message)
	case quiz.ReasonNothingToStop:
		httperrors.RespondError(w, http.StatusNotFound, httperrors.ErrCodeNothingToStop, rej.Message)
	case quiz.ReasonNoQuestions:
		httperrors.RespondError(w, http.StatusUnprocessableEntity, httperrors.ErrCodeNoQuestions, rej.Message)
	case quiz.ReasonNotAllowed:
		httperrors.RespondForbidden(w, httperrors.ErrCodeForbidden, rej.Message)
	default:
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("operator request failed")
		httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeDispatchFailed, rej.Message)
	}
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(r.PathValue("chat_id"), 10, 64)
	if err != nil || chatID == 0 {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidChatID, "chat_id must be a non-zero integer")
		return 0, false
	}
	return chatID, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
