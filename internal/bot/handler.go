// Package bot turns chat commands and poll answers into quiz engine calls.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
	"github.com/lizardjazz1/morning-quiz-bot/internal/logging"
	"github.com/lizardjazz1/morning-quiz-bot/internal/quiz"
	"github.com/lizardjazz1/morning-quiz-bot/internal/telegram"
)

const topN = 10

// Engine is the quiz surface the command layer drives.
type Engine interface {
	StartSingle(ctx context.Context, chatID int64, category string) (string, error)
	StartSession(ctx context.Context, chatID, userID int64, category string) error
	ScheduleSession(ctx context.Context, chatID, userID int64, category string) (time.Time, error)
	StopSession(ctx context.Context, chatID, userID int64, isAdmin bool) error
	HandleAnswer(ctx context.Context, pollID string, player ledger.Player, optionIDs []int)
	RoomLeaderboard(chatID int64, topN int) []ledger.Ranked
	GlobalLeaderboard(topN int) []ledger.Ranked
	Stats(chatID, userID int64) (ledger.Entry, bool)
	Categories(ctx context.Context) ([]string, error)
	SetDaily(chatID int64, sched quiz.DailySchedule) (time.Time, error)
	StopDaily(chatID int64) bool
	SessionQuestions() int
}

// Messenger sends replies and answers admin checks.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// Handler routes platform updates. It implements telegram.Handler.
type Handler struct {
	engine    Engine
	messenger Messenger
	location  *time.Location
	logger    zerolog.Logger
}

var _ telegram.Handler = (*Handler)(nil)

// NewHandler creates the command handler. loc is used to render daily times.
func NewHandler(engine Engine, messenger Messenger, loc *time.Location, logger zerolog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		engine:    engine,
		messenger: messenger,
		location:  loc,
		logger:    logger.With().Str("component", "bot").Logger(),
	}
}

// HandleAnswer forwards a poll answer to the engine.
func (h *Handler) HandleAnswer(ctx context.Context, a telegram.Answer) {
	h.engine.HandleAnswer(ctx, a.PollID, ledger.Player{ID: a.User.ID, Name: a.User.DisplayName()}, a.OptionIDs)
}

// HandleCommand dispatches one chat command.
func (h *Handler) HandleCommand(ctx context.Context, cmd telegram.Command) {
	log := h.logger.With().Int64("chat_id", cmd.ChatID).Int64("user_id", cmd.User.ID).Str("command", cmd.Name).Logger()
	ctx = logging.IntoContext(ctx, log)

	switch cmd.Name {
	case "start", "help":
		h.reply(ctx, cmd.ChatID, helpText)
	case "quiz":
		h.handleQuiz(ctx, cmd)
	case "quiz10":
		h.handleSession(ctx, cmd)
	case "quiz10notify":
		h.handleSessionNotify(ctx, cmd)
	case "stopquiz":
		h.handleStop(ctx, cmd)
	case "top":
		h.reply(ctx, cmd.ChatID, ledger.FormatLeaderboard(titleRoomTop, h.engine.RoomLeaderboard(cmd.ChatID, topN)))
	case "globaltop":
		h.reply(ctx, cmd.ChatID, ledger.FormatLeaderboard(titleGlobalTop, h.engine.GlobalLeaderboard(topN)))
	case "mystats":
		h.handleStats(ctx, cmd)
	case "categories":
		h.handleCategories(ctx, cmd)
	case "setdaily":
		h.handleSetDaily(ctx, cmd)
	case "stopdaily":
		h.handleStopDaily(ctx, cmd)
	default:
		log.Debug().Msg("unknown command")
	}
}

func (h *Handler) handleQuiz(ctx context.Context, cmd telegram.Command) {
	if _, err := h.engine.StartSingle(ctx, cmd.ChatID, cmd.Args); err != nil {
		h.replyError(ctx, cmd.ChatID, err)
	}
}

func (h *Handler) handleSession(ctx context.Context, cmd telegram.Command) {
	if err := h.engine.StartSession(ctx, cmd.ChatID, cmd.User.ID, cmd.Args); err != nil {
		h.replyError(ctx, cmd.ChatID, err)
	}
}

func (h *Handler) handleSessionNotify(ctx context.Context, cmd telegram.Command) {
	if _, err := h.engine.ScheduleSession(ctx, cmd.ChatID, cmd.User.ID, cmd.Args); err != nil {
		h.replyError(ctx, cmd.ChatID, err)
	}
}

// handleStop asks for admin rights only when the caller is not the initiator.
func (h *Handler) handleStop(ctx context.Context, cmd telegram.Command) {
	err := h.engine.StopSession(ctx, cmd.ChatID, cmd.User.ID, cmd.Private)
	if quiz.IsRejected(err, quiz.ReasonNotAllowed) && h.isAdmin(ctx, cmd) {
		err = h.engine.StopSession(ctx, cmd.ChatID, cmd.User.ID, true)
	}
	if err != nil {
		h.replyError(ctx, cmd.ChatID, err)
	}
}

func (h *Handler) handleStats(ctx context.Context, cmd telegram.Command) {
	entry, ok := h.engine.Stats(cmd.ChatID, cmd.User.ID)
	if !ok {
		h.reply(ctx, cmd.ChatID, noStatsText)
		return
	}
	h.reply(ctx, cmd.ChatID, statsText(cmd.User.DisplayName(), entry))
}

func (h *Handler) handleCategories(ctx context.Context, cmd telegram.Command) {
	cats, err := h.engine.Categories(ctx)
	if err != nil {
		h.replyError(ctx, cmd.ChatID, err)
		return
	}
	h.reply(ctx, cmd.ChatID, categoriesText(cats))
}

func (h *Handler) handleSetDaily(ctx context.Context, cmd telegram.Command) {
	if !h.isAdmin(ctx, cmd) {
		h.reply(ctx, cmd.ChatID, adminOnlyText)
		return
	}
	sched, err := ParseDaily(cmd.Args)
	if err != nil {
		h.reply(ctx, cmd.ChatID, setDailyUsageText)
		return
	}
	next, err := h.engine.SetDaily(cmd.ChatID, sched)
	if err != nil {
		h.replyError(ctx, cmd.ChatID, err)
		return
	}
	h.reply(ctx, cmd.ChatID, dailySetText(sched, next.In(h.location)))
}

func (h *Handler) handleStopDaily(ctx context.Context, cmd telegram.Command) {
	if !h.isAdmin(ctx, cmd) {
		h.reply(ctx, cmd.ChatID, adminOnlyText)
		return
	}
	if h.engine.StopDaily(cmd.ChatID) {
		h.reply(ctx, cmd.ChatID, dailyStoppedText)
		return
	}
	h.reply(ctx, cmd.ChatID, noDailyText)
}

// isAdmin treats private chats as admin. Lookup failures deny.
func (h *Handler) isAdmin(ctx context.Context, cmd telegram.Command) bool {
	if cmd.Private {
		return true
	}
	ok, err := h.messenger.IsAdmin(ctx, cmd.ChatID, cmd.User.ID)
	if err != nil {
		log := logging.FromContext(ctx)
		log.Warn().Err(err).Msg("admin check failed")
		return false
	}
	return ok
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.messenger.SendMessage(ctx, chatID, text); err != nil {
		log := logging.FromContext(ctx)
		log.Warn().Err(err).Msg("reply not sent")
	}
}

// replyError shows a rejection's own message and a generic one otherwise.
func (h *Handler) replyError(ctx context.Context, chatID int64, err error) {
	log := logging.FromContext(ctx)
	var rej *quiz.Rejection
	if errors.As(err, &rej) {
		if rej.Err != nil {
			log.Error().Err(rej.Err).Str("reason", string(rej.Reason)).Msg("command failed")
		}
		h.reply(ctx, chatID, rej.Message)
		return
	}
	log.Error().Err(err).Msg("command failed")
	h.reply(ctx, chatID, genericErrorText)
}
