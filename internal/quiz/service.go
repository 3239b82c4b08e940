// Package quiz is the quiz engine: single polls, timed multi-question
// sessions, answer intake and recurring daily questions.
package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lizardjazz1/morning-quiz-bot/internal/dispatch"
	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
	"github.com/lizardjazz1/morning-quiz-bot/internal/metrics"
	"github.com/lizardjazz1/morning-quiz-bot/internal/poll"
	"github.com/lizardjazz1/morning-quiz-bot/internal/question"
	"github.com/lizardjazz1/morning-quiz-bot/internal/scheduler"
)

// Platform is the chat client surface the engine needs.
type Platform interface {
	dispatch.Sender
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error
	StopPoll(ctx context.Context, chatID int64, messageID int) error
}

// Options configures gameplay timing.
type Options struct {
	OpenPeriod       time.Duration
	GracePeriod      time.Duration
	SessionQuestions int
	AnnounceDelay    time.Duration
	Location         *time.Location
	Metrics          *metrics.Quiz
	Now              func() time.Time
}

// Service wires the dispatcher, ledger and scheduler together. All exported
// methods are safe for concurrent use.
type Service struct {
	platform   Platform
	pool       question.Pool
	dispatcher *dispatch.Dispatcher
	polls      *poll.Table
	ledger     *ledger.Ledger
	jobs       *scheduler.Registry
	opts       Options
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*session
	pending  map[int64]*pendingSession
	daily    map[int64]DailySchedule
}

func NewService(
	platform Platform,
	pool question.Pool,
	dispatcher *dispatch.Dispatcher,
	polls *poll.Table,
	scores *ledger.Ledger,
	jobs *scheduler.Registry,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.OpenPeriod <= 0 {
		opts.OpenPeriod = 25 * time.Second
	}
	if opts.GracePeriod < 0 {
		opts.GracePeriod = 0
	}
	if opts.SessionQuestions <= 0 {
		opts.SessionQuestions = 10
	}
	if opts.AnnounceDelay <= 0 {
		opts.AnnounceDelay = 2 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		platform:   platform,
		pool:       pool,
		dispatcher: dispatcher,
		polls:      polls,
		ledger:     scores,
		jobs:       jobs,
		opts:       opts,
		logger:     logger.With().Str("component", "quiz").Logger(),
		sessions:   make(map[int64]*session),
		pending:    make(map[int64]*pendingSession),
		daily:      make(map[int64]DailySchedule),
	}
}

// SessionQuestions is the configured number of questions per session.
func (s *Service) SessionQuestions() int {
	return s.opts.SessionQuestions
}

func (s *Service) timeoutDelay() time.Duration {
	return s.opts.OpenPeriod + s.opts.GracePeriod
}

func pollTimeoutJob(chatID int64, pollID string) string {
	return fmt.Sprintf("poll_timeout:%d:%s", chatID, pollID)
}

func pollCloseJob(chatID int64, pollID string) string {
	return fmt.Sprintf("poll_close:%d:%s", chatID, pollID)
}

func sessionStartJob(chatID int64) string {
	return fmt.Sprintf("session_start:%d", chatID)
}

func dailyJob(chatID int64) string {
	return fmt.Sprintf("daily:%d", chatID)
}

// StartSingle sends one standalone question and returns its poll id.
func (s *Service) StartSingle(ctx context.Context, chatID int64, category string) (string, error) {
	rec, err := s.sendStandalone(ctx, chatID, category, poll.KindSingle, prefixSingle)
	if err != nil {
		return "", err
	}
	return rec.PollID, nil
}

func (s *Service) sendStandalone(ctx context.Context, chatID int64, category string, kind poll.Kind, prefix string) (poll.Record, error) {
	qs, err := s.pool.Questions(ctx, category, 1)
	if err != nil {
		return poll.Record{}, fmt.Errorf("load questions: %w", err)
	}
	if len(qs) == 0 {
		return poll.Record{}, errNoQuestions(category)
	}

	rec, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		ChatID:     chatID,
		Question:   qs[0],
		Kind:       kind,
		Prefix:     prefix,
		IsLast:     true,
		OpenPeriod: s.opts.OpenPeriod,
	})
	if err != nil {
		s.disableDailyIfGone(chatID, err)
		return poll.Record{}, errDispatchFailed(err)
	}

	job := pollTimeoutJob(chatID, rec.PollID)
	s.polls.SetTimeoutJob(rec.PollID, job)
	pollID := rec.PollID
	s.jobs.ScheduleUnique(job, s.timeoutDelay(), func(ctx context.Context) {
		s.closePoll(ctx, pollID)
	})
	return rec, nil
}

// HandleAnswer is the entry point for poll answer events.
func (s *Service) HandleAnswer(ctx context.Context, pollID string, player ledger.Player, optionIDs []int) {
	log := s.logger.With().Str("poll_id", pollID).Int64("user_id", player.ID).Logger()

	rec, ok := s.polls.Get(pollID)
	if !ok {
		log.Debug().Msg("answer for unknown or closed poll")
		return
	}
	if len(optionIDs) == 0 {
		log.Debug().Msg("vote retracted, ignoring")
		return
	}

	correct := rec.IsCorrect(optionIDs)
	res := s.ledger.RecordAnswer(rec.ChatID, player, pollID, correct)
	if res.Changed {
		s.opts.Metrics.Answers.WithLabelValues(fmt.Sprint(correct)).Inc()
		log.Info().Int64("chat_id", rec.ChatID).Bool("correct", correct).Int("score", res.Score).Msg("answer scored")
	}
	if res.Milestone != "" {
		if _, err := s.platform.SendMessage(ctx, rec.ChatID, res.Milestone); err != nil {
			log.Warn().Err(err).Int64("chat_id", rec.ChatID).Msg("milestone message not sent")
		}
	}

	if rec.Kind != poll.KindSession {
		return
	}
	sess := s.sessionFor(rec.ChatID, rec.SessionID)
	if sess == nil {
		log.Debug().Int64("chat_id", rec.ChatID).Msg("answer for a session that is gone")
		return
	}
	sess.board.Record(player, pollID, correct)

	if !rec.IsLast && s.polls.MarkAdvanced(pollID) {
		s.advanceEarly(ctx, sess, pollID)
	}
}

// closePoll ends a poll whose open period is over: the solution goes out once
// and the record is dropped.
func (s *Service) closePoll(ctx context.Context, pollID string) {
	rec, ok := s.polls.Get(pollID)
	if !ok {
		s.logger.Debug().Str("poll_id", pollID).Msg("close for unknown poll")
		return
	}
	s.sendSolution(ctx, rec)
	s.polls.Delete(pollID)
}

// sendSolution edits the placeholder into the explanation, falling back to a
// new message. It runs at most once per poll.
func (s *Service) sendSolution(ctx context.Context, rec poll.Record) {
	if !rec.Question.HasSolution() || !s.polls.MarkSolutionSent(rec.PollID) {
		return
	}
	log := s.logger.With().Int64("chat_id", rec.ChatID).Str("poll_id", rec.PollID).Logger()
	text := solutionText(rec)

	if current, ok := s.polls.Get(rec.PollID); ok {
		rec.PlaceholderMessageID = current.PlaceholderMessageID
	}
	if rec.PlaceholderMessageID != 0 {
		err := s.platform.EditMessage(ctx, rec.ChatID, rec.PlaceholderMessageID, text)
		if err == nil {
			return
		}
		log.Warn().Err(err).Int("message_id", rec.PlaceholderMessageID).Msg("placeholder edit failed, sending new message")
	}
	if _, err := s.platform.SendMessage(ctx, rec.ChatID, text); err != nil {
		log.Warn().Err(err).Msg("solution not sent")
	}
}

// RoomLeaderboard ranks a room's players.
func (s *Service) RoomLeaderboard(chatID int64, topN int) []ledger.Ranked {
	return s.ledger.Leaderboard(chatID, topN)
}

// GlobalLeaderboard ranks players across all rooms.
func (s *Service) GlobalLeaderboard(topN int) []ledger.Ranked {
	return s.ledger.GlobalLeaderboard(topN)
}

// Stats returns a player's score entry in a room.
func (s *Service) Stats(chatID, userID int64) (ledger.Entry, bool) {
	return s.ledger.Score(chatID, userID)
}

// Categories lists the pool's categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.pool.Categories(ctx)
}
