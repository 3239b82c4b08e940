package quiz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lizardjazz1/morning-quiz-bot/internal/dispatch"
	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
	"github.com/lizardjazz1/morning-quiz-bot/internal/metrics"
	"github.com/lizardjazz1/morning-quiz-bot/internal/poll"
	"github.com/lizardjazz1/morning-quiz-bot/internal/question"
)

// session is one running multi-question quiz. mu serialises every state
// transition; board has its own lock so scoring never waits on a dispatch.
type session struct {
	id        string
	chatID    int64
	initiator int64
	category  string
	questions []question.Question
	board     *ledger.SessionBoard
	startedAt time.Time

	mu          sync.Mutex
	nextIndex   int
	currentPoll string
	timeoutJob  string
	finished    bool
}

// SessionInfo is a read-only view of a running session.
type SessionInfo struct {
	ID           string    `json:"id"`
	ChatID       int64     `json:"chat_id"`
	Initiator    int64     `json:"initiator"`
	Category     string    `json:"category,omitempty"`
	Total        int       `json:"total"`
	Asked        int       `json:"asked"`
	Participants int       `json:"participants"`
	StartedAt    time.Time `json:"started_at"`
}

// StartSession begins a timed session. It is rejected while another session
// is running or pending in the room.
func (s *Service) StartSession(ctx context.Context, chatID, userID int64, category string) error {
	if s.busy(chatID) {
		return errAlreadyRunning()
	}

	qs, err := s.pool.Questions(ctx, category, s.opts.SessionQuestions)
	if err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("load session questions")
		return errNoQuestions(category)
	}
	if len(qs) == 0 {
		return errNoQuestions(category)
	}

	sess := &session{
		id:        uuid.NewString(),
		chatID:    chatID,
		initiator: userID,
		category:  category,
		questions: qs,
		board:     ledger.NewSessionBoard(),
		startedAt: s.opts.Now(),
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	s.mu.Lock()
	if s.sessions[chatID] != nil || s.pending[chatID] != nil {
		s.mu.Unlock()
		return errAlreadyRunning()
	}
	s.sessions[chatID] = sess
	s.mu.Unlock()

	s.opts.Metrics.SessionsStarted.Inc()
	s.opts.Metrics.ActiveSessions.Inc()
	log := s.logger.With().Int64("chat_id", chatID).Str("session_id", sess.id).Logger()
	log.Info().Int("questions", len(qs)).Str("category", category).Msg("session started")

	if _, err := s.platform.SendMessage(ctx, chatID, announceText(len(qs), s.opts.OpenPeriod)); err != nil {
		log.Warn().Err(err).Msg("announce not sent")
	}

	if err := s.sendNextLocked(ctx, sess); err != nil {
		log.Error().Err(err).Msg("first question failed, aborting session")
		s.disableDailyIfGone(chatID, err)
		s.finishLocked(ctx, sess, metrics.OutcomeFailed)
		return errDispatchFailed(err)
	}
	return nil
}

// StopSession stops the running session or cancels a pending one. Only the
// initiator or an admin may stop.
func (s *Service) StopSession(ctx context.Context, chatID, userID int64, isAdmin bool) error {
	s.mu.Lock()
	sess := s.sessions[chatID]
	pend := s.pending[chatID]
	switch {
	case sess == nil && pend == nil:
		s.mu.Unlock()
		return errNothingToStop()
	case sess == nil:
		if !isAdmin && pend.initiator != userID {
			s.mu.Unlock()
			return errNotAllowed()
		}
		delete(s.pending, chatID)
		s.mu.Unlock()

		s.jobs.Cancel(pend.job)
		s.logger.Info().Int64("chat_id", chatID).Msg("pending session cancelled")
		if _, err := s.platform.SendMessage(ctx, chatID, pendingCancelledText); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("cancel notice not sent")
		}
		return nil
	}
	s.mu.Unlock()

	if !isAdmin && sess.initiator != userID {
		return errNotAllowed()
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.finished {
		return errNothingToStop()
	}

	if rec, ok := s.polls.Get(sess.currentPoll); ok {
		if err := s.platform.StopPoll(ctx, chatID, rec.MessageID); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Str("poll_id", rec.PollID).Msg("stop poll failed")
		}
	}
	s.logger.Info().Int64("chat_id", chatID).Int64("user_id", userID).Msg("session stopped")
	s.finishLocked(ctx, sess, metrics.OutcomeStopped)
	return nil
}

// ActiveSession describes the room's running session, if any.
func (s *Service) ActiveSession(chatID int64) (SessionInfo, bool) {
	s.mu.Lock()
	sess := s.sessions[chatID]
	s.mu.Unlock()
	if sess == nil {
		return SessionInfo{}, false
	}

	sess.mu.Lock()
	asked := sess.nextIndex
	sess.mu.Unlock()
	return SessionInfo{
		ID:           sess.id,
		ChatID:       sess.chatID,
		Initiator:    sess.initiator,
		Category:     sess.category,
		Total:        len(sess.questions),
		Asked:        asked,
		Participants: sess.board.Len(),
		StartedAt:    sess.startedAt,
	}, true
}

func (s *Service) busy(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[chatID] != nil || s.pending[chatID] != nil
}

func (s *Service) sessionFor(chatID int64, sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[chatID]
	if sess == nil || sess.id != sessionID {
		return nil
	}
	return sess
}

// sendNextLocked dispatches question nextIndex and arms its timeout.
func (s *Service) sendNextLocked(ctx context.Context, sess *session) error {
	if sess.nextIndex >= len(sess.questions) {
		return errors.New("no questions left")
	}
	idx := sess.nextIndex
	total := len(sess.questions)

	rec, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		ChatID:     sess.chatID,
		Question:   sess.questions[idx],
		Kind:       poll.KindSession,
		Prefix:     sessionPrefix(idx, total),
		IsLast:     idx == total-1,
		Index:      idx,
		SessionID:  sess.id,
		OpenPeriod: s.opts.OpenPeriod,
	})
	if err != nil {
		return err
	}

	sess.currentPoll = rec.PollID
	sess.nextIndex++
	sess.timeoutJob = pollTimeoutJob(sess.chatID, rec.PollID)
	s.polls.SetTimeoutJob(rec.PollID, sess.timeoutJob)

	pollID := rec.PollID
	s.jobs.ScheduleUnique(sess.timeoutJob, s.timeoutDelay(), func(ctx context.Context) {
		s.onSessionTimeout(ctx, sess, pollID)
	})
	return nil
}

// advanceEarly moves to the next question after the first answer to pollID.
// The caller already won the poll's advanced flag.
func (s *Service) advanceEarly(ctx context.Context, sess *session, pollID string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.finished || sess.currentPoll != pollID {
		return
	}

	// The answered poll stays open on the platform, so its timeout turns into
	// a plain close at the original deadline.
	s.jobs.Cancel(sess.timeoutJob)
	if rec, ok := s.polls.Get(pollID); ok {
		remaining := s.timeoutDelay() - s.opts.Now().Sub(rec.OpenedAt)
		if remaining < 0 {
			remaining = 0
		}
		job := pollCloseJob(sess.chatID, pollID)
		s.polls.SetTimeoutJob(pollID, job)
		s.jobs.ScheduleUnique(job, remaining, func(ctx context.Context) {
			s.closePoll(ctx, pollID)
		})
	}

	s.logger.Debug().Int64("chat_id", sess.chatID).Str("poll_id", pollID).Msg("early advance")
	if err := s.sendNextLocked(ctx, sess); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", sess.chatID).Msg("next question failed, aborting session")
		s.disableDailyIfGone(sess.chatID, err)
		s.finishLocked(ctx, sess, metrics.OutcomeFailed)
	}
}

// onSessionTimeout closes a session poll at the end of its open period and
// advances unless an answer already did.
func (s *Service) onSessionTimeout(ctx context.Context, sess *session, pollID string) {
	rec, ok := s.polls.Get(pollID)
	if !ok {
		s.logger.Debug().Str("poll_id", pollID).Msg("timeout for unknown poll")
		return
	}
	s.sendSolution(ctx, rec)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.finished || sess.currentPoll != pollID {
		s.polls.Delete(pollID)
		return
	}

	if rec.IsLast {
		s.finishLocked(ctx, sess, metrics.OutcomeCompleted)
		return
	}
	advance := s.polls.MarkAdvanced(pollID)
	s.polls.Delete(pollID)
	if !advance {
		return
	}
	if err := s.sendNextLocked(ctx, sess); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", sess.chatID).Msg("next question failed, aborting session")
		s.disableDailyIfGone(sess.chatID, err)
		s.finishLocked(ctx, sess, metrics.OutcomeFailed)
	}
}

// finishLocked posts results and tears the session down. Idempotent.
func (s *Service) finishLocked(ctx context.Context, sess *session, outcome string) {
	if sess.finished {
		return
	}
	sess.finished = true
	s.jobs.Cancel(sess.timeoutJob)

	// A completed session has only its last poll left; a stopped or failed
	// one may still have earlier polls waiting to close.
	for _, rec := range s.polls.ForChat(sess.chatID) {
		if rec.SessionID != sess.id {
			continue
		}
		if outcome == metrics.OutcomeCompleted && rec.PollID != sess.currentPoll {
			continue
		}
		if rec.TimeoutJob != "" {
			s.jobs.Cancel(rec.TimeoutJob)
		}
		// An answered poll still waiting for its deadline closes now.
		if rec.AdvancedAlready && outcome != metrics.OutcomeCompleted {
			if err := s.platform.StopPoll(ctx, rec.ChatID, rec.MessageID); err != nil {
				s.logger.Warn().Err(err).Int64("chat_id", rec.ChatID).Str("poll_id", rec.PollID).Msg("stop poll failed")
			}
			s.sendSolution(ctx, rec)
		}
		s.polls.Delete(rec.PollID)
	}

	s.mu.Lock()
	if s.sessions[sess.chatID] == sess {
		delete(s.sessions, sess.chatID)
	}
	s.mu.Unlock()

	s.opts.Metrics.SessionsFinished.WithLabelValues(outcome).Inc()
	s.opts.Metrics.ActiveSessions.Dec()
	s.logger.Info().
		Int64("chat_id", sess.chatID).
		Str("session_id", sess.id).
		Str("outcome", outcome).
		Int("asked", sess.nextIndex).
		Int("participants", sess.board.Len()).
		Msg("session finished")

	// Nothing was asked; the caller reports the rejection instead.
	if sess.nextIndex == 0 {
		return
	}

	title := titleCompleted
	switch outcome {
	case metrics.OutcomeStopped:
		title = titleStopped
	case metrics.OutcomeFailed:
		title = titleFailed
	}
	text := ledger.FormatSessionResults(title, sess.board.Results(), len(sess.questions), func(userID int64) int {
		e, _ := s.ledger.Score(sess.chatID, userID)
		return e.Score
	})
	if _, err := s.platform.SendMessage(ctx, sess.chatID, dispatch.Truncate(text, maxMessageLen)); err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", sess.chatID).Msg("results not sent")
	}
}
