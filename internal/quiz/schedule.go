package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lizardjazz1/morning-quiz-bot/internal/poll"
	"github.com/lizardjazz1/morning-quiz-bot/internal/telegram"
)

// pendingSession is a session announced ahead of time.
type pendingSession struct {
	job       string
	category  string
	initiator int64
	at        time.Time
}

// DailySchedule is a room's recurring question time in the service location.
type DailySchedule struct {
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Category string `json:"category,omitempty"`
}

func (d DailySchedule) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// ScheduleSession announces a session that starts after the announce delay.
func (s *Service) ScheduleSession(ctx context.Context, chatID, userID int64, category string) (time.Time, error) {
	qs, err := s.pool.Questions(ctx, category, 1)
	if err != nil || len(qs) == 0 {
		return time.Time{}, errNoQuestions(category)
	}

	delay := s.opts.AnnounceDelay
	p := &pendingSession{
		job:       sessionStartJob(chatID),
		category:  category,
		initiator: userID,
		at:        s.opts.Now().Add(delay),
	}

	s.mu.Lock()
	if s.sessions[chatID] != nil || s.pending[chatID] != nil {
		s.mu.Unlock()
		return time.Time{}, errAlreadyRunning()
	}
	s.pending[chatID] = p
	s.mu.Unlock()

	s.jobs.ScheduleUnique(p.job, delay, func(ctx context.Context) {
		s.startPending(ctx, chatID, p)
	})
	s.logger.Info().Int64("chat_id", chatID).Time("start_at", p.at).Msg("session scheduled")

	if _, err := s.platform.SendMessage(ctx, chatID, pendingText(delay)); err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("pending notice not sent")
	}
	return p.at, nil
}

// PendingSession reports when a scheduled session will start.
func (s *Service) PendingSession(chatID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending[chatID]
	if p == nil {
		return time.Time{}, false
	}
	return p.at, true
}

func (s *Service) startPending(ctx context.Context, chatID int64, p *pendingSession) {
	s.mu.Lock()
	if s.pending[chatID] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, chatID)
	s.mu.Unlock()

	if err := s.StartSession(ctx, chatID, p.initiator, p.category); err != nil {
		s.notifyRejection(ctx, chatID, err)
	}
}

// SetDaily schedules a recurring daily question and returns the first run.
func (s *Service) SetDaily(chatID int64, sched DailySchedule) (time.Time, error) {
	if sched.Hour < 0 || sched.Hour > 23 || sched.Minute < 0 || sched.Minute > 59 {
		return time.Time{}, fmt.Errorf("invalid daily time %02d:%02d", sched.Hour, sched.Minute)
	}
	s.mu.Lock()
	s.daily[chatID] = sched
	s.mu.Unlock()

	next := s.armDaily(chatID, sched)
	s.logger.Info().Int64("chat_id", chatID).Str("at", sched.String()).Time("next", next).Msg("daily question scheduled")
	return next, nil
}

// StopDaily cancels the room's recurring question.
func (s *Service) StopDaily(chatID int64) bool {
	s.mu.Lock()
	_, ok := s.daily[chatID]
	delete(s.daily, chatID)
	s.mu.Unlock()

	cancelled := s.jobs.Cancel(dailyJob(chatID))
	return ok || cancelled
}

// Daily returns the room's recurring schedule.
func (s *Service) Daily(chatID int64) (DailySchedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.daily[chatID]
	return d, ok
}

func (s *Service) armDaily(chatID int64, sched DailySchedule) time.Time {
	now := s.opts.Now()
	next := nextDailyRun(now, sched.Hour, sched.Minute, s.opts.Location)
	s.jobs.ScheduleUnique(dailyJob(chatID), next.Sub(now), func(ctx context.Context) {
		s.runDaily(ctx, chatID)
	})
	return next
}

func (s *Service) runDaily(ctx context.Context, chatID int64) {
	sched, ok := s.Daily(chatID)
	if !ok {
		return
	}
	log := s.logger.With().Int64("chat_id", chatID).Logger()

	_, err := s.sendStandalone(ctx, chatID, sched.Category, poll.KindRecurring, prefixRecurring)
	if err != nil {
		if telegram.IsPermanent(err) {
			// sendStandalone already dropped the schedule.
			return
		}
		log.Warn().Err(err).Msg("daily question failed")
	}

	// The schedule may have been replaced or removed while sending.
	if current, ok := s.Daily(chatID); ok && current == sched {
		s.armDaily(chatID, sched)
	}
}

// disableDailyIfGone turns the room's recurring question off when err says
// the chat cannot be reached any more.
func (s *Service) disableDailyIfGone(chatID int64, err error) {
	if !telegram.IsPermanent(err) {
		return
	}
	if s.StopDaily(chatID) {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("chat unreachable, daily question disabled")
	}
}

// nextDailyRun is the first hh:mm in loc strictly after now.
func nextDailyRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Service) notifyRejection(ctx context.Context, chatID int64, err error) {
	msg := "Не удалось запустить викторину."
	var rej *Rejection
	if errors.As(err, &rej) {
		msg = rej.Message
	}
	if _, sendErr := s.platform.SendMessage(ctx, chatID, msg); sendErr != nil {
		s.logger.Warn().Err(sendErr).Int64("chat_id", chatID).Msg("rejection notice not sent")
	}
}
