// Package dispatch turns question records into platform quiz polls and
// registers the resulting poll records.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/lizardjazz1/morning-quiz-bot/internal/metrics"
	"github.com/lizardjazz1/morning-quiz-bot/internal/poll"
	"github.com/lizardjazz1/morning-quiz-bot/internal/question"
	"github.com/lizardjazz1/morning-quiz-bot/internal/telegram"
)

// SolutionPlaceholder is posted right after a poll whose question has a solution.
const SolutionPlaceholder = "💡"

var (
	// ErrCorrectNotFound means the correct option could not be located after
	// shuffling, typically because option text is not unique.
	ErrCorrectNotFound = errors.New("correct option not found after shuffle")
	ErrInvalidQuestion = errors.New("invalid question")
)

// Sender is the slice of the platform client the dispatcher uses.
type Sender interface {
	SendPoll(ctx context.Context, req telegram.PollRequest) (telegram.SentPoll, error)
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
}

// Request describes one poll to send. Prefix heads the poll text, e.g.
// "Вопрос 3/10".
type Request struct {
	ChatID     int64
	Question   question.Question
	Kind       poll.Kind
	Prefix     string
	IsLast     bool
	Index      int
	SessionID  string
	OpenPeriod time.Duration
}

// Options tunes the dispatcher. Zero values fall back to platform limits.
type Options struct {
	QuestionMax int
	OptionMax   int
	Retry       RetryPolicy
	Limiter     *RateLimiter
	Metrics     *metrics.Quiz
	Now         func() time.Time
	Perm        func(n int) []int
}

// Dispatcher sends polls and owns insertion into the poll table.
type Dispatcher struct {
	sender Sender
	polls  *poll.Table
	opts   Options
	logger zerolog.Logger
}

func New(sender Sender, polls *poll.Table, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.QuestionMax <= 0 {
		opts.QuestionMax = 300
	}
	if opts.OptionMax <= 0 {
		opts.OptionMax = 100
	}
	if opts.Limiter == nil {
		opts.Limiter = NewRateLimiter(0, 0)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Perm == nil {
		opts.Perm = rand.Perm
	}
	return &Dispatcher{
		sender: sender,
		polls:  polls,
		opts:   opts,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch sends the poll and stores its record. Nothing is stored when the
// send fails. The returned record already carries the placeholder id, if any.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (poll.Record, error) {
	log := d.logger.With().Int64("chat_id", req.ChatID).Str("kind", string(req.Kind)).Logger()

	if err := req.Question.Validate(); err != nil {
		d.opts.Metrics.PollSendFailures.WithLabelValues("invalid").Inc()
		return poll.Record{}, fmt.Errorf("%w: %w", ErrInvalidQuestion, err)
	}

	options, correct, err := shuffleOptions(req.Question, d.opts.Perm)
	if err != nil {
		log.Error().Err(err).Str("question", Truncate(req.Question.Text, 50)).Msg("abort dispatch")
		d.opts.Metrics.PollSendFailures.WithLabelValues("invalid").Inc()
		return poll.Record{}, err
	}
	for i, opt := range options {
		options[i] = Truncate(opt, d.opts.OptionMax)
	}

	header := BuildHeader(req.Prefix, req.Question.Category, req.Question.Text, d.opts.QuestionMax)
	pollReq := telegram.PollRequest{
		ChatID:        req.ChatID,
		Question:      header,
		Options:       options,
		CorrectOption: correct,
		OpenPeriod:    req.OpenPeriod,
	}

	sent, err := doWithRetry(ctx, d.opts.Retry, func(ctx context.Context) (telegram.SentPoll, error) {
		if err := d.opts.Limiter.Wait(ctx, req.ChatID); err != nil {
			return telegram.SentPoll{}, err
		}
		sent, err := d.sender.SendPoll(ctx, pollReq)
		if err != nil && telegram.IsTransient(err) {
			log.Warn().Err(err).Msg("poll send failed, retrying")
		}
		return sent, err
	})
	if err != nil {
		reason := "transient"
		if telegram.IsPermanent(err) {
			reason = "permanent"
		} else if !telegram.IsTransient(err) {
			reason = "rejected"
		}
		d.opts.Metrics.PollSendFailures.WithLabelValues(reason).Inc()
		log.Error().Err(err).Str("reason", reason).Msg("poll dispatch failed")
		return poll.Record{}, fmt.Errorf("dispatch poll: %w", err)
	}

	rec := poll.Record{
		PollID:        sent.PollID,
		ChatID:        req.ChatID,
		MessageID:     sent.MessageID,
		CorrectOption: correct,
		Kind:          req.Kind,
		Question:      req.Question.Clone(),
		IsLast:        req.IsLast,
		SessionIndex:  req.Index,
		SessionID:     req.SessionID,
		OpenedAt:      d.opts.Now(),
	}
	d.polls.Put(rec)
	d.opts.Metrics.PollsSent.WithLabelValues(string(req.Kind)).Inc()
	log.Info().Str("poll_id", rec.PollID).Bool("last", rec.IsLast).Msg("poll sent")

	if req.Question.HasSolution() {
		msgID, err := d.sendPlaceholder(ctx, req.ChatID)
		if err != nil {
			log.Warn().Err(err).Str("poll_id", rec.PollID).Msg("solution placeholder not sent")
		} else if d.polls.SetPlaceholder(rec.PollID, msgID) {
			rec.PlaceholderMessageID = msgID
		}
	}
	return rec, nil
}

func (d *Dispatcher) sendPlaceholder(ctx context.Context, chatID int64) (int, error) {
	if err := d.opts.Limiter.Wait(ctx, chatID); err != nil {
		return 0, err
	}
	return d.sender.SendMessage(ctx, chatID, SolutionPlaceholder)
}

// shuffleOptions permutes a copy of the options and relocates the correct
// answer by its text.
func shuffleOptions(q question.Question, perm func(int) []int) ([]string, int, error) {
	want := q.CorrectText()
	order := perm(len(q.Options))
	options := make([]string, len(q.Options))
	for i, idx := range order {
		options[i] = q.Options[idx]
	}

	found := -1
	for i, opt := range options {
		if opt != want {
			continue
		}
		if found != -1 {
			return nil, 0, fmt.Errorf("%w: %q appears twice", ErrCorrectNotFound, want)
		}
		found = i
	}
	if found == -1 {
		return nil, 0, fmt.Errorf("%w: %q", ErrCorrectNotFound, want)
	}
	return options, found, nil
}
