package quiz

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lizardjazz1/morning-quiz-bot/internal/dispatch"
	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
	"github.com/lizardjazz1/morning-quiz-bot/internal/poll"
	"github.com/lizardjazz1/morning-quiz-bot/internal/question"
	"github.com/lizardjazz1/morning-quiz-bot/internal/scheduler"
	"github.com/lizardjazz1/morning-quiz-bot/internal/telegram"
)

type sentMessage struct {
	ChatID int64
	ID     int
	Text   string
}

type fakePlatform struct {
	mu        sync.Mutex
	polls     []telegram.PollRequest
	pollIDs   []string
	messages  []sentMessage
	edits     []sentMessage
	stopped   []int
	pollErr   func(n int) error
	editErr   error
	messageID int
}

func (f *fakePlatform) SendPoll(_ context.Context, req telegram.PollRequest) (telegram.SentPoll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		if err := f.pollErr(len(f.polls)); err != nil {
			return telegram.SentPoll{}, err
		}
	}
	f.polls = append(f.polls, req)
	f.messageID++
	id := fmt.Sprintf("p%d", len(f.polls))
	f.pollIDs = append(f.pollIDs, id)
	return telegram.SentPoll{PollID: id, MessageID: f.messageID}, nil
}

func (f *fakePlatform) SendMessage(_ context.Context, chatID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageID++
	f.messages = append(f.messages, sentMessage{ChatID: chatID, ID: f.messageID, Text: text})
	return f.messageID, nil
}

func (f *fakePlatform) EditMessage(_ context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, sentMessage{ChatID: chatID, ID: messageID, Text: text})
	return nil
}

func (f *fakePlatform) StopPoll(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, messageID)
	return nil
}

func (f *fakePlatform) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polls)
}

func (f *fakePlatform) pollID(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollIDs[i]
}

func (f *fakePlatform) correctOption(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[i].CorrectOption
}

func (f *fakePlatform) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakePlatform) editTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.edits))
	for _, m := range f.edits {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakePlatform) countText(pred func(string) bool) int {
	n := 0
	for _, t := range append(f.texts(), f.editTexts()...) {
		if pred(t) {
			n++
		}
	}
	return n
}

type harness struct {
	svc      *Service
	platform *fakePlatform
	polls    *poll.Table
	ledger   *ledger.Ledger
	jobs     *scheduler.Registry
}

func makeQuestions(category string, n int, solution string) []question.Question {
	out := make([]question.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, question.Question{
			Text:         fmt.Sprintf("%s question %d", category, i+1),
			Options:      []string{"right", "wrong", "also wrong"},
			CorrectIndex: 0,
			Category:     category,
			Solution:     solution,
		})
	}
	return out
}

func newHarness(t *testing.T, qs []question.Question, opts Options) *harness {
	t.Helper()
	logger := zerolog.Nop()
	platform := &fakePlatform{}
	table := poll.NewTable()
	jobs := scheduler.NewRegistry(logger)
	t.Cleanup(jobs.Stop)

	d := dispatch.New(platform, table, dispatch.Options{
		Retry: dispatch.RetryPolicy{Attempts: 1, BaseDelay: time.Millisecond},
	}, logger)
	l := ledger.New(nil)
	if opts.SessionQuestions == 0 {
		opts.SessionQuestions = 3
	}
	svc := NewService(platform, question.NewMemoryPool(qs), d, table, l, jobs, opts, logger)
	return &harness{svc: svc, platform: platform, polls: table, ledger: l, jobs: jobs}
}

// answer submits userID's choice for the i-th dispatched poll.
func (h *harness) answer(i int, userID int64, correct bool) {
	opt := h.platform.correctOption(i)
	if !correct {
		opt = (opt + 1) % 3
	}
	h.svc.HandleAnswer(context.Background(), h.platform.pollID(i), ledger.Player{ID: userID, Name: fmt.Sprintf("user%d", userID)}, []int{opt})
}
