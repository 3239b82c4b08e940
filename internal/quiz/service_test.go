package quiz

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
)

const chat = int64(-100)

var ctx = context.Background()

func TestStartSessionRejectsWhileRunning(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 5, ""), Options{OpenPeriod: time.Hour})

	require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))
	err := h.svc.StartSession(ctx, chat, 2, "")
	assert.True(t, IsRejected(err, ReasonAlreadyRunning))

	_, err = h.svc.ScheduleSession(ctx, chat, 2, "")
	assert.True(t, IsRejected(err, ReasonAlreadyRunning))
	assert.Equal(t, 1, h.platform.pollCount())
}

func TestStartSessionEmptyCategory(t *testing.T) {
	h := newHarness(t, makeQuestions("Science", 5, ""), Options{OpenPeriod: time.Hour})

	err := h.svc.StartSession(ctx, chat, 1, "History")
	require.True(t, IsRejected(err, ReasonNoQuestions))
	assert.Contains(t, err.(*Rejection).Message, "History")

	_, ok := h.svc.ActiveSession(chat)
	assert.False(t, ok)
	_, ok = h.svc.PendingSession(chat)
	assert.False(t, ok)
	assert.Zero(t, h.platform.pollCount())
}

func TestStartSessionAnnouncesAndSendsFirstQuestion(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 2, ""), Options{OpenPeriod: 30 * time.Second, SessionQuestions: 10})

	require.NoError(t, h.svc.StartSession(ctx, chat, 1, "history"))
	assert.Equal(t, []string{"🚀 Викторина из 2 вопросов начинается! На каждый вопрос 30 сек."}, h.platform.texts())
	require.Equal(t, 1, h.platform.pollCount())
	assert.True(t, strings.HasPrefix(h.platform.polls[0].Question, "Вопрос 1/2\n(Кат: History)\n"))

	info, ok := h.svc.ActiveSession(chat)
	require.True(t, ok)
	assert.Equal(t, 2, info.Total)
	assert.Equal(t, 1, info.Asked)
}

func TestEarlyAdvanceCancelsTimeout(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 3, ""), Options{OpenPeriod: time.Hour})
	require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))

	first := h.platform.pollID(0)
	_, pending := h.jobs.Pending(pollTimeoutJob(chat, first))
	require.True(t, pending)

	h.answer(0, 42, true)

	assert.Equal(t, 2, h.platform.pollCount())
	_, pending = h.jobs.Pending(pollTimeoutJob(chat, first))
	assert.False(t, pending)
	_, closing := h.jobs.Pending(pollCloseJob(chat, first))
	assert.True(t, closing)

	// More answers to the same poll never advance again.
	h.answer(0, 43, false)
	h.answer(0, 42, true)
	assert.Equal(t, 2, h.platform.pollCount())

	e, _ := h.ledger.Score(chat, 42)
	assert.Equal(t, 1, e.Score)
}

func TestConcurrentAnswersAdvanceOnce(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 3, ""), Options{OpenPeriod: time.Hour})
	require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))

	var wg sync.WaitGroup
	for u := int64(1); u <= 25; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			h.answer(0, u, u%2 == 0)
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 2, h.platform.pollCount())
}

func TestTimeoutAndEarlyAnswerDispatchNextOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, makeQuestions("History", 3, "because"), Options{OpenPeriod: 5 * time.Millisecond})
		require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))
		time.Sleep(4 * time.Millisecond)
		h.answer(0, 7, true)

		assert.Eventually(t, func() bool {
			_, running := h.svc.ActiveSession(chat)
			return !running
		}, 2*time.Second, 2*time.Millisecond)

		assert.Equal(t, 3, h.platform.pollCount())
		for q := 1; q <= 3; q++ {
			marker := "(вопрос " + string(rune('0'+q)) + ")"
			assert.Equal(t, 1, h.platform.countText(func(s string) bool { return strings.Contains(s, marker) }), "solution for question %d", q)
		}
	}
}

func TestSessionRunsToCompletionOnTimeouts(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 3, ""), Options{OpenPeriod: 10 * time.Millisecond})
	require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))

	assert.Eventually(t, func() bool {
		_, running := h.svc.ActiveSession(chat)
		return !running
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, h.platform.pollCount())
	texts := h.platform.texts()
	assert.Equal(t, "🏁 Викторина завершена!\n\nНикто не ответил на вопросы.", texts[len(texts)-1])
	assert.Zero(t, h.polls.Len())
}

func TestLastQuestionWaitsForTimeout(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 1, ""), Options{OpenPeriod: 40 * time.Millisecond})
	require.NoError(t, h.svc.StartSession(ctx, chat, 5, ""))

	h.answer(0, 5, true)
	_, running := h.svc.ActiveSession(chat)
	assert.True(t, running)

	assert.Eventually(t, func() bool {
		_, running := h.svc.ActiveSession(chat)
		return !running
	}, 2*time.Second, 5*time.Millisecond)

	texts := h.platform.texts()
	assert.Equal(t, "🏁 Викторина завершена!\n\n🥇 user5 - 1 из 1 (всего: 1)", texts[len(texts)-1])
}

func TestStopSession(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 3, ""), Options{OpenPeriod: time.Hour})

	assert.True(t, IsRejected(h.svc.StopSession(ctx, chat, 1, false), ReasonNothingToStop))

	require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))
	h.answer(0, 2, true)

	assert.True(t, IsRejected(h.svc.StopSession(ctx, chat, 99, false), ReasonNotAllowed))
	require.NoError(t, h.svc.StopSession(ctx, chat, 1, false))

	_, running := h.svc.ActiveSession(chat)
	assert.False(t, running)
	assert.Zero(t, h.polls.Len())
	assert.Zero(t, h.jobs.Len())
	// Message ids: announce 1, first poll 2, second poll 3. The answered first
	// poll was still open and closes with the session.
	assert.Equal(t, []int{3, 2}, h.platform.stopped)

	texts := h.platform.texts()
	assert.Equal(t, "📝 Викторина остановлена. Результаты:\n\n🥇 user2 - 1 из 3 (всего: 1)", texts[len(texts)-1])

	// Answers after the stop are ignored.
	h.answer(1, 3, true)
	_, ok := h.ledger.Score(chat, 3)
	assert.False(t, ok)

	assert.True(t, IsRejected(h.svc.StopSession(ctx, chat, 1, true), ReasonNothingToStop))
}

func TestStopSendsSolutionOfAnsweredPoll(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 3, "Because."), Options{OpenPeriod: time.Hour})
	require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))
	h.answer(0, 2, true)
	require.Equal(t, 2, h.platform.pollCount())

	require.NoError(t, h.svc.StopSession(ctx, chat, 1, false))

	isSolution := func(ref string) func(string) bool {
		return func(text string) bool {
			return strings.HasPrefix(text, "💡 Пояснение") && strings.Contains(text, ref)
		}
	}
	assert.Equal(t, 1, h.platform.countText(isSolution("(вопрос 1)")))
	assert.Zero(t, h.platform.countText(isSolution("(вопрос 2)")))
	assert.Zero(t, h.polls.Len())
	assert.Zero(t, h.jobs.Len())
}

func TestAdminCanStopAnySession(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 3, ""), Options{OpenPeriod: time.Hour})
	require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))
	require.NoError(t, h.svc.StopSession(ctx, chat, 2, true))
}

func TestDispatchFailureAbortsWithPartialResults(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 3, ""), Options{OpenPeriod: time.Hour})
	h.platform.pollErr = func(n int) error {
		if n >= 1 {
			return &tgbotapi.Error{Code: 400, Message: "Bad Request: something odd"}
		}
		return nil
	}
	require.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))
	h.answer(0, 8, true)

	_, running := h.svc.ActiveSession(chat)
	assert.False(t, running)
	texts := h.platform.texts()
	assert.Equal(t, "⚠️ Викторина завершена с ошибкой. Промежуточные результаты:\n\n🥇 user8 - 1 из 3 (всего: 1)", texts[len(texts)-1])
}

func TestFirstDispatchFailureRejectsStart(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 3, ""), Options{OpenPeriod: time.Hour})
	h.platform.pollErr = func(int) error { return &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was kicked"} }

	err := h.svc.StartSession(ctx, chat, 1, "")
	assert.True(t, IsRejected(err, ReasonDispatchFailed))
	_, running := h.svc.ActiveSession(chat)
	assert.False(t, running)
	// Only the announcement; the caller replies with the rejection.
	assert.Len(t, h.platform.texts(), 1)
	assert.True(t, strings.HasPrefix(h.platform.texts()[0], "🚀"))

	h.platform.pollErr = nil
	assert.NoError(t, h.svc.StartSession(ctx, chat, 1, ""))
}

func TestHandleAnswerScoresOnce(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 1, ""), Options{OpenPeriod: time.Hour})
	pollID, err := h.svc.StartSingle(ctx, chat, "")
	require.NoError(t, err)

	p := ledger.Player{ID: 9, Name: "Nine"}
	for i := 0; i < 3; i++ {
		h.svc.HandleAnswer(ctx, pollID, p, []int{h.platform.correctOption(0)})
	}
	e, ok := h.ledger.Score(chat, 9)
	require.True(t, ok)
	assert.Equal(t, 1, e.Score)
	assert.Equal(t, []string{pollID}, e.AnsweredPolls)

	// Unknown polls and retracted votes are ignored.
	h.svc.HandleAnswer(ctx, "nope", p, []int{0})
	h.svc.HandleAnswer(ctx, pollID, ledger.Player{ID: 10}, nil)
	_, ok = h.ledger.Score(chat, 10)
	assert.False(t, ok)
}

func TestMultipleSelectionIsWrong(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 1, ""), Options{OpenPeriod: time.Hour})
	pollID, err := h.svc.StartSingle(ctx, chat, "")
	require.NoError(t, err)

	correct := h.platform.correctOption(0)
	h.svc.HandleAnswer(ctx, pollID, ledger.Player{ID: 1}, []int{correct, (correct + 1) % 3})
	e, _ := h.ledger.Score(chat, 1)
	assert.Equal(t, -1, e.Score)
}

func TestSingleQuizTimeoutSendsSolution(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 1, "Потому что."), Options{OpenPeriod: 10 * time.Millisecond})
	pollID, err := h.svc.StartSingle(ctx, chat, "")
	require.NoError(t, err)

	rec, ok := h.polls.Get(pollID)
	require.True(t, ok)
	require.NotZero(t, rec.PlaceholderMessageID)

	assert.Eventually(t, func() bool { return h.polls.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"💡 Пояснение к вопросу «History question 1...»:\nПотому что."}, h.platform.editTexts())
}

func TestSolutionFallsBackToNewMessage(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 1, "Объяснение"), Options{OpenPeriod: 10 * time.Millisecond})
	h.platform.editErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}
	_, err := h.svc.StartSingle(ctx, chat, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return h.platform.countText(func(s string) bool { return strings.HasPrefix(s, "💡 Пояснение") }) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMilestoneMessageSent(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 1, ""), Options{OpenPeriod: time.Hour})
	h.ledger.Restore(ledger.Snapshot{Entries: []ledger.Entry{{ChatID: chat, UserID: 3, Name: "X", Score: 9}}})

	pollID, err := h.svc.StartSingle(ctx, chat, "")
	require.NoError(t, err)
	h.svc.HandleAnswer(ctx, pollID, ledger.Player{ID: 3, Name: "X"}, []int{h.platform.correctOption(0)})

	assert.Contains(t, h.platform.texts(), "X, 🎉 Поздравляю с первыми 10 очками! Так держать!")
}

func TestStartSingleNoQuestions(t *testing.T) {
	h := newHarness(t, nil, Options{OpenPeriod: time.Hour})
	_, err := h.svc.StartSingle(ctx, chat, "")
	assert.True(t, IsRejected(err, ReasonNoQuestions))
}

func TestLeaderboards(t *testing.T) {
	h := newHarness(t, makeQuestions("History", 1, ""), Options{OpenPeriod: time.Hour})
	h.ledger.RecordAnswer(1, ledger.Player{ID: 1, Name: "A"}, "x", true)
	h.ledger.RecordAnswer(2, ledger.Player{ID: 1, Name: "A"}, "y", true)
	h.ledger.RecordAnswer(2, ledger.Player{ID: 2, Name: "B"}, "y", true)

	assert.Equal(t, []ledger.Ranked{{UserID: 1, Name: "A", Score: 1}, {UserID: 2, Name: "B", Score: 1}}, h.svc.RoomLeaderboard(2, 10))
	assert.Equal(t, []ledger.Ranked{{UserID: 1, Name: "A", Score: 2}}, h.svc.GlobalLeaderboard(1))
}
