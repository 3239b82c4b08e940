package quiz

import (
	"fmt"
	"math"
	"time"

	"github.com/lizardjazz1/morning-quiz-bot/internal/dispatch"
	"github.com/lizardjazz1/morning-quiz-bot/internal/poll"
)

const (
	maxMessageLen = 4096

	prefixSingle    = "❓ Вопрос"
	prefixRecurring = "☀️ Вопрос дня"

	titleCompleted = "🏁 Викторина завершена!"
	titleStopped   = "📝 Викторина остановлена. Результаты:"
	titleFailed    = "⚠️ Викторина завершена с ошибкой. Промежуточные результаты:"

	pendingCancelledText = "Запланированная викторина отменена."
)

func sessionPrefix(index, total int) string {
	return fmt.Sprintf("Вопрос %d/%d", index+1, total)
}

func announceText(questions int, openPeriod time.Duration) string {
	return fmt.Sprintf("🚀 Викторина из %d вопросов начинается! На каждый вопрос %d сек.", questions, int(openPeriod/time.Second))
}

func pendingText(delay time.Duration) string {
	minutes := int(math.Ceil(delay.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("⏳ Викторина начнётся через %d мин.", minutes)
}

// solutionText renders the explanation that replaces the placeholder.
func solutionText(rec poll.Record) string {
	ref := "«" + string(truncateRunes(rec.Question.Text, 30)) + "...»"
	if rec.Kind == poll.KindSession {
		ref += fmt.Sprintf(" (вопрос %d)", rec.SessionIndex+1)
	}
	return dispatch.Truncate(fmt.Sprintf("💡 Пояснение к вопросу %s:\n%s", ref, rec.Question.Solution), maxMessageLen)
}

func truncateRunes(s string, n int) []rune {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return r
}
