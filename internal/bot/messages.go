package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
	"github.com/lizardjazz1/morning-quiz-bot/internal/quiz"
)

const (
	titleRoomTop   = "🏆 Топ игроков чата:"
	titleGlobalTop = "🌍 Глобальный топ игроков:"

	genericErrorText  = "Произошла ошибка. Попробуйте позже."
	adminOnlyText     = "Эта команда доступна только администраторам чата."
	noStatsText       = "Вы ещё не отвечали на вопросы в этом чате."
	setDailyUsageText = "Использование: /setdaily ЧЧ:ММ [категория], например /setdaily 08:30 История"
	dailyStoppedText  = "Ежедневный вопрос отключён."
	noDailyText       = "Ежедневный вопрос не был настроен."
	noCategoriesText  = "Категории пока не загружены."

	helpText = `Привет! Я бот для викторин.

/quiz [категория] - один вопрос
/quiz10 [категория] - викторина из нескольких вопросов
/quiz10notify [категория] - викторина с предупреждением
/stopquiz - остановить викторину
/top - рейтинг чата
/globaltop - общий рейтинг
/mystats - ваш счёт
/categories - список категорий
/setdaily ЧЧ:ММ [категория] - ежедневный вопрос (админы)
/stopdaily - отключить ежедневный вопрос (админы)`
)

var errBadDailyTime = errors.New("expected HH:MM")

// ParseDaily reads "HH:MM [category]".
func ParseDaily(args string) (quiz.DailySchedule, error) {
	clock, category, _ := strings.Cut(strings.TrimSpace(args), " ")
	hh, mm, ok := strings.Cut(clock, ":")
	if !ok {
		return quiz.DailySchedule{}, errBadDailyTime
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return quiz.DailySchedule{}, errBadDailyTime
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || minute < 0 || minute > 59 {
		return quiz.DailySchedule{}, errBadDailyTime
	}
	return quiz.DailySchedule{Hour: hour, Minute: minute, Category: strings.TrimSpace(category)}, nil
}

func statsText(name string, e ledger.Entry) string {
	return fmt.Sprintf("📊 %s, ваш счёт в этом чате: %d %s (ответов: %d).",
		name, e.Score, ledger.Pluralize(e.Score, "очко", "очка", "очков"), len(e.AnsweredPolls))
}

func categoriesText(cats []string) string {
	if len(cats) == 0 {
		return noCategoriesText
	}
	var b strings.Builder
	b.WriteString("📚 Доступные категории:")
	for _, c := range cats {
		b.WriteString("\n• ")
		b.WriteString(c)
	}
	return b.String()
}

func dailySetText(sched quiz.DailySchedule, next time.Time) string {
	text := fmt.Sprintf("✅ Ежедневный вопрос будет приходить в %s", sched)
	if sched.Category != "" {
		text += fmt.Sprintf(" (категория «%s»)", sched.Category)
	}
	return text + fmt.Sprintf(". Следующий: %s.", next.Format("02.01 15:04"))
}
