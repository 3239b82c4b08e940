package ledger

import (
	"fmt"
	"strings"
)

var medals = []string{"🥇", "🥈", "🥉"}

// rankPrefix returns a medal for the top three positive scores, else "n.".
func rankPrefix(i, score int) string {
	if i < len(medals) && score > 0 {
		return medals[i]
	}
	return fmt.Sprintf("%d.", i+1)
}

// FormatLeaderboard renders ranked rows under title.
func FormatLeaderboard(title string, rows []Ranked) string {
	if len(rows) == 0 {
		return title + "\n\nПока нет данных для отображения."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for i, r := range rows {
		fmt.Fprintf(&b, "\n%s %s - %d %s", rankPrefix(i, r.Score), r.Name, r.Score, Pluralize(r.Score, "очко", "очка", "очков"))
	}
	return b.String()
}

// FormatSessionResults renders a finished session. global looks up each
// participant's room score.
func FormatSessionResults(title string, results []SessionResult, total int, global func(userID int64) int) string {
	if len(results) == 0 {
		return title + "\n\nНикто не ответил на вопросы."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n%s %s - %d из %d (всего: %d)", rankPrefix(i, r.Correct), r.Name, r.Correct, total, global(r.UserID))
	}
	return b.String()
}

// Pluralize picks the Russian plural form for n: one (1, 21), few (2-4, 22-24)
// or many.
func Pluralize(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	switch {
	case n%100 >= 11 && n%100 <= 14:
		return many
	case n%10 == 1:
		return one
	case n%10 >= 2 && n%10 <= 4:
		return few
	default:
		return many
	}
}
