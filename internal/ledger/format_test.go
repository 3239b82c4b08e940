package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatLeaderboardMedalsOnlyForPositive(t *testing.T) {
	out := FormatLeaderboard("Топ", []Ranked{
		{UserID: 1, Name: "A", Score: 3},
		{UserID: 2, Name: "B", Score: 0},
		{UserID: 3, Name: "C", Score: -1},
	})
	assert.Equal(t, "Топ\n\n🥇 A - 3 очка\n2. B - 0 очков\n3. C - -1 очко", out)
}

func TestFormatLeaderboardEmpty(t *testing.T) {
	assert.Equal(t, "Топ\n\nПока нет данных для отображения.", FormatLeaderboard("Топ", nil))
}

func TestFormatSessionResults(t *testing.T) {
	global := map[int64]int{1: 12, 2: -3}
	out := FormatSessionResults("🏁 Викторина завершена!", []SessionResult{
		{UserID: 1, Name: "Ann", Correct: 2},
		{UserID: 2, Name: "Ben", Correct: 0},
	}, 3, func(id int64) int { return global[id] })

	assert.Equal(t, "🏁 Викторина завершена!\n\n🥇 Ann - 2 из 3 (всего: 12)\n2. Ben - 0 из 3 (всего: -3)", out)
	assert.Equal(t, "T\n\nНикто не ответил на вопросы.", FormatSessionResults("T", nil, 3, nil))
}

func TestPluralize(t *testing.T) {
	forms := func(n int) string { return Pluralize(n, "очко", "очка", "очков") }
	assert.Equal(t, "очко", forms(1))
	assert.Equal(t, "очко", forms(21))
	assert.Equal(t, "очка", forms(3))
	assert.Equal(t, "очков", forms(11))
	assert.Equal(t, "очков", forms(5))
	assert.Equal(t, "очков", forms(112))
}
