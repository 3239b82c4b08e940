package ledger

import (
	"sort"
	"strings"
)

// Milestone is a one-time message fired when a user's score crosses Threshold.
// Positive thresholds fire on the way up, negative ones on the way down.
type Milestone struct {
	Threshold int
	Template  string
}

// DefaultMilestones is the stock table of congratulations and commiserations.
var DefaultMilestones = []Milestone{
	{-1000, "💀 Да ты блин издеваешься, такое не возможно вообще! Попробуй не вытворять больше!"},
	{-500, "😵 Ну и нуб, прям с порога падает... Поправься уже!"},
	{-200, "🤦‍♂️ Опять промах? Кажется, тебе пора на тренировку."},
	{-50, "🙃 Ну ничего, даже у профессионалов бывают плохие дни... правда?"},
	{10, "🎉 Поздравляю с первыми 10 очками! Так держать!"},
	{25, "🌟 25 очков! Ты уже опытный игрок!"},
	{50, "🔥 50 очков! Ты просто огонь! 🔥"},
	{100, "👑 100 очков! Моя ты лапочка, умненькость - это про тебя!"},
	{200, "🚀 200 очков! Ты взлетаешь к вершинам знаний!"},
	{300, "💎 300 очков! Ты настоящий алмаз в нашем сообществе!"},
	{500, "🏆 500 очков! Настоящий чемпион!"},
	{750, "🌈 750 очков! Дал дал ушёл!"},
	{1000, "✨ 1000 очков! Ты легенда!"},
	{1500, "🔥 1500 очков! Огонь неистощимой энергии!"},
	{2000, "🚀 2000 очков! Сверхзвездный уровень!"},
	{3000, "👑 3000 очков! Царь и бог знаний!"},
	{5000, "💥 5000 очков! Э-э-это ты создатель вселенной?!"},
}

// Render fills {user_name} in the template, or prefixes the name when the
// template has no placeholder.
func (m Milestone) Render(name string) string {
	if strings.Contains(m.Template, "{user_name}") {
		return strings.ReplaceAll(m.Template, "{user_name}", name)
	}
	return name + ", " + m.Template
}

func sortedMilestones(ms []Milestone) []Milestone {
	out := append([]Milestone(nil), ms...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}

// crossed returns the first not-yet-notified milestone, in ascending threshold
// order, crossed by moving from prev to cur.
func crossed(ms []Milestone, prev, cur int, notified map[int]struct{}) (Milestone, bool) {
	for _, m := range ms {
		if _, done := notified[m.Threshold]; done {
			continue
		}
		t := m.Threshold
		if (t > 0 && prev < t && t <= cur) || (t < 0 && prev > t && t >= cur) {
			return m, true
		}
	}
	return Milestone{}, false
}
