// Package poll keeps the bookkeeping entry for every outstanding platform poll.
// The table's check-and-set methods are the only guards against double advance
// and double solution delivery.
package poll

import (
	"time"

	"github.com/lizardjazz1/morning-quiz-bot/internal/question"
)

// Kind tells Answer Intake which scopes an answer scores in.
type Kind string

const (
	KindSingle    Kind = "single"
	KindSession   Kind = "session"
	KindRecurring Kind = "recurring"
)

// Record correlates a dispatched poll with its quiz context. CorrectOption is
// the post-shuffle index as sent to the platform.
type Record struct {
	PollID        string
	ChatID        int64
	MessageID     int
	CorrectOption int
	Kind          Kind
	Question      question.Question
	IsLast        bool
	SessionIndex  int
	SessionID     string

	// PlaceholderMessageID is zero when no solution placeholder was sent.
	PlaceholderMessageID int
	TimeoutJob           string
	AdvancedAlready      bool
	SolutionSent         bool
	OpenedAt             time.Time
}

// IsCorrect reports whether a selection is exactly the correct option.
func (r Record) IsCorrect(selected []int) bool {
	return len(selected) == 1 && selected[0] == r.CorrectOption
}
