package telegram

import (
	"strconv"
	"strings"
	"time"
)

// User is the subset of a platform user the bot cares about.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// DisplayName prefers the full name, then the username, then the id.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "UID " + strconv.FormatInt(u.ID, 10)
}

// Answer is an incoming poll answer event.
type Answer struct {
	PollID    string
	User      User
	OptionIDs []int
}

// Command is an incoming chat command such as /quiz10 History.
type Command struct {
	ChatID    int64
	Private   bool
	MessageID int
	User      User
	Name      string
	Args      string
}

// PollRequest describes a quiz poll to send. CorrectOption indexes Options.
type PollRequest struct {
	ChatID        int64
	Question      string
	Options       []string
	CorrectOption int
	OpenPeriod    time.Duration
}

// SentPoll identifies a delivered poll.
type SentPoll struct {
	PollID    string
	MessageID int
}
