package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrNoPoll is returned when sendPoll succeeds but the response has no poll.
var ErrNoPoll = errors.New("telegram: response carried no poll")

// chatGoneMarkers are Bot API descriptions that mean the chat will not accept
// messages again without operator action.
var chatGoneMarkers = []string{
	"chat not found",
	"bot was blocked",
	"bot was kicked",
	"user is deactivated",
	"not a member",
	"group chat was upgraded",
	"have no rights to send",
}

// IsPermanent reports whether the chat itself is unreachable (blocked bot,
// missing chat, kicked bot). Such failures are not retried and disable
// recurring schedules for the chat.
func IsPermanent(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusForbidden, http.StatusUnauthorized:
		return true
	case http.StatusBadRequest:
		desc := strings.ToLower(apiErr.Message)
		for _, marker := range chatGoneMarkers {
			if strings.Contains(desc, marker) {
				return true
			}
		}
	}
	return false
}

// IsTransient reports whether retrying the same request may succeed: network
// failures, flood control and server-side errors.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Transport and decode failures that never reached the API.
	return !errors.Is(err, ErrNoPoll)
}

// RetryAfter returns the flood-control wait requested by the API, if any.
func RetryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

// IsMessageGone reports edit failures caused by a deleted or unchanged message.
func IsMessageGone(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	desc := strings.ToLower(apiErr.Message)
	return strings.Contains(desc, "message to edit not found") || strings.Contains(desc, "message is not modified")
}
