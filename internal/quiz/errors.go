package quiz

import (
	"errors"
	"fmt"
)

// Reason classifies why an engine operation was refused.
type Reason string

const (
	ReasonAlreadyRunning Reason = "already_running"
	ReasonNothingToStop  Reason = "nothing_to_stop"
	ReasonNotAllowed     Reason = "not_allowed"
	ReasonNoQuestions    Reason = "no_questions"
	ReasonDispatchFailed Reason = "dispatch_failed"
)

// Rejection is a user-facing refusal. Message is shown in the chat as is.
type Rejection struct {
	Reason  Reason
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Reason, r.Message, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// IsRejected reports whether err is a Rejection with the given reason.
func IsRejected(err error, reason Reason) bool {
	var rej *Rejection
	return errors.As(err, &rej) && rej.Reason == reason
}

func reject(reason Reason, msg string) *Rejection {
	return &Rejection{Reason: reason, Message: msg}
}

func errAlreadyRunning() *Rejection {
	return reject(ReasonAlreadyRunning, "Викторина уже идёт или запланирована в этом чате. Остановить её можно командой /stopquiz.")
}

func errNothingToStop() *Rejection {
	return reject(ReasonNothingToStop, "В этом чате нет активной или запланированной викторины.")
}

func errNotAllowed() *Rejection {
	return reject(ReasonNotAllowed, "Остановить викторину может только её инициатор или администратор чата.")
}

func errNoQuestions(category string) *Rejection {
	if category != "" {
		return reject(ReasonNoQuestions, fmt.Sprintf("Не найдено вопросов в категории «%s».", category))
	}
	return reject(ReasonNoQuestions, "Нет доступных вопросов.")
}

func errDispatchFailed(err error) *Rejection {
	return &Rejection{Reason: ReasonDispatchFailed, Message: "Не удалось отправить вопрос. Попробуйте позже.", Err: err}
}
