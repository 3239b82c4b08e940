package question

import (
	"context"
	"errors"
	"strings"
)

// Validation errors for pool records.
var (
	ErrEmptyText         = errors.New("question text is empty")
	ErrTooFewOptions     = errors.New("question needs at least two options")
	ErrCorrectOutOfRange = errors.New("correct option index out of range")
	ErrDuplicateOption   = errors.New("option text is not unique")
)

// Question is a quiz item as held by the pool. Dispatch works on a Clone so the
// pool's option order is never touched.
type Question struct {
	Text         string
	Options      []string
	CorrectIndex int
	Category     string
	Solution     string
}

// Pool supplies questions to the engine. An empty category means any category.
type Pool interface {
	Questions(ctx context.Context, category string, count int) ([]Question, error)
	Categories(ctx context.Context) ([]string, error)
}

// Clone returns a deep copy.
func (q Question) Clone() Question {
	out := q
	out.Options = append([]string(nil), q.Options...)
	return out
}

// CorrectText returns the text of the correct option.
func (q Question) CorrectText() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

// HasSolution reports whether an explanation should follow the poll.
func (q Question) HasSolution() bool {
	return strings.TrimSpace(q.Solution) != ""
}

// Validate checks the preconditions dispatch relies on, including unique
// option text (the correct answer is re-located by value after shuffling).
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyText
	}
	if len(q.Options) < 2 {
		return ErrTooFewOptions
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ErrCorrectOutOfRange
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if _, dup := seen[opt]; dup {
			return ErrDuplicateOption
		}
		seen[opt] = struct{}{}
	}
	return nil
}
