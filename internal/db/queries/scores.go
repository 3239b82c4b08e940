package queries

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type QuizScore struct {
	ChatID        int64              `json:"chat_id"`
	UserID        int64              `json:"user_id"`
	DisplayName   string             `json:"display_name"`
	Score         int32              `json:"score"`
	AnsweredPolls []string           `json:"answered_polls"`
	Milestones    []int32            `json:"milestones"`
	UpdatedAt     pgtype.Timestamptz `json:"updated_at"`
}

const listQuizScores = `-- name: ListQuizScores :many
SELECT chat_id, user_id, display_name, score, answered_polls, milestones, updated_at
FROM quiz_scores
ORDER BY chat_id, user_id
`

func (q *Queries) ListQuizScores(ctx context.Context) ([]QuizScore, error) {
	rows, err := q.db.Query(ctx, listQuizScores)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QuizScore
	for rows.Next() {
		var i QuizScore
		if err := rows.Scan(
			&i.ChatID,
			&i.UserID,
			&i.DisplayName,
			&i.Score,
			&i.AnsweredPolls,
			&i.Milestones,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertQuizScore = `-- name: UpsertQuizScore :batchexec
INSERT INTO quiz_scores (chat_id, user_id, display_name, score, answered_polls, milestones, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (chat_id, user_id) DO UPDATE SET
    display_name   = EXCLUDED.display_name,
    score          = EXCLUDED.score,
    answered_polls = EXCLUDED.answered_polls,
    milestones     = EXCLUDED.milestones,
    updated_at     = now()
`

type UpsertQuizScoreParams struct {
	ChatID        int64    `json:"chat_id"`
	UserID        int64    `json:"user_id"`
	DisplayName   string   `json:"display_name"`
	Score         int32    `json:"score"`
	AnsweredPolls []string `json:"answered_polls"`
	Milestones    []int32  `json:"milestones"`
}

// UpsertQuizScores writes all rows in one round trip.
func (q *Queries) UpsertQuizScores(ctx context.Context, arg []UpsertQuizScoreParams) error {
	if len(arg) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range arg {
		batch.Queue(upsertQuizScore,
			a.ChatID,
			a.UserID,
			a.DisplayName,
			a.Score,
			a.AnsweredPolls,
			a.Milestones,
		)
	}

	results := q.db.SendBatch(ctx, batch)
	defer results.Close()
	for i := range arg {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert row %d: %w", i, err)
		}
	}
	return nil
}
