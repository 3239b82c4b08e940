package repository

import (
	"context"
	"fmt"

	"github.com/lizardjazz1/morning-quiz-bot/internal/db/queries"
	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
)

type scoreStore interface {
	ListQuizScores(ctx context.Context) ([]queries.QuizScore, error)
	UpsertQuizScores(ctx context.Context, arg []queries.UpsertQuizScoreParams) error
}

// ScoreRepository persists ledger snapshots into the quiz_scores table.
type ScoreRepository struct {
	store scoreStore
}

var _ ledger.Store = (*ScoreRepository)(nil)

// NewScoreRepository wraps Queries for score persistence.
func NewScoreRepository(store scoreStore) *ScoreRepository {
	return &ScoreRepository{store: store}
}

// Load reads every stored score row.
func (r *ScoreRepository) Load(ctx context.Context) (ledger.Snapshot, error) {
	rows, err := r.store.ListQuizScores(ctx)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("list quiz scores: %w", err)
	}

	snap := ledger.Snapshot{Entries: make([]ledger.Entry, 0, len(rows))}
	for _, row := range rows {
		milestones := make([]int, 0, len(row.Milestones))
		for _, m := range row.Milestones {
			milestones = append(milestones, int(m))
		}
		snap.Entries = append(snap.Entries, ledger.Entry{
			ChatID:        row.ChatID,
			UserID:        row.UserID,
			Name:          row.DisplayName,
			Score:         int(row.Score),
			AnsweredPolls: row.AnsweredPolls,
			Milestones:    milestones,
		})
	}
	return snap, nil
}

// Save upserts every entry of the snapshot. Rows absent from the snapshot are
// left untouched; the ledger never forgets a user.
func (r *ScoreRepository) Save(ctx context.Context, snap ledger.Snapshot) error {
	params := make([]queries.UpsertQuizScoreParams, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		milestones := make([]int32, 0, len(e.Milestones))
		for _, m := range e.Milestones {
			milestones = append(milestones, int32(m))
		}
		answered := e.AnsweredPolls
		if answered == nil {
			answered = []string{}
		}
		params = append(params, queries.UpsertQuizScoreParams{
			ChatID:        e.ChatID,
			UserID:        e.UserID,
			DisplayName:   e.Name,
			Score:         int32(e.Score),
			AnsweredPolls: answered,
			Milestones:    milestones,
		})
	}
	if err := r.store.UpsertQuizScores(ctx, params); err != nil {
		return fmt.Errorf("upsert quiz scores: %w", err)
	}
	return nil
}
