package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "scores.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	l := ledger.New(nil)
	for i := 0; i < 10; i++ {
		l.RecordAnswer(-100, ledger.Player{ID: 1, Name: "Ann"}, string(rune('a'+i)), true)
	}
	l.RecordAnswer(-100, ledger.Player{ID: 2, Name: "Ben"}, "a", false)
	snap := l.Snapshot()
	require.NoError(t, store.Save(ctx, snap))

	// Second save updates rows in place.
	l.RecordAnswer(-100, ledger.Player{ID: 2, Name: "Ben"}, "b", true)
	snap = l.Snapshot()
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	e := loaded.Entries[0]
	assert.Equal(t, 10, e.Score)
	assert.Equal(t, []int{10}, e.Milestones)
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scores.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, ledger.Snapshot{Entries: []ledger.Entry{{ChatID: 1, UserID: 2, Name: "X", Score: 3}}}))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, 3, loaded.Entries[0].Score)
	assert.Equal(t, []string{}, loaded.Entries[0].AnsweredPolls)
}
