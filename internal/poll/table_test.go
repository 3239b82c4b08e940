package poll

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePutGetDelete(t *testing.T) {
	tbl := NewTable()
	tbl.Put(Record{PollID: "p1", ChatID: 10, CorrectOption: 2, Kind: KindSession})

	rec, ok := tbl.Get("p1")
	require.True(t, ok)
	assert.Equal(t, int64(10), rec.ChatID)

	rec.CorrectOption = 0
	again, _ := tbl.Get("p1")
	assert.Equal(t, 2, again.CorrectOption, "Get must return a copy")

	deleted, ok := tbl.Delete("p1")
	assert.True(t, ok)
	assert.Equal(t, "p1", deleted.PollID)

	_, ok = tbl.Get("p1")
	assert.False(t, ok)
	_, ok = tbl.Delete("p1")
	assert.False(t, ok)
}

func TestMarkAdvancedOnlyOnce(t *testing.T) {
	tbl := NewTable()
	tbl.Put(Record{PollID: "p1"})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tbl.MarkAdvanced("p1") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.False(t, tbl.MarkAdvanced("missing"))
}

func TestMarkSolutionSentIndependentOfAdvance(t *testing.T) {
	tbl := NewTable()
	tbl.Put(Record{PollID: "p1"})

	assert.True(t, tbl.MarkAdvanced("p1"))
	assert.True(t, tbl.MarkSolutionSent("p1"))
	assert.False(t, tbl.MarkSolutionSent("p1"))
}

func TestSettersAndForChat(t *testing.T) {
	tbl := NewTable()
	tbl.Put(Record{PollID: "a", ChatID: 1})
	tbl.Put(Record{PollID: "b", ChatID: 1})
	tbl.Put(Record{PollID: "c", ChatID: 2})

	assert.True(t, tbl.SetTimeoutJob("a", "poll_timeout:1:a"))
	assert.True(t, tbl.SetPlaceholder("a", 77))
	assert.False(t, tbl.SetTimeoutJob("zzz", "x"))

	rec, _ := tbl.Get("a")
	assert.Equal(t, "poll_timeout:1:a", rec.TimeoutJob)
	assert.Equal(t, 77, rec.PlaceholderMessageID)

	assert.Len(t, tbl.ForChat(1), 2)
	assert.Equal(t, 3, tbl.Len())
}

func TestRecordIsCorrect(t *testing.T) {
	rec := Record{CorrectOption: 1}
	assert.True(t, rec.IsCorrect([]int{1}))
	assert.False(t, rec.IsCorrect([]int{0}))
	assert.False(t, rec.IsCorrect([]int{1, 2}))
	assert.False(t, rec.IsCorrect(nil))
}
