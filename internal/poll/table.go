package poll

import "sync"

// Table holds one live Record per outstanding poll id.
type Table struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewTable() *Table {
	return &Table{records: make(map[string]*Record)}
}

// Put registers a record, replacing any previous entry for the poll id.
func (t *Table) Put(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := rec
	t.records[rec.PollID] = &r
}

// Get returns a copy of the record.
func (t *Table) Get(pollID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[pollID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Delete removes the record and returns its last state.
func (t *Table) Delete(pollID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[pollID]
	if !ok {
		return Record{}, false
	}
	delete(t.records, pollID)
	return *r, true
}

// MarkAdvanced flips AdvancedAlready from false to true. Only the first caller
// for a live record gets true.
func (t *Table) MarkAdvanced(pollID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[pollID]
	if !ok || r.AdvancedAlready {
		return false
	}
	r.AdvancedAlready = true
	return true
}

// MarkSolutionSent flips SolutionSent from false to true. Only the first caller
// for a live record gets true.
func (t *Table) MarkSolutionSent(pollID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[pollID]
	if !ok || r.SolutionSent {
		return false
	}
	r.SolutionSent = true
	return true
}

// SetTimeoutJob stores the scheduler job name for the poll.
func (t *Table) SetTimeoutJob(pollID, job string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[pollID]
	if !ok {
		return false
	}
	r.TimeoutJob = job
	return true
}

// SetPlaceholder stores the solution placeholder message id.
func (t *Table) SetPlaceholder(pollID string, messageID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[pollID]
	if !ok {
		return false
	}
	r.PlaceholderMessageID = messageID
	return true
}

// ForChat returns copies of every record that belongs to a chat.
func (t *Table) ForChat(chatID int64) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Record
	for _, r := range t.records {
		if r.ChatID == chatID {
			out = append(out, *r)
		}
	}
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
