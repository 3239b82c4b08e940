package ledger

import (
	"sort"
	"strings"
	"sync"
)

// SessionResult is one participant's standing in a finished session.
type SessionResult struct {
	UserID  int64
	Name    string
	Correct int
}

// SessionBoard counts correct answers within one session. Its dedup is
// independent of the global ledger.
type SessionBoard struct {
	mu      sync.Mutex
	players map[int64]*sessionPlayer
}

type sessionPlayer struct {
	name     string
	correct  int
	answered map[string]struct{}
}

func NewSessionBoard() *SessionBoard {
	return &SessionBoard{players: make(map[int64]*sessionPlayer)}
}

// Record registers the user's first answer to pollID. It reports whether the
// answer was counted.
func (b *SessionBoard) Record(p Player, pollID string, correct bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sp, ok := b.players[p.ID]
	if !ok {
		sp = &sessionPlayer{answered: make(map[string]struct{})}
		b.players[p.ID] = sp
	}
	if p.Name != "" {
		sp.name = p.Name
	}
	if _, seen := sp.answered[pollID]; seen {
		return false
	}
	sp.answered[pollID] = struct{}{}
	if correct {
		sp.correct++
	}
	return true
}

// Len is the number of participants.
func (b *SessionBoard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.players)
}

// Results ranks participants by correct answers, then name.
func (b *SessionBoard) Results() []SessionResult {
	b.mu.Lock()
	out := make([]SessionResult, 0, len(b.players))
	for uid, sp := range b.players {
		out = append(out, SessionResult{UserID: uid, Name: displayName(sp.name, uid), Correct: sp.correct})
	}
	b.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Correct != out[j].Correct {
			return out[i].Correct > out[j].Correct
		}
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
