// Package ledger keeps per-room and per-session scores. Every score change is
// at most once per (user, poll).
package ledger

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Player identifies who answered.
type Player struct {
	ID   int64
	Name string
}

// Entry is one user's global score in one room, as persisted.
type Entry struct {
	ChatID        int64    `json:"chat_id"`
	UserID        int64    `json:"user_id"`
	Name          string   `json:"name"`
	Score         int      `json:"score"`
	AnsweredPolls []string `json:"answered_polls"`
	Milestones    []int    `json:"milestones"`
}

// Snapshot is the full ledger state handed to a Store.
type Snapshot struct {
	Entries []Entry
}

// Ranked is a leaderboard row.
type Ranked struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// Result reports the outcome of RecordAnswer. Milestone is empty unless a
// threshold was crossed for the first time.
type Result struct {
	Changed   bool
	Score     int
	Milestone string
}

type userState struct {
	name       string
	score      int
	answered   map[string]struct{}
	milestones map[int]struct{}
}

// Ledger is the in-memory source of truth for global scores.
type Ledger struct {
	mu         sync.Mutex
	rooms      map[int64]map[int64]*userState
	milestones []Milestone

	dirty     chan struct{}
	listenMu  sync.RWMutex
	listeners []func(chatID int64)
}

// New creates an empty ledger. A nil table means DefaultMilestones.
func New(milestones []Milestone) *Ledger {
	if milestones == nil {
		milestones = DefaultMilestones
	}
	return &Ledger{
		rooms:      make(map[int64]map[int64]*userState),
		milestones: sortedMilestones(milestones),
		dirty:      make(chan struct{}, 1),
	}
}

// RecordAnswer applies +1 or -1 the first time the user answers pollID in the
// room. Later calls for the same poll change nothing.
func (l *Ledger) RecordAnswer(chatID int64, p Player, pollID string, correct bool) Result {
	l.mu.Lock()
	st := l.userLocked(chatID, p.ID)
	if p.Name != "" {
		st.name = p.Name
	}
	if _, seen := st.answered[pollID]; seen {
		res := Result{Score: st.score}
		l.mu.Unlock()
		return res
	}

	prev := st.score
	if correct {
		st.score++
	} else {
		st.score--
	}
	st.answered[pollID] = struct{}{}

	res := Result{Changed: true, Score: st.score}
	if m, ok := crossed(l.milestones, prev, st.score, st.milestones); ok {
		st.milestones[m.Threshold] = struct{}{}
		res.Milestone = m.Render(st.name)
	}
	l.mu.Unlock()

	l.notify(chatID)
	return res
}

// Score returns the user's entry in the room.
func (l *Ledger) Score(chatID, userID int64) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.rooms[chatID][userID]
	if !ok {
		return Entry{}, false
	}
	return st.entry(chatID, userID), true
}

// Leaderboard ranks a room by score descending, then name ascending
// ignoring case. A non-positive n returns everyone.
func (l *Ledger) Leaderboard(chatID int64, n int) []Ranked {
	l.mu.Lock()
	room := l.rooms[chatID]
	out := make([]Ranked, 0, len(room))
	for uid, st := range room {
		out = append(out, Ranked{UserID: uid, Name: displayName(st.name, uid), Score: st.score})
	}
	l.mu.Unlock()

	return rank(out, n)
}

// GlobalLeaderboard sums each user's scores across rooms, keeping the longest
// name seen for them.
func (l *Ledger) GlobalLeaderboard(n int) []Ranked {
	l.mu.Lock()
	agg := make(map[int64]*Ranked)
	for _, room := range l.rooms {
		for uid, st := range room {
			r, ok := agg[uid]
			if !ok {
				r = &Ranked{UserID: uid, Name: st.name}
				agg[uid] = r
			}
			r.Score += st.score
			if len(st.name) > len(r.Name) {
				r.Name = st.name
			}
		}
	}
	l.mu.Unlock()

	out := make([]Ranked, 0, len(agg))
	for uid, r := range agg {
		r.Name = displayName(r.Name, uid)
		out = append(out, *r)
	}
	return rank(out, n)
}

// Rooms lists every room with at least one entry.
func (l *Ledger) Rooms() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]int64, 0, len(l.rooms))
	for id := range l.rooms {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot copies the whole ledger, ordered by room then user.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	var snap Snapshot
	for chatID, room := range l.rooms {
		for uid, st := range room {
			snap.Entries = append(snap.Entries, st.entry(chatID, uid))
		}
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		a, b := snap.Entries[i], snap.Entries[j]
		if a.ChatID != b.ChatID {
			return a.ChatID < b.ChatID
		}
		return a.UserID < b.UserID
	})
	return snap
}

// Restore replaces the ledger contents with snap. It does not mark the ledger
// dirty.
func (l *Ledger) Restore(snap Snapshot) {
	rooms := make(map[int64]map[int64]*userState)
	for _, e := range snap.Entries {
		room, ok := rooms[e.ChatID]
		if !ok {
			room = make(map[int64]*userState)
			rooms[e.ChatID] = room
		}
		st := &userState{
			name:       e.Name,
			score:      e.Score,
			answered:   make(map[string]struct{}, len(e.AnsweredPolls)),
			milestones: make(map[int]struct{}, len(e.Milestones)),
		}
		for _, id := range e.AnsweredPolls {
			st.answered[id] = struct{}{}
		}
		for _, t := range e.Milestones {
			st.milestones[t] = struct{}{}
		}
		room[e.UserID] = st
	}

	l.mu.Lock()
	l.rooms = rooms
	l.mu.Unlock()
}

// Dirty is signalled after mutations. Bursts coalesce into one signal.
func (l *Ledger) Dirty() <-chan struct{} {
	return l.dirty
}

// OnChange registers fn to run after every score change in a room.
func (l *Ledger) OnChange(fn func(chatID int64)) {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Ledger) notify(chatID int64) {
	select {
	case l.dirty <- struct{}{}:
	default:
	}

	l.listenMu.RLock()
	listeners := l.listeners
	l.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(chatID)
	}
}

func (l *Ledger) userLocked(chatID, userID int64) *userState {
	room, ok := l.rooms[chatID]
	if !ok {
		room = make(map[int64]*userState)
		l.rooms[chatID] = room
	}
	st, ok := room[userID]
	if !ok {
		st = &userState{
			answered:   make(map[string]struct{}),
			milestones: make(map[int]struct{}),
		}
		room[userID] = st
	}
	return st
}

func (st *userState) entry(chatID, userID int64) Entry {
	e := Entry{
		ChatID:        chatID,
		UserID:        userID,
		Name:          st.name,
		Score:         st.score,
		AnsweredPolls: make([]string, 0, len(st.answered)),
		Milestones:    make([]int, 0, len(st.milestones)),
	}
	for id := range st.answered {
		e.AnsweredPolls = append(e.AnsweredPolls, id)
	}
	for t := range st.milestones {
		e.Milestones = append(e.Milestones, t)
	}
	sort.Strings(e.AnsweredPolls)
	sort.Ints(e.Milestones)
	return e
}

func rank(rows []Ranked, n int) []Ranked {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		ni, nj := strings.ToLower(rows[i].Name), strings.ToLower(rows[j].Name)
		if ni != nj {
			return ni < nj
		}
		return rows[i].UserID < rows[j].UserID
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

func displayName(name string, userID int64) string {
	if name != "" {
		return name
	}
	return "UID " + strconv.FormatInt(userID, 10)
}
