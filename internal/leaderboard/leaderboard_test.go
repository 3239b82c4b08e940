package leaderboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
	ws "github.com/lizardjazz1/morning-quiz-bot/pkg/http/ws"
)

func seededLedger() *ledger.Ledger {
	l := ledger.New(nil)
	l.RecordAnswer(-1, ledger.Player{ID: 1, Name: "Ann"}, "p1", true)
	l.RecordAnswer(-1, ledger.Player{ID: 2, Name: "Bob"}, "p1", false)
	l.RecordAnswer(-2, ledger.Player{ID: 1, Name: "Ann"}, "p2", true)
	return l
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newRouter(h *HTTPHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/leaderboards/global", h.HandleGlobal)
	mux.HandleFunc("GET /v1/leaderboards/rooms/{chat_id}", h.HandleRoom)
	mux.HandleFunc("GET /ws/leaderboard", h.HandleFeed)
	return mux
}

func TestHTTPGlobalLeaderboard(t *testing.T) {
	h := NewHTTPHandler(seededLedger(), nil, websocket.Upgrader{}, 10, zerolog.Nop())
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboards/global?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body ws.LeaderboardUpdatePayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ws.ScopeGlobal, body.Scope)
	assert.Equal(t, []ws.LeaderboardEntry{{Rank: 1, UserID: 1, DisplayName: "Ann", Score: 2}}, body.Top)
}

func TestHTTPRoomLeaderboard(t *testing.T) {
	h := NewHTTPHandler(seededLedger(), nil, websocket.Upgrader{}, 10, zerolog.Nop())
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboards/rooms/-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body ws.LeaderboardUpdatePayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(-1), body.ChatID)
	require.Len(t, body.Top, 2)
	assert.Equal(t, "Ann", body.Top[0].DisplayName)
	assert.Equal(t, -1, body.Top[1].Score)
}

func TestHTTPRejectsBadInput(t *testing.T) {
	h := NewHTTPHandler(seededLedger(), nil, websocket.Upgrader{}, 10, zerolog.Nop())
	router := newRouter(h)

	for _, path := range []string{"/v1/leaderboards/rooms/abc", "/v1/leaderboards/global?limit=0", "/v1/leaderboards/global?limit=500"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/leaderboard", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPublisherPublishesRoomAndGlobal(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, "lb:test")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	l := seededLedger()
	p := NewPublisher(rdb, l, PublisherOptions{TopN: 5, Channel: "lb:test"}, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	p.Notify(-1)
	p.Notify(-1)
	p.Flush(ctx)

	var got []ws.LeaderboardUpdatePayload
	ch := sub.Channel()
	for len(got) < 2 {
		select {
		case msg := <-ch:
			var evt ws.LeaderboardUpdatePayload
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
			got = append(got, evt)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 2 updates, got %d", len(got))
		}
	}
	assert.Equal(t, ws.ScopeRoom, got[0].Scope)
	assert.Equal(t, int64(-1), got[0].ChatID)
	assert.Len(t, got[0].Top, 2)
	assert.Equal(t, ws.ScopeGlobal, got[1].Scope)
	assert.Equal(t, "2024-01-02T03:04:05Z", got[1].PublishedAt)

	// Nothing pending, nothing published.
	p.Flush(ctx)
	select {
	case msg := <-ch:
		t.Fatalf("unexpected update %s", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func dialFeed(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/leaderboard"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) ws.LeaderboardUpdatePayload {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, ws.TypeLeaderboardUpdate, msg.Type)
	var evt ws.LeaderboardUpdatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &evt))
	return evt
}

func TestBroadcasterForwardsToFeed(t *testing.T) {
	rdb := newTestRedis(t)
	hub := ws.NewHub(zerolog.Nop())
	l := seededLedger()
	h := NewHTTPHandler(l, hub, websocket.Upgrader{}, 10, zerolog.Nop())
	srv := httptest.NewServer(newRouter(h))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBroadcaster(rdb, hub, "lb:feed", zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	room := dialFeed(t, srv, "?chat_id=-2")
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	p := NewPublisher(rdb, l, PublisherOptions{Channel: "lb:feed"}, zerolog.Nop())
	require.Eventually(t, func() bool {
		n, err := rdb.PubSubNumSub(ctx, "lb:feed").Result()
		return err == nil && n["lb:feed"] == 1
	}, time.Second, 10*time.Millisecond)

	p.Notify(-1)
	p.Notify(-2)
	p.Flush(ctx)

	// The -2 follower sees its room and the global board, not room -1.
	first := readUpdate(t, room)
	assert.Equal(t, int64(-2), first.ChatID)
	second := readUpdate(t, room)
	assert.Equal(t, ws.ScopeGlobal, second.Scope)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestLocalPublisherRunDebounces(t *testing.T) {
	hub := ws.NewHub(zerolog.Nop())
	l := seededLedger()
	h := NewHTTPHandler(l, hub, websocket.Upgrader{}, 10, zerolog.Nop())
	srv := httptest.NewServer(newRouter(h))
	t.Cleanup(srv.Close)

	conn := dialFeed(t, srv, "")
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	p := NewLocalPublisher(hub, l, PublisherOptions{Debounce: 20 * time.Millisecond}, zerolog.Nop())
	l.OnChange(p.Notify)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	l.RecordAnswer(-1, ledger.Player{ID: 3, Name: "Cy"}, "p9", true)
	l.RecordAnswer(-1, ledger.Player{ID: 4, Name: "Di"}, "p9", true)

	evt := readUpdate(t, conn)
	assert.Equal(t, int64(-1), evt.ChatID)
	assert.Len(t, evt.Top, 4)
	assert.Equal(t, ws.ScopeGlobal, readUpdate(t, conn).Scope)
}
