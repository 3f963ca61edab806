package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinwijaya/twentyone/internal/game"
	"github.com/calvinwijaya/twentyone/internal/store"
)

type testServer struct {
	router *mux.Router
	store  *store.MemoryStore
	hub    *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})

	memStore := store.NewMemoryStore(quartz.NewMock(t), logger, game.WithSeed(99))
	hub := NewHub(logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := mux.NewRouter()
	NewHandlers(memStore, hub, logger).RegisterRoutes(r)

	return &testServer{router: r, store: memStore, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type createResponse struct {
	ID   string        `json:"id"`
	Game game.Snapshot `json:"game"`
}

type hitResponse struct {
	Card game.CardView `json:"card"`
	Game game.Snapshot `json:"game"`
}

type dealerResponse struct {
	Cards []game.CardView `json:"cards"`
	Game  game.Snapshot   `json:"game"`
}

type statsResponse struct {
	RoundsPlayed int `json:"roundsPlayed"`
	PlayerWins   int `json:"playerWins"`
	DealerWins   int `json:"dealerWins"`
	Ties         int `json:"ties"`
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/sessions")
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decode[createResponse](t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, game.StateIdle, created.Game.State)
	return created.ID
}

// startPlayerTurn deals rounds until one does not end on a natural blackjack
func (s *testServer) startPlayerTurn(t *testing.T, id string) game.Snapshot {
	t.Helper()
	for i := 0; i < 50; i++ {
		rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/round")
		require.Equal(t, http.StatusOK, rec.Code)

		snap := decode[game.Snapshot](t, rec)
		if snap.State == game.StatePlayerTurn {
			return snap
		}
		require.Equal(t, game.StateFinished, snap.State)
	}
	t.Fatal("no playable round dealt")
	return game.Snapshot{}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSessionNotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/sessions/missing",
		"/api/sessions/missing/stats",
	} {
		rec := s.do(t, http.MethodGet, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	for _, path := range []string{
		"/api/sessions/missing/round",
		"/api/sessions/missing/hit",
		"/api/sessions/missing/stand",
		"/api/sessions/missing/dealer",
		"/api/sessions/missing/reset",
	} {
		rec := s.do(t, http.MethodPost, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/sessions/missing").Code)
}

func TestPlayRoundThroughAPI(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)

	snap := s.startPlayerTurn(t, id)
	assert.Len(t, snap.Player.Cards, 2)
	assert.Len(t, snap.Dealer.Cards, 1)
	assert.True(t, snap.Dealer.HiddenPending)

	// Dealer cannot play before the player stands
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/sessions/"+id+"/dealer").Code)
	// Nor can a new round start
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/sessions/"+id+"/round").Code)

	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/stand")
	require.Equal(t, http.StatusOK, rec.Code)
	stood := decode[game.Snapshot](t, rec)
	assert.Equal(t, game.StateDealerTurn, stood.State)
	assert.False(t, stood.Dealer.HiddenPending)
	assert.Len(t, stood.Dealer.Cards, 2)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/sessions/"+id+"/hit").Code)

	rec = s.do(t, http.MethodPost, "/api/sessions/"+id+"/dealer")
	require.Equal(t, http.StatusOK, rec.Code)
	played := decode[dealerResponse](t, rec)
	assert.Equal(t, game.StateFinished, played.Game.State)
	assert.NotEqual(t, game.OutcomeNone, played.Game.Outcome)
	assert.Len(t, played.Game.Dealer.Cards, 2+len(played.Cards))
	assert.GreaterOrEqual(t, played.Game.Dealer.Value, 17)

	// Finished round rejects further actions
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/sessions/"+id+"/hit").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/sessions/"+id+"/stand").Code)

	rec = s.do(t, http.MethodGet, "/api/sessions/"+id+"/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[statsResponse](t, rec)
	assert.Equal(t, played.Game.Stats.RoundsPlayed, stats.RoundsPlayed)
	assert.Equal(t, stats.RoundsPlayed-stats.PlayerWins-stats.DealerWins, stats.Ties)
}

func TestHitThroughAPI(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)
	s.startPlayerTurn(t, id)

	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/hit")
	require.Equal(t, http.StatusOK, rec.Code)

	hit := decode[hitResponse](t, rec)
	require.Len(t, hit.Game.Player.Cards, 3)
	assert.Equal(t, hit.Card, hit.Game.Player.Cards[2])
	assert.NotEmpty(t, hit.Card.Label)

	if hit.Game.Player.Value > 21 {
		assert.Equal(t, game.StateFinished, hit.Game.State)
		assert.Equal(t, game.OutcomeLose, hit.Game.Outcome)
	} else {
		assert.Equal(t, game.StatePlayerTurn, hit.Game.State)
	}
}

func TestResetThroughAPI(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)
	s.startPlayerTurn(t, id)

	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/reset")
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decode[game.Snapshot](t, rec)
	assert.Equal(t, game.StateIdle, snap.State)
	assert.Equal(t, game.Stats{}, snap.Stats)
	assert.Equal(t, 52, snap.DeckRemaining)
}

func TestListAndDeleteSessions(t *testing.T) {
	s := newTestServer(t)
	first := s.createSession(t)
	second := s.createSession(t)

	rec := s.do(t, http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]map[string]interface{}](t, rec)
	require.Len(t, list, 2)

	ids := []string{list[0]["id"].(string), list[1]["id"].(string)}
	assert.ElementsMatch(t, []string{first, second}, ids)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/sessions/"+first).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/sessions/"+first).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/sessions/"+second).Code)
}

func TestWebSocketReceivesUpdates(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?sessionId=" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, MessageWelcome, readMessage().Type)
	require.Eventually(t, func() bool {
		return s.hub.ClientCount(id) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.startPlayerTurn(t, id)
	var update Message
	for {
		update = readMessage()
		require.Equal(t, MessageGameUpdate, update.Type)
		if update.Data.(map[string]interface{})["state"] == string(game.StatePlayerTurn) {
			break
		}
	}
	assert.Equal(t, id, update.SessionID)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/sessions/"+id+"/stand").Code)
	assert.Equal(t, MessageGameUpdate, readMessage().Type)

	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/dealer")
	require.Equal(t, http.StatusOK, rec.Code)
	played := decode[dealerResponse](t, rec)

	for _, want := range played.Cards {
		msg := readMessage()
		require.Equal(t, MessageDealerCard, msg.Type)
		assert.Equal(t, want.Label, msg.Data.(map[string]interface{})["label"])
	}
	final := readMessage()
	assert.Equal(t, MessageGameUpdate, final.Type)
	assert.Equal(t, string(game.StateFinished), final.Data.(map[string]interface{})["state"])
}

func TestWebSocketRequiresSession(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/ws")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func (s *testServer) dial(t *testing.T, srv *httptest.Server, id string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?sessionId=" + id
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

func TestWebSocketUnknownSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, resp, err := s.dial(t, srv, "missing")
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, s.hub.ClientCount("missing"))
}

func TestWebSocketClosedOnDelete(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := s.dial(t, srv, id)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return s.hub.ClientCount(id) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/sessions/"+id).Code)
	assert.Equal(t, 0, s.hub.ClientCount(id))

	// The welcome frame may still be queued ahead of the close frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
}

func TestHubCloseSessionOnSweep(t *testing.T) {
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	mockClock := quartz.NewMock(t)
	memStore := store.NewMemoryStore(mockClock, logger, game.WithSeed(99))
	hub := NewHub(logger, nil)
	memStore.OnEvict(hub.CloseSession)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := mux.NewRouter()
	NewHandlers(memStore, hub, logger).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	session, err := memStore.CreateSession()
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?sessionId="+session.ID, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount(session.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mockClock.Advance(time.Hour).MustWait(ctx)
	assert.Equal(t, 1, memStore.Sweep(30*time.Minute))
	assert.Equal(t, 0, hub.ClientCount(session.ID))
}

func TestDealerStreamNotInterleaved(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := s.dial(t, srv, id)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	require.Equal(t, MessageWelcome, readMessage().Type)
	require.Eventually(t, func() bool {
		return s.hub.ClientCount(id) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.startPlayerTurn(t, id)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/sessions/"+id+"/stand").Code)

	// Drain the updates sent so far
	for {
		msg := readMessage()
		require.Equal(t, MessageGameUpdate, msg.Type)
		if msg.Data.(map[string]interface{})["state"] == string(game.StateDealerTurn) {
			break
		}
	}

	roundDone := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/round", nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		roundDone <- rec.Code
	}()

	rec := s.do(t, http.MethodPost, "/api/sessions/"+id+"/dealer")
	require.Equal(t, http.StatusOK, rec.Code)
	played := decode[dealerResponse](t, rec)
	roundCode := <-roundDone

	var types []string
	want := len(played.Cards) + 1
	if roundCode == http.StatusOK {
		want++
	} else {
		require.Equal(t, http.StatusConflict, roundCode)
	}
	var dealerFinal Message
	for i := 0; i < want; i++ {
		msg := readMessage()
		types = append(types, msg.Type)
		if i == len(played.Cards) {
			dealerFinal = msg
		}
	}

	expected := make([]string, 0, want)
	for range played.Cards {
		expected = append(expected, MessageDealerCard)
	}
	expected = append(expected, MessageGameUpdate)
	if roundCode == http.StatusOK {
		expected = append(expected, MessageGameUpdate)
	}
	assert.Equal(t, expected, types)
	assert.Equal(t, string(game.StateFinished), dealerFinal.Data.(map[string]interface{})["state"])
}
