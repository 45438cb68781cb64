package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ninjadash54/simonsays/internal/game"
	"github.com/Ninjadash54/simonsays/internal/registry"
	"github.com/Ninjadash54/simonsays/internal/store"
)

// stepClock collects scheduled callbacks until flush runs them.
type stepClock struct {
	mu      sync.Mutex
	pending []func()
}

func (c *stepClock) after(_ time.Duration, f func()) {
	c.mu.Lock()
	c.pending = append(c.pending, f)
	c.mu.Unlock()
}

func (c *stepClock) flush() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		f := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		f()
	}
}

var today = time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *stepClock) {
	t.Helper()
	clock := &stepClock{}
	s := New(store.NewMemoryStore(), registry.New(time.Minute), Options{
		DailySalt: "test_salt",
		Now:       func() time.Time { return today },
		Drivers:   []game.DriverOption{game.WithAfterFunc(clock.after)},
	})
	return s, clock
}

func call(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func callGame(t *testing.T, s *Server, method, path string, body any) gameRes {
	t.Helper()
	rec := call(t, s, method, path, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res gameRes
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := call(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true,"games":0}`, rec.Body.String())
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = call(t, s, http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGameFlow(t *testing.T) {
	s, clock := newTestServer(t)
	seed := uint64(7)
	rounds := 2
	res := callGame(t, s, http.MethodPost, "/game/new", map[string]any{"seed": seed, "maxRounds": rounds})
	require.NotEmpty(t, res.GameID)
	require.Equal(t, game.PhasePresenting, res.State.Phase)
	require.Equal(t, "Watch the sequence", res.Message)
	require.Len(t, res.Playback, 6)
	require.Equal(t, int64(500), res.Playback[0].AtMs)
	require.True(t, res.Playback[5].Last)
	id := res.GameID

	// input while presenting is ignored
	res = callGame(t, s, http.MethodPost, "/game/input", map[string]any{"gameId": id, "symbol": 0})
	require.False(t, *res.Accepted)
	require.Empty(t, res.State.PlayerInput)

	clock.flush()
	res = callGame(t, s, http.MethodGet, "/game/"+id, nil)
	require.Equal(t, game.PhaseAwaitingInput, res.State.Phase)
	require.Equal(t, "Your turn", res.Message)
	require.Empty(t, res.Playback)

	seq := res.State.Sequence
	require.Len(t, seq, 3)
	for i, sym := range seq {
		res = callGame(t, s, http.MethodPost, "/game/input", map[string]any{"gameId": id, "symbol": sym})
		require.True(t, *res.Accepted)
		require.Equal(t, i == len(seq)-1, res.RoundComplete)
	}
	require.Equal(t, game.PhasePresenting, res.State.Phase)
	require.Equal(t, 2, res.State.Round)
	require.Equal(t, 1, res.State.Score)
	require.Len(t, res.Playback, 8)

	clock.flush()
	seq = callGame(t, s, http.MethodGet, "/game/"+id, nil).State.Sequence
	wrong := (seq[0] + 1) % 4
	res = callGame(t, s, http.MethodPost, "/game/input", map[string]any{"gameId": id, "symbol": wrong})
	require.Equal(t, game.PhaseGameOver, res.State.Phase)
	require.False(t, res.State.Won)
	require.Equal(t, &mismatchView{Step: 0, Want: seq[0], Got: wrong}, res.Mismatch)
	require.Equal(t, "Game Over. Your final score is 1", res.Message)

	rec := call(t, s, http.MethodPost, "/game/replay", map[string]any{"gameId": id})
	require.Equal(t, http.StatusConflict, rec.Code)

	res = callGame(t, s, http.MethodPost, "/game/restart", map[string]any{"gameId": id})
	require.Equal(t, game.PhasePresenting, res.State.Phase)
	require.Equal(t, 1, res.State.Round)
	require.Zero(t, res.State.Score)
	require.Len(t, res.Playback, 6)
}

func TestWinningGame(t *testing.T) {
	s, clock := newTestServer(t)
	res := callGame(t, s, http.MethodPost, "/game/new", map[string]any{"maxRounds": 1, "baseLength": 2})
	clock.flush()
	seq := callGame(t, s, http.MethodGet, "/game/"+res.GameID, nil).State.Sequence
	require.Len(t, seq, 2)
	for _, sym := range seq {
		res = callGame(t, s, http.MethodPost, "/game/input", map[string]any{"gameId": res.GameID, "symbol": sym})
	}
	require.Equal(t, game.PhaseGameOver, res.State.Phase)
	require.True(t, res.State.Won)
	require.Equal(t, 1, res.State.Score)
	require.Empty(t, res.Playback)
}

func TestGameErrors(t *testing.T) {
	s, clock := newTestServer(t)

	rec := call(t, s, http.MethodPost, "/game/new", map[string]any{"symbols": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"invalid_config","field":"SymbolCount"}`, rec.Body.String())

	rec = call(t, s, http.MethodPost, "/game/input", map[string]any{"gameId": "missing", "symbol": 0})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, s, http.MethodGet, "/game/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	res := callGame(t, s, http.MethodPost, "/game/new", nil)
	clock.flush()
	rec = call(t, s, http.MethodPost, "/game/input", map[string]any{"gameId": res.GameID, "symbol": 9})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"invalid_symbol"}`, rec.Body.String())

	rec = call(t, s, http.MethodDelete, "/game/"+res.GameID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, s, http.MethodGet, "/game/"+res.GameID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplayClearsInput(t *testing.T) {
	s, clock := newTestServer(t)
	res := callGame(t, s, http.MethodPost, "/game/new", map[string]any{"seed": 3})
	clock.flush()
	seq := callGame(t, s, http.MethodGet, "/game/"+res.GameID, nil).State.Sequence
	callGame(t, s, http.MethodPost, "/game/input", map[string]any{"gameId": res.GameID, "symbol": seq[0]})

	res = callGame(t, s, http.MethodPost, "/game/replay", map[string]any{"gameId": res.GameID})
	require.Equal(t, game.PhasePresenting, res.State.Phase)
	require.Empty(t, res.State.PlayerInput)
	require.Equal(t, seq, res.State.Sequence)
}

func TestDailyGamesShareSequences(t *testing.T) {
	s, _ := newTestServer(t)
	a := callGame(t, s, http.MethodPost, "/daily/new", nil)
	b := callGame(t, s, http.MethodPost, "/daily/new", nil)
	require.Equal(t, "2024-03-09", a.Daily)
	require.NotEqual(t, a.GameID, b.GameID)
	require.Equal(t, a.State.Sequence, b.State.Sequence)

	rec := call(t, s, http.MethodGet, "/daily", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"date":"2024-03-09","maxRounds":4}`, rec.Body.String())
}

func TestRegistryRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	rec := call(t, s, http.MethodPut, "/registry/example-service/peers/alice", map[string]any{"name": "Alice", "addr": "ws://a/peer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var e registry.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	require.Equal(t, "alice", e.ID)
	require.WithinDuration(t, time.Now().Add(time.Minute), e.ExpiresAt, 5*time.Second)

	rec = call(t, s, http.MethodPut, "/registry/example-service/peers/bob", map[string]any{"name": "Bob"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, s, http.MethodGet, "/registry/example-service/peers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var browse struct {
		Service string           `json:"service"`
		Peers   []registry.Entry `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &browse))
	require.Equal(t, "example-service", browse.Service)
	require.Len(t, browse.Peers, 1)
	require.Equal(t, "ws://a/peer", browse.Peers[0].Addr)

	rec = call(t, s, http.MethodDelete, "/registry/example-service/peers/alice", nil)
	require.JSONEq(t, `{"removed":true}`, rec.Body.String())
	rec = call(t, s, http.MethodGet, "/registry/example-service/peers", nil)
	require.JSONEq(t, `{"service":"example-service","peers":[]}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	rec := call(t, s, http.MethodOptions, "/game/new", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
