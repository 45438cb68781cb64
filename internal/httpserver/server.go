// internal/httpserver/server.go
//
// HTTP server wiring for the Simon Says host.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Game endpoints: POST /game/new, /game/input, /game/restart, /game/replay,
//     GET and DELETE /game/{id}.
//   - Daily game endpoint: mounted under /daily.
//   - Peer rendezvous registry: mounted under /registry.
//
// Notes:
//   - Playback runs on the server clock. Responses carry the scheduled events
//     (offsets in milliseconds) so a client can render them in step.
//   - Input sent while the sequence is still being shown is ignored, not rejected.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Ninjadash54/simonsays/internal/game"
	"github.com/Ninjadash54/simonsays/internal/registry"
	"github.com/Ninjadash54/simonsays/internal/store"
)

// Options carries the host settings the handlers need.
type Options struct {
	ClientOrigin string
	Game         game.Config // defaults for new games
	DailySalt    string
	DailyLoc     *time.Location
	Now          func() time.Time
	Drivers      []game.DriverOption // applied to every hosted game
}

// Server bundles router, session store, and peer registry.
type Server struct {
	r     *chi.Mux
	store store.Store
	reg   *registry.Registry
	opts  Options
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, reg *registry.Registry, opts Options) *Server {
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "http://localhost:5173"
	}
	if opts.Game == (game.Config{}) {
		opts.Game = game.DefaultConfig()
	}
	if opts.DailyLoc == nil {
		opts.DailyLoc = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{r: chi.NewRouter(), store: st, reg: reg, opts: opts}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(cors(opts.ClientOrigin))         // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"simonsays","endpoints":["/health","POST /game/new","POST /game/input","POST /daily/new","/registry/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "games": s.store.Len()})
	})

	s.r.Route("/game", func(r chi.Router) {
		r.Post("/new", s.handleNewGame)
		r.Post("/input", s.handleInput)
		r.Post("/restart", s.handleRestart)
		r.Post("/replay", s.handleReplay)
		r.Get("/{id}", s.handleGetGame)
		r.Delete("/{id}", s.handleDeleteGame)
	})

	s.mountDaily(s.r)

	if reg != nil {
		s.mountRegistry(s.r)
	}

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ------------------------------ GAME ---------------------------------------

// eventView is a playback event with its offset in milliseconds.
type eventView struct {
	Kind   game.EventKind `json:"kind"`
	Step   int            `json:"step"`
	Symbol int            `json:"symbol"`
	AtMs   int64          `json:"atMs"`
	Last   bool           `json:"last,omitempty"`
}

func playbackView(events []game.Event) []eventView {
	if events == nil {
		return nil
	}
	out := make([]eventView, len(events))
	for i, ev := range events {
		out[i] = eventView{Kind: ev.Kind, Step: ev.Step, Symbol: ev.Symbol, AtMs: ev.At.Milliseconds(), Last: ev.Last}
	}
	return out
}

type mismatchView struct {
	Step int `json:"step"`
	Want int `json:"want"`
	Got  int `json:"got"`
}

// gameRes is the common response body of the game endpoints.
type gameRes struct {
	GameID        string        `json:"gameId"`
	Daily         string        `json:"daily,omitempty"`
	State         game.State    `json:"state"`
	Message       string        `json:"message"`
	Playback      []eventView   `json:"playback,omitempty"`
	Accepted      *bool         `json:"accepted,omitempty"`
	RoundComplete bool          `json:"roundComplete,omitempty"`
	Mismatch      *mismatchView `json:"mismatch,omitempty"`
}

func newGameRes(sess *game.Session, st game.State, events []game.Event) gameRes {
	return gameRes{
		GameID:   sess.ID,
		Daily:    sess.Daily,
		State:    st,
		Message:  st.Message(),
		Playback: playbackView(events),
	}
}

// newGameReq overrides the default game config; all fields are optional.
type newGameReq struct {
	Symbols    *int    `json:"symbols"`
	BaseLength *int    `json:"baseLength"`
	MaxRounds  *int    `json:"maxRounds"`
	Seed       *uint64 `json:"seed"` // fixed sequences (testing, replays)
}

func (req newGameReq) config(def game.Config) game.Config {
	cfg := def
	if req.Symbols != nil {
		cfg.SymbolCount = *req.Symbols
	}
	if req.BaseLength != nil {
		cfg.BaseLength = *req.BaseLength
	}
	if req.MaxRounds != nil {
		cfg.MaxRounds = *req.MaxRounds
	}
	return cfg
}

// handleNewGame creates a game, starts its first playback, and stores the session.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	var opts []game.Option
	if req.Seed != nil {
		opts = append(opts, game.WithSource(game.NewSource(*req.Seed)))
	}
	s.startSession(w, r, req.config(s.opts.Game), "", opts...)
}

// startSession is shared by the normal and daily game endpoints.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, cfg game.Config, dailyKey string, opts ...game.Option) {
	d := game.NewDriver(game.NewEngine(opts...), s.opts.Drivers...)
	events, err := d.Start(cfg)
	if err != nil {
		writeGameError(w, err)
		return
	}
	sess := game.NewSession(d)
	sess.Daily = dailyKey
	if err := s.store.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save game")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}
	log.Info().Str("gameId", sess.ID).Str("daily", dailyKey).Int("maxRounds", cfg.MaxRounds).Msg("game started")
	_ = json.NewEncoder(w).Encode(newGameRes(sess, d.Engine().State(), events))
}

type gameReq struct {
	GameID string `json:"gameId"`
}

type inputReq struct {
	GameID string `json:"gameId"`
	Symbol int    `json:"symbol"`
}

// handleInput forwards one symbol. A wrong symbol ends the game and is reported
// in the body, not as an HTTP error.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, ok := s.session(w, r, req.GameID)
	if !ok {
		return
	}
	res, events, err := sess.Submit(req.Symbol)
	var mm *game.MismatchError
	switch {
	case errors.As(err, &mm):
		log.Info().Str("gameId", sess.ID).Int("score", res.State.Score).Msg("game lost")
	case err != nil:
		writeGameError(w, err)
		return
	}
	out := newGameRes(sess, res.State, events)
	out.Accepted = &res.Accepted
	out.RoundComplete = res.RoundComplete
	if mm != nil {
		out.Mismatch = &mismatchView{Step: mm.Step, Want: mm.Want, Got: mm.Got}
	}
	if res.State.Phase == game.PhaseGameOver && res.State.Won {
		log.Info().Str("gameId", sess.ID).Int("score", res.State.Score).Msg("game won")
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.replayLike(w, r, (*game.Driver).Restart)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	s.replayLike(w, r, (*game.Driver).Replay)
}

func (s *Server) replayLike(w http.ResponseWriter, r *http.Request, play func(*game.Driver) ([]game.Event, error)) {
	var req gameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, ok := s.session(w, r, req.GameID)
	if !ok {
		return
	}
	events, err := play(sess.Driver)
	if err != nil {
		writeGameError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(newGameRes(sess, sess.Engine().State(), events))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	st := sess.Engine().State()
	var events []game.Event
	if st.Phase == game.PhasePresenting {
		events = sess.Schedule()
	}
	_ = json.NewEncoder(w).Encode(newGameRes(sess, st, events))
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, `{"error":"delete_failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// session loads a stored game or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request, id string) (*game.Session, bool) {
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// writeGameError maps engine errors to status codes.
func writeGameError(w http.ResponseWriter, err error) {
	var ice *game.InvalidConfigError
	switch {
	case errors.As(err, &ice):
		http.Error(w, `{"error":"invalid_config","field":"`+ice.Field+`"}`, http.StatusBadRequest)
	case errors.Is(err, game.ErrInvalidSymbol):
		http.Error(w, `{"error":"invalid_symbol"}`, http.StatusBadRequest)
	case errors.Is(err, game.ErrGameOver):
		http.Error(w, `{"error":"game_over"}`, http.StatusConflict)
	case errors.Is(err, game.ErrNotStarted):
		http.Error(w, `{"error":"not_started"}`, http.StatusConflict)
	default:
		log.Warn().Err(err).Msg("game request failed")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}
}
