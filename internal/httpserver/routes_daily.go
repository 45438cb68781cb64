// internal/httpserver/routes_daily.go
//
// HTTP routes for the daily game.
//   - POST /daily/new → start a game whose sequences are fixed for the date
//   - GET  /daily     → today's date key
//
// Every daily game on the same date draws the same sequences: the random source
// is seeded from HMAC(salt, date), so the salt must stay private.

package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ninjadash54/simonsays/internal/daily"
	"github.com/Ninjadash54/simonsays/internal/game"
)

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	r.Route("/daily", func(r chi.Router) {
		r.Get("/", s.handleDailyToday)
		r.Post("/new", s.handleDailyNew)
	})
}

func (s *Server) dateKeyNow() string {
	return daily.DateKey(s.opts.Now(), s.opts.DailyLoc)
}

func (s *Server) handleDailyToday(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{"date": s.dateKeyNow(), "maxRounds": s.opts.Game.MaxRounds})
}

// handleDailyNew starts today's game with the host's default config; request
// overrides would change the sequences and are not accepted.
func (s *Server) handleDailyNew(w http.ResponseWriter, r *http.Request) {
	date := s.dateKeyNow()
	src := game.NewSource(daily.Seed(date, s.opts.DailySalt))
	s.startSession(w, r, s.opts.Game, date, game.WithSource(src))
}
