// internal/httpserver/routes_registry.go
//
// Peer rendezvous routes, used by the websocket peer transport.
//   - PUT    /registry/{service}/peers/{id} → advertise or refresh {name, addr}
//   - GET    /registry/{service}/peers      → live peers of a service
//   - DELETE /registry/{service}/peers/{id} → withdraw

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ninjadash54/simonsays/internal/registry"
)

func (s *Server) mountRegistry(r chi.Router) {
	r.Route("/registry/{service}/peers", func(r chi.Router) {
		r.Get("/", s.handleBrowse)
		r.Put("/{id}", s.handleAdvertise)
		r.Delete("/{id}", s.handleWithdraw)
	})
}

type advertiseReq struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

func (s *Server) handleAdvertise(w http.ResponseWriter, r *http.Request) {
	var req advertiseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	e, err := s.reg.Advertise(chi.URLParam(r, "service"), registry.Entry{
		ID:   chi.URLParam(r, "id"),
		Name: req.Name,
		Addr: req.Addr,
	})
	if errors.Is(err, registry.ErrInvalidEntry) {
		http.Error(w, `{"error":"invalid_entry"}`, http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(e)
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	_ = json.NewEncoder(w).Encode(map[string]any{"service": service, "peers": s.reg.Browse(service)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	removed := s.reg.Withdraw(chi.URLParam(r, "service"), chi.URLParam(r, "id"))
	_ = json.NewEncoder(w).Encode(map[string]bool{"removed": removed})
}
