// internal/registry/registry.go
//
// Rendezvous directory for peer discovery.
// Peers advertise themselves under a service identifier and refresh the entry
// before it expires; browsers list the live entries of a service. Entries that
// are not refreshed within the TTL disappear, which is how a crashed peer is
// eventually "lost".

package registry

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultTTL is how long an advertisement lives without a refresh.
const DefaultTTL = 30 * time.Second

// ErrInvalidEntry is returned for advertisements missing service, id or address.
var ErrInvalidEntry = errors.New("registry: service, id and addr are required")

// Entry is one advertised peer.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Addr      string    `json:"addr"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Registry is an in-memory, TTL-based service directory. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	services map[string]map[string]Entry // service -> peer id -> entry
}

// New returns a registry whose entries live for ttl (DefaultTTL when ttl <= 0).
func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{ttl: ttl, now: time.Now, services: make(map[string]map[string]Entry)}
}

// TTL reports the advertisement lifetime.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Advertise adds or refreshes e under service and returns the stored entry.
func (r *Registry) Advertise(service string, e Entry) (Entry, error) {
	if service == "" || e.ID == "" || e.Addr == "" {
		return Entry{}, ErrInvalidEntry
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.services[service]
	if !ok {
		peers = make(map[string]Entry)
		r.services[service] = peers
	}
	e.ExpiresAt = r.now().Add(r.ttl)
	peers[e.ID] = e
	return e, nil
}

// Browse returns the live entries of service ordered by id.
func (r *Registry) Browse(service string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := []Entry{}
	for id, e := range r.services[service] {
		if !now.Before(e.ExpiresAt) {
			delete(r.services[service], id)
			continue
		}
		out = append(out, e)
	}
	if len(r.services[service]) == 0 {
		delete(r.services, service)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Withdraw removes a peer's advertisement and reports whether it existed.
func (r *Registry) Withdraw(service, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := r.services[service]
	if _, ok := peers[id]; !ok {
		return false
	}
	delete(peers, id)
	if len(peers) == 0 {
		delete(r.services, service)
	}
	return true
}
