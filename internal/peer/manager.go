// internal/peer/manager.go
//
// Peer session manager.
// Responsibilities:
//   - Advertise and browse under one service identifier through a Transport.
//   - Invite every discovered peer (one outstanding invitation per peer).
//   - Answer inbound invitations through a Policy (accept-all by default).
//   - Track the connected-peer set and greet each newly connected peer.
//   - Send UTF-8 text reliably and keep the last message received.
//
// Notes:
//   - Transport events are consumed by a single goroutine; every state change
//     happens there or under m.mu, and observers run on that goroutine.
//     Stop waits for it, so an observer that wants to end the session must call
//     Stop from another goroutine.
//   - Each Start opens a new run; events still queued from an earlier run are
//     discarded, so nothing is applied or reported after Stop returns.
package peer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Greeting is broadcast to all connected peers whenever a peer connects.
const Greeting = "Congrats"

// DefaultInviteTimeout bounds an outgoing invitation.
const DefaultInviteTimeout = 10 * time.Second

// UpdateKind says what an Update reports.
type UpdateKind string

const (
	UpdatePeers           UpdateKind = "peers"
	UpdateMessage         UpdateKind = "message"
	UpdateAdvertiseFailed UpdateKind = "advertise_failed"
	UpdateBrowseFailed    UpdateKind = "browse_failed"
)

// Update is delivered to subscribers.
type Update struct {
	Kind    UpdateKind
	Peers   []ID   // connected peers after the change (UpdatePeers)
	From    ID     // sender (UpdateMessage)
	Message string // UpdateMessage
	Err     error  // UpdateAdvertiseFailed, UpdateBrowseFailed
}

// Manager owns one peer session. Create it with NewManager; it is inert until Start.
type Manager struct {
	transport     Transport
	policy        Policy
	inviteTimeout time.Duration
	inviteContext func(from, to ID) ([]byte, error)
	greeting      string
	log           zerolog.Logger

	mu        sync.Mutex
	running   bool
	run       uint64 // incremented by every Start
	serviceID string
	local     ID
	connected map[ID]struct{}
	inviting  map[ID]struct{}
	last      string
	hasLast   bool
	cancel    context.CancelFunc
	done      chan struct{}

	obsMu     sync.RWMutex
	observers map[int]func(Update)
	obsNext   int
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithPolicy replaces the accept-all invitation policy.
func WithPolicy(p Policy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// WithInviteTimeout bounds outgoing invitations.
func WithInviteTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.inviteTimeout = d }
}

// WithInvitationContext attaches the bytes returned by f to every outgoing invitation.
func WithInvitationContext(f func(from, to ID) ([]byte, error)) ManagerOption {
	return func(m *Manager) { m.inviteContext = f }
}

// WithGreeting replaces the message broadcast on connect; empty disables it.
func WithGreeting(text string) ManagerOption {
	return func(m *Manager) { m.greeting = text }
}

// WithLogger sets the manager's logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// NewManager returns a stopped manager over t.
func NewManager(t Transport, opts ...ManagerOption) *Manager {
	m := &Manager{
		transport:     t,
		policy:        AcceptAll,
		inviteTimeout: DefaultInviteTimeout,
		greeting:      Greeting,
		log:           log.Logger,
		connected:     make(map[ID]struct{}),
		inviting:      make(map[ID]struct{}),
		observers:     make(map[int]func(Update)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins advertising and browsing under serviceID as local.
// Calling Start on a running manager does nothing. ctx bounds the transport;
// Stop must still be called to release it.
func (m *Manager) Start(ctx context.Context, serviceID string, local ID) error {
	if serviceID == "" || local == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	events, err := m.transport.Start(runCtx, serviceID, local)
	if err != nil {
		cancel()
		return fmt.Errorf("start transport: %w", err)
	}
	m.run++
	m.running = true
	m.serviceID = serviceID
	m.local = local
	m.connected = make(map[ID]struct{})
	m.inviting = make(map[ID]struct{})
	m.cancel = cancel
	m.done = make(chan struct{})
	m.log.Info().Str("service", serviceID).Str("peer", string(local)).Msg("peer session started")
	go m.loop(runCtx, m.run, events, m.done)
	return nil
}

// Stop halts advertising and browsing, closes the session, and clears the
// connected peers. No update is delivered after Stop returns.
// Stop blocks until the event loop exits; calling it from an observer deadlocks,
// use go m.Stop() there instead.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	hadPeers := len(m.connected) > 0
	m.connected = make(map[ID]struct{})
	m.inviting = make(map[ID]struct{})
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	err := m.transport.Stop()
	<-done
	if hadPeers {
		m.emit(Update{Kind: UpdatePeers, Peers: []ID{}})
	}
	m.log.Info().Msg("peer session stopped")
	if err != nil {
		return fmt.Errorf("stop transport: %w", err)
	}
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Local returns the identity passed to Start.
func (m *Manager) Local() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// ConnectedPeers returns the connected peers ordered by id.
func (m *Manager) ConnectedPeers() []ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peersLocked()
}

// LastReceivedMessage returns the most recent decodable message, if any.
func (m *Manager) LastReceivedMessage() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// Send transmits text reliably to the given peers. Any failure is returned as a
// *SendError and leaves the session open.
func (m *Manager) Send(ctx context.Context, text string, to []ID) error {
	if len(to) == 0 {
		return &SendError{Err: ErrNoPeers}
	}
	if !utf8.ValidString(text) {
		return &SendError{Peers: to, Err: ErrEncoding}
	}
	if !m.Running() {
		return &SendError{Peers: to, Err: ErrNotStarted}
	}
	if err := m.transport.Send(ctx, []byte(text), to); err != nil {
		return &SendError{Peers: to, Err: err}
	}
	return nil
}

// Broadcast sends text to every connected peer.
func (m *Manager) Broadcast(ctx context.Context, text string) error {
	return m.Send(ctx, text, m.ConnectedPeers())
}

// Subscribe registers fn for every update. The returned func unsubscribes.
// fn runs on the event loop and must not call Stop synchronously.
func (m *Manager) Subscribe(fn func(Update)) (cancel func()) {
	m.obsMu.Lock()
	id := m.obsNext
	m.obsNext++
	m.observers[id] = fn
	m.obsMu.Unlock()
	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// event loop

func (m *Manager) loop(ctx context.Context, run uint64, events <-chan Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ctx, run, ev)
		}
	}
}

func (m *Manager) handle(ctx context.Context, run uint64, ev Event) {
	if !m.current(run) {
		return
	}
	switch ev.Kind {
	case EventPeerFound:
		m.invite(run, ev.Peer)
	case EventPeerLost:
		m.log.Debug().Str("peer", string(ev.Peer)).Msg("peer lost")
	case EventInvitation:
		m.answer(ev.Invitation)
	case EventStateChanged:
		m.stateChanged(ctx, run, ev.Peer, ev.State)
	case EventData:
		m.received(run, ev.Peer, ev.Data)
	case EventResource, EventStream:
		m.log.Debug().Str("peer", string(ev.Peer)).Str("kind", string(ev.Kind)).
			Str("name", ev.Name).Msg("transfer ignored")
	case EventAdvertiseFailed:
		m.log.Warn().Err(ev.Err).Msg("advertising did not start")
		m.emit(Update{Kind: UpdateAdvertiseFailed, Err: ev.Err})
	case EventBrowseFailed:
		m.log.Warn().Err(ev.Err).Msg("browsing did not start")
		m.emit(Update{Kind: UpdateBrowseFailed, Err: ev.Err})
	}
}

func (m *Manager) invite(run uint64, p ID) {
	m.mu.Lock()
	if !m.currentLocked(run) || p == m.local {
		m.mu.Unlock()
		return
	}
	if _, ok := m.connected[p]; ok {
		m.mu.Unlock()
		return
	}
	if _, ok := m.inviting[p]; ok {
		m.mu.Unlock()
		return
	}
	m.inviting[p] = struct{}{}
	local := m.local
	m.mu.Unlock()

	var ictx []byte
	if m.inviteContext != nil {
		var err error
		if ictx, err = m.inviteContext(local, p); err != nil {
			m.log.Warn().Err(err).Str("peer", string(p)).Msg("build invitation")
			m.clearInvite(run, p)
			return
		}
	}
	if err := m.transport.Invite(p, ictx, m.inviteTimeout); err != nil {
		m.log.Warn().Err(err).Str("peer", string(p)).Msg("invite peer")
		m.clearInvite(run, p)
		return
	}
	m.log.Debug().Str("peer", string(p)).Dur("timeout", m.inviteTimeout).Msg("invited peer")
}

func (m *Manager) clearInvite(run uint64, p ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentLocked(run) {
		delete(m.inviting, p)
	}
}

func (m *Manager) answer(inv *Invitation) {
	if inv == nil {
		return
	}
	accept := m.policy(inv)
	m.log.Debug().Str("peer", string(inv.From)).Bool("accept", accept).Msg("invitation received")
	inv.Respond(accept)
}

func (m *Manager) stateChanged(ctx context.Context, run uint64, p ID, st SessionState) {
	m.mu.Lock()
	if !m.currentLocked(run) {
		m.mu.Unlock()
		return
	}
	if st != StateConnecting {
		delete(m.inviting, p)
	}
	_, present := m.connected[p]
	changed := false
	switch {
	case st == StateConnected && !present:
		m.connected[p] = struct{}{}
		changed = true
	case st != StateConnected && present:
		delete(m.connected, p)
		changed = true
	}
	peers := m.peersLocked()
	m.mu.Unlock()

	m.log.Debug().Str("peer", string(p)).Str("state", st.String()).Msg("session state changed")
	if !changed {
		return
	}
	m.emit(Update{Kind: UpdatePeers, Peers: peers})
	if st == StateConnected && m.greeting != "" {
		if err := m.Send(ctx, m.greeting, peers); err != nil {
			m.log.Warn().Err(err).Msg("send greeting")
		}
	}
}

func (m *Manager) received(run uint64, from ID, data []byte) {
	if !utf8.Valid(data) {
		m.log.Debug().Str("peer", string(from)).Int("bytes", len(data)).Msg("undecodable message dropped")
		return
	}
	msg := string(data)
	m.mu.Lock()
	if !m.currentLocked(run) {
		m.mu.Unlock()
		return
	}
	m.last, m.hasLast = msg, true
	m.mu.Unlock()
	m.emit(Update{Kind: UpdateMessage, From: from, Message: msg})
}

func (m *Manager) current(run uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(run)
}

func (m *Manager) currentLocked(run uint64) bool { return m.running && m.run == run }

func (m *Manager) peersLocked() []ID {
	out := make([]ID, 0, len(m.connected))
	for p := range m.connected {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) emit(u Update) {
	m.obsMu.RLock()
	fns := make([]func(Update), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.RUnlock()
	for _, fn := range fns {
		fn(u)
	}
}
