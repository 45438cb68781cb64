// internal/peer/wsnet/transport.go
//
// peer.Transport over websockets.
// Responsibilities:
//   - Advertise the local link address in the host registry and keep it fresh.
//   - Poll the registry and report peers appearing and disappearing.
//   - Treat the websocket handshake as the invitation: the dialer carries its
//     identity and invitation context in headers, the listener answers through
//     the invitation policy before upgrading.
//   - Carry sealed binary frames (secretbox under an HKDF-derived key).
//
// Notes:
//   - Two peers inviting each other at once keep the link dialled by the lower id.
//   - Session state events are emitted under stateMu so they are observed in the
//     same order as link table changes.

// Package wsnet is a peer.Transport over websockets with registry-based discovery.
package wsnet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"github.com/Ninjadash54/simonsays/internal/peer"
	"github.com/Ninjadash54/simonsays/internal/registry"
)

const (
	headerPeer       = "X-Simon-Peer"
	headerService    = "X-Simon-Service"
	headerInvitation = "X-Simon-Invitation"

	linkPath = "/peer"
	maxFrame = 64 << 10
)

var ErrStarted = errors.New("wsnet: transport already started")

// Config configures a Transport. Zero values get defaults.
type Config struct {
	RegistryURL       string        // base URL of the host serving /registry
	ListenAddr        string        // link listener, default 127.0.0.1:0
	AdvertiseHost     string        // host put in the advertised address
	Name              string        // display name in the registry
	Secret            []byte        // shared link secret
	PollInterval      time.Duration // browse period, default 2s
	AdvertiseInterval time.Duration // refresh period, default 10s
	InviteWait        time.Duration // how long an inbound handshake waits for the policy
	HTTPClient        *http.Client  // registry client
	Logger            *zerolog.Logger
}

type link struct {
	conn   *websocket.Conn
	cancel context.CancelFunc // dial context; nil for inbound links
}

func (l *link) close() {
	_ = l.conn.Close(websocket.StatusNormalClosure, "")
	if l.cancel != nil {
		l.cancel()
	}
}

// Transport is a websocket peer.Transport. Create it with New.
type Transport struct {
	cfg    Config
	log    zerolog.Logger
	client *registryClient

	stateMu sync.Mutex // serialises StateChanged emission

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	service string
	local   peer.ID
	key     *[32]byte
	addr    string
	srv     *http.Server
	events  chan peer.Event
	known   map[peer.ID]string // id -> link address, from the last browse
	links   map[peer.ID]*link
	dialing map[peer.ID]context.CancelFunc
	inbound map[peer.ID]bool // handshakes waiting on the policy
	wg      sync.WaitGroup
}

// New returns a stopped transport.
func New(cfg Config) *Transport {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.AdvertiseInterval <= 0 {
		cfg.AdvertiseInterval = registry.DefaultTTL / 3
	}
	if cfg.InviteWait <= 0 {
		cfg.InviteWait = peer.DefaultInviteTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	l := log.Logger
	if cfg.Logger != nil {
		l = *cfg.Logger
	}
	return &Transport{
		cfg:    cfg,
		log:    l.With().Str("component", "wsnet").Logger(),
		client: &registryClient{base: cfg.RegistryURL, http: cfg.HTTPClient},
	}
}

// Addr returns the advertised link address, empty before Start.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}

func (t *Transport) Start(ctx context.Context, serviceID string, local peer.ID) (<-chan peer.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil, ErrStarted
	}
	key, err := deriveKey(t.cfg.Secret, serviceID)
	if err != nil {
		return nil, fmt.Errorf("derive link key: %w", err)
	}
	ln, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	tcp, _ := ln.Addr().(*net.TCPAddr)
	host := t.cfg.AdvertiseHost
	if host == "" {
		host = "localhost"
		if tcp != nil && !tcp.IP.IsUnspecified() {
			host = tcp.IP.String()
		}
	}
	port := 0
	if tcp != nil {
		port = tcp.Port
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get(linkPath, t.handleLink)

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.service = serviceID
	t.local = local
	t.key = key
	t.addr = "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + linkPath
	t.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	t.events = make(chan peer.Event, 16)
	t.known = make(map[peer.ID]string)
	t.links = make(map[peer.ID]*link)
	t.dialing = make(map[peer.ID]context.CancelFunc)
	t.inbound = make(map[peer.ID]bool)
	t.running = true

	t.wg.Add(3)
	go func(srv *http.Server) {
		defer t.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error().Err(err).Msg("link listener exited")
		}
	}(t.srv)
	go t.advertiseLoop(t.ctx, serviceID, registry.Entry{ID: string(local), Name: t.cfg.Name, Addr: t.addr})
	go t.browseLoop(t.ctx, serviceID, local)

	t.log.Info().Str("addr", t.addr).Str("service", serviceID).Msg("link listener started")
	return t.events, nil
}

// ---------------------------------------------------------------------------
// discovery

func (t *Transport) advertiseLoop(ctx context.Context, service string, e registry.Entry) {
	defer t.wg.Done()
	if err := t.client.advertise(ctx, service, e); err != nil {
		if ctx.Err() == nil {
			t.emit(peer.Event{Kind: peer.EventAdvertiseFailed, Err: err})
		}
		return
	}
	tick := time.NewTicker(t.cfg.AdvertiseInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := t.client.advertise(ctx, service, e); err != nil && ctx.Err() == nil {
				t.log.Warn().Err(err).Msg("refresh advertisement")
			}
		}
	}
}

func (t *Transport) browseLoop(ctx context.Context, service string, local peer.ID) {
	defer t.wg.Done()
	tick := time.NewTicker(t.cfg.PollInterval)
	defer tick.Stop()
	first := true
	for {
		entries, err := t.client.browse(ctx, service)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil && first:
			t.emit(peer.Event{Kind: peer.EventBrowseFailed, Err: err})
			return
		case err != nil:
			t.log.Warn().Err(err).Msg("browse registry")
		default:
			first = false
			t.reconcile(local, entries)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// reconcile diffs a browse result against the known peers.
func (t *Transport) reconcile(local peer.ID, entries []registry.Entry) {
	seen := make(map[peer.ID]bool, len(entries))
	var found, lost []peer.ID
	t.mu.Lock()
	for _, e := range entries {
		id := peer.ID(e.ID)
		if id == local {
			continue
		}
		seen[id] = true
		if _, ok := t.known[id]; !ok {
			found = append(found, id)
		}
		t.known[id] = e.Addr
	}
	for id := range t.known {
		if !seen[id] {
			delete(t.known, id)
			lost = append(lost, id)
		}
	}
	t.mu.Unlock()

	sort.Slice(lost, func(i, j int) bool { return lost[i] < lost[j] })
	for _, id := range found {
		t.emit(peer.Event{Kind: peer.EventPeerFound, Peer: id})
	}
	for _, id := range lost {
		t.emit(peer.Event{Kind: peer.EventPeerLost, Peer: id})
	}
}

// ---------------------------------------------------------------------------
// invitations

// Invite dials to in the background. Inviting a linked peer, or one that is
// already being dialled or is dialling us, does nothing.
func (t *Transport) Invite(to peer.ID, payload []byte, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return peer.ErrNotStarted
	}
	if t.links[to] != nil || t.dialing[to] != nil || t.inbound[to] {
		return nil
	}
	addr, ok := t.known[to]
	if !ok {
		return peer.ErrUnknownPeer
	}
	if timeout <= 0 {
		timeout = peer.DefaultInviteTimeout
	}
	ctx, cancel := context.WithCancel(t.ctx)
	t.dialing[to] = cancel
	t.wg.Add(1)
	go t.dial(ctx, cancel, to, addr, payload, timeout, t.service, t.local)
	return nil
}

func (t *Transport) dial(ctx context.Context, cancel context.CancelFunc, to peer.ID,
	addr string, payload []byte, timeout time.Duration, service string, local peer.ID) {
	defer t.wg.Done()
	t.emitState(to, peer.StateConnecting)

	h := http.Header{}
	h.Set(headerPeer, string(local))
	h.Set(headerService, service)
	if len(payload) > 0 {
		h.Set(headerInvitation, base64.StdEncoding.EncodeToString(payload))
	}
	timer := time.AfterFunc(timeout, cancel)
	conn, _, err := websocket.Dial(ctx, addr, &websocket.DialOptions{HTTPHeader: h})
	timer.Stop()

	t.mu.Lock()
	delete(t.dialing, to)
	t.mu.Unlock()
	if err == nil && ctx.Err() != nil {
		// cancelled by a tie-break, the timeout or Stop after the handshake;
		// the link reads with ctx and would die at once
		_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		err = ctx.Err()
	}

	if err != nil {
		cancel()
		t.log.Debug().Err(err).Str("peer", string(to)).Msg("invitation not accepted")
		t.stateMu.Lock()
		t.mu.Lock()
		skip := !t.running || t.links[to] != nil || t.inbound[to]
		t.mu.Unlock()
		if !skip {
			t.emit(peer.Event{Kind: peer.EventStateChanged, Peer: to, State: peer.StateNotConnected})
		}
		t.stateMu.Unlock()
		return
	}
	conn.SetReadLimit(maxFrame)
	l := &link{conn: conn, cancel: cancel}
	if !t.connect(to, l, false) {
		l.close()
		return
	}
	t.readLoop(ctx, to, l)
}

func (t *Transport) handleLink(w http.ResponseWriter, r *http.Request) {
	from := peer.ID(r.Header.Get(headerPeer))

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		http.Error(w, `{"error":"stopped"}`, http.StatusServiceUnavailable)
		return
	}
	if from == "" || from == t.local || r.Header.Get(headerService) != t.service {
		t.mu.Unlock()
		http.Error(w, `{"error":"bad_peer"}`, http.StatusBadRequest)
		return
	}
	if t.links[from] != nil || t.inbound[from] {
		t.mu.Unlock()
		http.Error(w, `{"error":"already_linked"}`, http.StatusConflict)
		return
	}
	if cancel := t.dialing[from]; cancel != nil {
		if t.local < from {
			t.mu.Unlock()
			http.Error(w, `{"error":"already_linked"}`, http.StatusConflict)
			return
		}
		cancel()
	}
	t.inbound[from] = true
	ctx, local := t.ctx, t.local
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	var payload []byte
	if v := r.Header.Get(headerInvitation); v != "" {
		var err error
		if payload, err = base64.StdEncoding.DecodeString(v); err != nil {
			t.abandon(from)
			http.Error(w, `{"error":"bad_invitation"}`, http.StatusBadRequest)
			return
		}
	}

	decision := make(chan bool, 1)
	inv := peer.NewInvitation(from, local, payload, func(accept bool) { decision <- accept })
	t.emit(peer.Event{Kind: peer.EventInvitation, Peer: from, Invitation: inv})

	accepted := false
	wait := time.NewTimer(t.cfg.InviteWait)
	select {
	case accepted = <-decision:
	case <-wait.C:
	case <-ctx.Done():
	case <-r.Context().Done():
	}
	wait.Stop()
	if !accepted {
		t.abandon(from)
		http.Error(w, `{"error":"declined"}`, http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		t.log.Debug().Err(err).Str("peer", string(from)).Msg("accept link")
		t.abandon(from)
		return
	}
	conn.SetReadLimit(maxFrame)
	l := &link{conn: conn}
	if !t.connect(from, l, true) {
		l.close()
		return
	}
	t.readLoop(ctx, from, l)
}

// abandon ends an inbound handshake that did not produce a link.
func (t *Transport) abandon(from peer.ID) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.mu.Lock()
	delete(t.inbound, from)
	skip := !t.running || t.links[from] != nil
	t.mu.Unlock()
	if !skip {
		t.emit(peer.Event{Kind: peer.EventStateChanged, Peer: from, State: peer.StateNotConnected})
	}
}

// connect records l as the link to id unless one exists.
func (t *Transport) connect(id peer.ID, l *link, inbound bool) bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.mu.Lock()
	if inbound {
		delete(t.inbound, id)
	}
	if !t.running || t.links[id] != nil {
		t.mu.Unlock()
		return false
	}
	t.links[id] = l
	t.mu.Unlock()
	t.log.Debug().Str("peer", string(id)).Bool("inbound", inbound).Msg("link up")
	t.emit(peer.Event{Kind: peer.EventStateChanged, Peer: id, State: peer.StateConnected})
	return true
}

// ---------------------------------------------------------------------------
// traffic

func (t *Transport) readLoop(ctx context.Context, id peer.ID, l *link) {
	t.mu.Lock()
	key := t.key
	t.mu.Unlock()
	for {
		typ, data, err := l.conn.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageBinary {
			continue
		}
		msg, ok := open(key, data)
		if !ok {
			t.log.Debug().Str("peer", string(id)).Int("bytes", len(data)).Msg("unsealed frame dropped")
			continue
		}
		t.emit(peer.Event{Kind: peer.EventData, Peer: id, Data: msg})
	}

	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.mu.Lock()
	removed := t.links[id] == l
	if removed {
		delete(t.links, id)
	}
	running := t.running
	t.mu.Unlock()
	if removed && running {
		t.log.Debug().Str("peer", string(id)).Msg("link down")
		t.emit(peer.Event{Kind: peer.EventStateChanged, Peer: id, State: peer.StateNotConnected})
	}
	l.close()
}

// Send seals data once per recipient and writes it to each link. Nothing is
// written unless every recipient is linked.
func (t *Transport) Send(ctx context.Context, data []byte, to []peer.ID) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return peer.ErrNotStarted
	}
	links := make([]*link, len(to))
	for i, id := range to {
		if links[i] = t.links[id]; links[i] == nil {
			t.mu.Unlock()
			return fmt.Errorf("%s: %w", id, peer.ErrNotConnected)
		}
	}
	key := t.key
	t.mu.Unlock()

	for i, l := range links {
		box, err := seal(key, data)
		if err != nil {
			return err
		}
		if err := l.conn.Write(ctx, websocket.MessageBinary, box); err != nil {
			return fmt.Errorf("write to %s: %w", to[i], err)
		}
	}
	return nil
}

// Stop withdraws the advertisement, closes the listener and every link, and
// closes the event channel once all background work has finished.
func (t *Transport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	cancel, srv, service, local := t.cancel, t.srv, t.service, t.local
	links := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.links = make(map[peer.ID]*link)
	for _, c := range t.dialing {
		c()
	}
	t.mu.Unlock()

	wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := t.client.withdraw(wctx, service, string(local)); err != nil {
		t.log.Debug().Err(err).Msg("withdraw advertisement")
	}
	wcancel()

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := srv.Shutdown(sctx)
	scancel()
	for _, l := range links {
		l.close()
	}
	t.wg.Wait()
	close(t.events)
	t.log.Info().Msg("link listener stopped")
	return err
}

// emitState reports a state change for id in order with link table updates.
func (t *Transport) emitState(id peer.ID, st peer.SessionState) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.emit(peer.Event{Kind: peer.EventStateChanged, Peer: id, State: st})
}

// emit queues ev for the consumer. It gives up only when the transport itself
// is stopping; dial and link contexts never decide whether an event is dropped.
func (t *Transport) emit(ev peer.Event) {
	t.mu.Lock()
	ctx, events := t.ctx, t.events
	t.mu.Unlock()
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
