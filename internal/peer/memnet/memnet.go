// Package memnet is an in-process peer.Transport. Every Transport created from
// the same Network sees the others that started under the same service id.
package memnet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ninjadash54/simonsays/internal/peer"
)

var ErrStarted = errors.New("memnet: transport already started")

// Network connects in-process transports.
type Network struct {
	mu    sync.Mutex
	nodes map[peer.ID]*Transport
	links map[link]struct{}
}

type link struct{ a, b peer.ID }

func pair(x, y peer.ID) link {
	if x > y {
		x, y = y, x
	}
	return link{x, y}
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		nodes: make(map[peer.ID]*Transport),
		links: make(map[link]struct{}),
	}
}

// Transport is one node. Set AdvertiseErr or BrowseErr before Start to make
// advertising or browsing fail.
type Transport struct {
	net *Network

	AdvertiseErr error
	BrowseErr    error

	mu      sync.Mutex
	service string
	local   peer.ID
	running bool
	queue   []peer.Event
	signal  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTransport returns a stopped node on n.
func (n *Network) NewTransport() *Transport {
	return &Transport{net: n}
}

// Start joins the network. Lock order is Network.mu before Transport.mu.
func (t *Transport) Start(ctx context.Context, serviceID string, local peer.ID) (<-chan peer.Event, error) {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil, ErrStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan peer.Event)
	t.service = serviceID
	t.local = local
	t.running = true
	t.queue = nil
	t.signal = make(chan struct{}, 1)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.pump(ctx, out, t.signal, t.done)
	t.mu.Unlock()

	if t.AdvertiseErr != nil {
		t.post(peer.Event{Kind: peer.EventAdvertiseFailed, Err: t.AdvertiseErr})
	}
	if t.BrowseErr != nil {
		t.post(peer.Event{Kind: peer.EventBrowseFailed, Err: t.BrowseErr})
	}
	for id, other := range n.nodes {
		if other.service != serviceID {
			continue
		}
		if t.BrowseErr == nil {
			t.post(peer.Event{Kind: peer.EventPeerFound, Peer: id})
		}
		if t.AdvertiseErr == nil && other.BrowseErr == nil {
			other.post(peer.Event{Kind: peer.EventPeerFound, Peer: local})
		}
	}
	n.nodes[local] = t
	return out, nil
}

// Invite asks to to join a session. The answer or the timeout is reported as
// an EventStateChanged.
func (t *Transport) Invite(to peer.ID, payload []byte, timeout time.Duration) error {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if !t.isRunning() {
		return peer.ErrNotStarted
	}
	target, ok := n.nodes[to]
	if !ok || target.service != t.service {
		return peer.ErrUnknownPeer
	}
	if _, ok := n.links[pair(t.local, to)]; ok {
		return nil
	}
	from := t.local
	t.post(peer.Event{Kind: peer.EventStateChanged, Peer: to, State: peer.StateConnecting})

	var once sync.Once
	settle := func(accept bool) {
		once.Do(func() { n.settle(t, target, from, to, accept) })
	}
	if timeout > 0 {
		time.AfterFunc(timeout, func() { settle(false) })
	}
	target.post(peer.Event{
		Kind:       peer.EventInvitation,
		Peer:       from,
		Invitation: peer.NewInvitation(from, to, payload, settle),
	})
	return nil
}

func (n *Network) settle(inviter, target *Transport, from, to peer.ID, accept bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nodes[from] != inviter || n.nodes[to] != target {
		return
	}
	if !accept {
		inviter.post(peer.Event{Kind: peer.EventStateChanged, Peer: to, State: peer.StateNotConnected})
		return
	}
	key := pair(from, to)
	if _, ok := n.links[key]; ok {
		return
	}
	n.links[key] = struct{}{}
	inviter.post(peer.Event{Kind: peer.EventStateChanged, Peer: to, State: peer.StateConnected})
	target.post(peer.Event{Kind: peer.EventStateChanged, Peer: from, State: peer.StateConnected})
}

// Send delivers data to every peer in to, or to none if any is not connected.
func (t *Transport) Send(_ context.Context, data []byte, to []peer.ID) error {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if !t.isRunning() {
		return peer.ErrNotStarted
	}
	for _, id := range to {
		if _, ok := n.links[pair(t.local, id)]; !ok {
			return peer.ErrNotConnected
		}
	}
	for _, id := range to {
		n.nodes[id].post(peer.Event{Kind: peer.EventData, Peer: t.local, Data: append([]byte(nil), data...)})
	}
	return nil
}

// Inject queues ev as if the network had produced it.
func (t *Transport) Inject(ev peer.Event) {
	t.post(ev)
}

// Stop leaves the network and disconnects every link. The event channel is
// closed before Stop returns.
func (t *Transport) Stop() error {
	n := t.net
	n.mu.Lock()
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		n.mu.Unlock()
		return nil
	}
	t.running = false
	cancel, done := t.cancel, t.done
	local := t.local
	t.mu.Unlock()

	if n.nodes[local] == t {
		delete(n.nodes, local)
	}
	for key := range n.links {
		var other peer.ID
		switch local {
		case key.a:
			other = key.b
		case key.b:
			other = key.a
		default:
			continue
		}
		delete(n.links, key)
		if o, ok := n.nodes[other]; ok {
			o.post(peer.Event{Kind: peer.EventStateChanged, Peer: local, State: peer.StateNotConnected})
		}
	}
	for _, o := range n.nodes {
		if o.service == t.service {
			o.post(peer.Event{Kind: peer.EventPeerLost, Peer: local})
		}
	}
	n.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (t *Transport) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Transport) post(ev peer.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.queue = append(t.queue, ev)
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

func (t *Transport) pump(ctx context.Context, out chan<- peer.Event, signal <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer close(out)
	for {
		t.mu.Lock()
		batch := t.queue
		t.queue = nil
		t.mu.Unlock()
		for _, ev := range batch {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-signal:
		case <-ctx.Done():
			return
		}
	}
}
