package peer

import (
	"context"
	"sync"
	"time"
)

// ID identifies a device or process taking part in a session.
type ID string

// SessionState is a remote peer's state in the local session.
type SessionState int

const (
	StateNotConnected SessionState = iota
	StateConnecting
	StateConnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "not_connected"
	}
}

// EventKind enumerates what a Transport reports.
type EventKind string

const (
	EventPeerFound       EventKind = "peer_found"
	EventPeerLost        EventKind = "peer_lost"
	EventInvitation      EventKind = "invitation"
	EventStateChanged    EventKind = "state_changed"
	EventData            EventKind = "data"
	EventResource        EventKind = "resource"
	EventStream          EventKind = "stream"
	EventAdvertiseFailed EventKind = "advertise_failed"
	EventBrowseFailed    EventKind = "browse_failed"
)

// Event is one notification from a Transport. Which fields are set depends on Kind.
type Event struct {
	Kind       EventKind
	Peer       ID
	State      SessionState // EventStateChanged
	Data       []byte       // EventData
	Name       string       // EventResource, EventStream
	Err        error        // EventAdvertiseFailed, EventBrowseFailed
	Invitation *Invitation  // EventInvitation
}

// Invitation is an inbound request from From to join To's session.
// Only the first Respond call has an effect.
type Invitation struct {
	From    ID
	To      ID
	Context []byte

	once    sync.Once
	respond func(accept bool)
}

// NewInvitation is used by transports to hand an invitation to the manager.
func NewInvitation(from, to ID, payload []byte, respond func(accept bool)) *Invitation {
	return &Invitation{From: from, To: to, Context: payload, respond: respond}
}

// Respond accepts or declines the invitation.
func (inv *Invitation) Respond(accept bool) {
	inv.once.Do(func() {
		if inv.respond != nil {
			inv.respond(accept)
		}
	})
}

// Transport advertises, browses, and carries session traffic.
//
// Start returns a channel of events that stays open until Stop; Stop must not
// return before the channel is closed. Invite must not block on the handshake:
// its outcome arrives later as EventStateChanged. Send is reliable and ordered
// per peer, and fails if any recipient is not connected.
type Transport interface {
	Start(ctx context.Context, serviceID string, local ID) (<-chan Event, error)
	Invite(to ID, payload []byte, timeout time.Duration) error
	Send(ctx context.Context, data []byte, to []ID) error
	Stop() error
}
