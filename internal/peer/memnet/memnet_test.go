package memnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ninjadash54/simonsays/internal/peer"
)

func next(t *testing.T, ch <-chan peer.Event, kind peer.EventKind) peer.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestDiscoverInviteSend(t *testing.T) {
	n := NewNetwork()
	a, b := n.NewTransport(), n.NewTransport()
	ea, err := a.Start(context.Background(), "svc", "a")
	require.NoError(t, err)
	eb, err := b.Start(context.Background(), "svc", "b")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(); _ = b.Stop() })

	_, err = a.Start(context.Background(), "svc", "a")
	require.ErrorIs(t, err, ErrStarted)

	require.Equal(t, peer.ID("b"), next(t, ea, peer.EventPeerFound).Peer)
	require.Equal(t, peer.ID("a"), next(t, eb, peer.EventPeerFound).Peer)

	require.ErrorIs(t, a.Send(context.Background(), []byte("x"), []peer.ID{"b"}), peer.ErrNotConnected)
	require.ErrorIs(t, a.Invite("zed", nil, time.Second), peer.ErrUnknownPeer)

	require.NoError(t, a.Invite("b", []byte("ctx"), time.Second))
	require.Equal(t, peer.StateConnecting, next(t, ea, peer.EventStateChanged).State)
	inv := next(t, eb, peer.EventInvitation).Invitation
	require.Equal(t, []byte("ctx"), inv.Context)
	require.Equal(t, peer.ID("a"), inv.From)
	inv.Respond(true)
	inv.Respond(false)

	require.Equal(t, peer.StateConnected, next(t, ea, peer.EventStateChanged).State)
	require.Equal(t, peer.StateConnected, next(t, eb, peer.EventStateChanged).State)

	require.NoError(t, a.Send(context.Background(), []byte("hello"), []peer.ID{"b"}))
	ev := next(t, eb, peer.EventData)
	require.Equal(t, peer.ID("a"), ev.Peer)
	require.Equal(t, "hello", string(ev.Data))

	require.NoError(t, a.Stop())
	_, ok := <-ea
	require.False(t, ok)
	st := next(t, eb, peer.EventStateChanged)
	require.Equal(t, peer.StateNotConnected, st.State)
	require.Equal(t, peer.ID("a"), next(t, eb, peer.EventPeerLost).Peer)
	require.ErrorIs(t, b.Send(context.Background(), []byte("x"), []peer.ID{"a"}), peer.ErrNotConnected)
}

func TestDeclineReportsNotConnected(t *testing.T) {
	n := NewNetwork()
	a, b := n.NewTransport(), n.NewTransport()
	ea, err := a.Start(context.Background(), "svc", "a")
	require.NoError(t, err)
	eb, err := b.Start(context.Background(), "svc", "b")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(); _ = b.Stop() })

	require.NoError(t, a.Invite("b", nil, 0))
	require.Equal(t, peer.StateConnecting, next(t, ea, peer.EventStateChanged).State)
	next(t, eb, peer.EventInvitation).Invitation.Respond(false)
	require.Equal(t, peer.StateNotConnected, next(t, ea, peer.EventStateChanged).State)
}
