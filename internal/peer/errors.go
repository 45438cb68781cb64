package peer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotStarted   = errors.New("peer: manager not started")
	ErrNoPeers      = errors.New("peer: no recipients")
	ErrEncoding     = errors.New("peer: message is not valid UTF-8")
	ErrNotConnected = errors.New("peer: recipient not connected")
	ErrUnknownPeer  = errors.New("peer: unknown peer")
	ErrInvalidID    = errors.New("peer: service and local identity are required")
)

// SendError reports a failed Send. The session stays open; nothing is retried.
type SendError struct {
	Peers []ID
	Err   error
}

func (e *SendError) Error() string {
	names := make([]string, len(e.Peers))
	for i, p := range e.Peers {
		names[i] = string(p)
	}
	return fmt.Sprintf("send to [%s]: %v", strings.Join(names, ","), e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
