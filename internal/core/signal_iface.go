package core

import (
	"context"

	"github.com/dkeye/Conference/internal/protocol"
)

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts the server side of a participant's signaling socket.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Signaler is the client side of the signaling channel.
// Request blocks until the correlated response arrives, the channel drops or ctx ends.
// Pushed events are delivered to the subscribed handler in arrival order.
type Signaler interface {
	Request(ctx context.Context, method protocol.Method, payload, out any) error
	Subscribe(handler func(protocol.Event))
	Close() error
}
