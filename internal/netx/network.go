package netx

import (
	"context"

	"cardmesh/internal/protocol"
)

// Network moves envelopes between peers. Everything put on Outbox is sent
// to every connected peer; addressing is filtered by the receiver.
type Network interface {
	Inbox() <-chan protocol.NetMessage
	Outbox() chan<- protocol.NetMessage
	Start(ctx context.Context) error
	Close() error
}

// PeerAdder is implemented by transports that can dial a peer after start.
type PeerAdder interface {
	AddPeer(addr string) error
}
