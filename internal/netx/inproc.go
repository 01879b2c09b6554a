package netx

import (
	"context"
	"sync"

	"cardmesh/internal/protocol"
)

// Hub connects in-process endpoints as if they shared a mesh. Handy for
// tests and single-process demos without sockets.
type Hub struct {
	mu        sync.RWMutex
	endpoints []*Inproc
}

func NewHub() *Hub { return &Hub{} }

// Endpoint returns a new Network attached to the hub.
func (h *Hub) Endpoint() *Inproc {
	ep := &Inproc{
		hub:    h,
		inbox:  make(chan protocol.NetMessage, 1024),
		outbox: make(chan protocol.NetMessage, 1024),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.endpoints = append(h.endpoints, ep)
	h.mu.Unlock()
	return ep
}

func (h *Hub) remove(ep *Inproc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.endpoints {
		if e == ep {
			h.endpoints = append(h.endpoints[:i], h.endpoints[i+1:]...)
			return
		}
	}
}

// fanout delivers msg to every endpoint except the sender, in send order
// per sender.
func (h *Hub) fanout(from *Inproc, msg protocol.NetMessage) {
	h.mu.RLock()
	peers := make([]*Inproc, 0, len(h.endpoints))
	for _, e := range h.endpoints {
		if e != from {
			peers = append(peers, e)
		}
	}
	h.mu.RUnlock()
	for _, p := range peers {
		select {
		case p.inbox <- msg:
		case <-p.done:
		}
	}
}

// Inproc is one endpoint of a Hub.
type Inproc struct {
	hub    *Hub
	inbox  chan protocol.NetMessage
	outbox chan protocol.NetMessage

	closeOnce sync.Once
	done      chan struct{}
}

// NewInproc returns an endpoint on a private hub; nothing is delivered
// until another endpoint joins that hub.
func NewInproc() *Inproc { return NewHub().Endpoint() }

func (n *Inproc) Hub() *Hub                           { return n.hub }
func (n *Inproc) Inbox() <-chan protocol.NetMessage  { return n.inbox }
func (n *Inproc) Outbox() chan<- protocol.NetMessage { return n.outbox }

func (n *Inproc) Start(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-n.done:
				return
			case msg := <-n.outbox:
				n.hub.fanout(n, msg)
			}
		}
	}()
	return nil
}

func (n *Inproc) Close() error {
	n.closeOnce.Do(func() {
		close(n.done)
		n.hub.remove(n)
	})
	return nil
}
