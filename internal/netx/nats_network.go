package netx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
)

var ErrNotConnected = errors.New("nats: not connected")

// NATS implements Network on a NATS server. Broadcasts go to
// "<prefix>.all"; messages with a recipient go to "<prefix>.peer.<id>".
type NATS struct {
	url    string
	prefix string
	self   protocol.NodeID
	inbox  chan protocol.NetMessage
	outbox chan protocol.NetMessage

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

func NewNATS(url, prefix string, self protocol.NodeID) *NATS {
	if prefix == "" {
		prefix = "cardmesh"
	}
	return &NATS{
		url:    url,
		prefix: prefix,
		self:   self,
		inbox:  make(chan protocol.NetMessage, 4096),
		outbox: make(chan protocol.NetMessage, 4096),
	}
}

func (n *NATS) Inbox() <-chan protocol.NetMessage  { return n.inbox }
func (n *NATS) Outbox() chan<- protocol.NetMessage { return n.outbox }

func (n *NATS) BroadcastSubject() string { return n.prefix + ".all" }

func (n *NATS) PeerSubject(id protocol.NodeID) string {
	return fmt.Sprintf("%s.peer.%s", n.prefix, id)
}

func (n *NATS) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil && n.conn.IsConnected()
}

func (n *NATS) Start(ctx context.Context) error {
	log.Info("connecting to nats at %s", n.url)
	conn, err := nats.Connect(n.url, nats.Name("cardmesh-"+n.self.Short()), nats.NoEcho())
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()

	for _, subject := range []string{n.BroadcastSubject(), n.PeerSubject(n.self)} {
		sub, err := conn.Subscribe(subject, func(m *nats.Msg) { n.deliver(ctx, m) })
		if err != nil {
			conn.Close()
			return fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
		n.subs = append(n.subs, sub)
	}
	// subscriptions must reach the server before anything is published
	if err := conn.Flush(); err != nil {
		conn.Close()
		return fmt.Errorf("nats flush: %w", err)
	}
	log.Info("nats mesh ready on %s", n.BroadcastSubject())

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = n.Close()
				return
			case msg := <-n.outbox:
				if err := n.publish(msg); err != nil {
					log.Warn("nats publish %s: %v", msg.Type, err)
				}
			}
		}
	}()
	return nil
}

func (n *NATS) deliver(ctx context.Context, m *nats.Msg) {
	msg, err := Unmarshal(m.Data)
	if err != nil {
		log.Warn("bad frame on %s: %v", m.Subject, err)
		return
	}
	select {
	case n.inbox <- msg:
	case <-ctx.Done():
	}
}

func (n *NATS) publish(msg protocol.NetMessage) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	data, err := Marshal(msg)
	if err != nil {
		return err
	}
	subject := n.BroadcastSubject()
	if msg.To != "" {
		subject = n.PeerSubject(msg.To)
	}
	return conn.Publish(subject, data)
}

func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	for _, s := range n.subs {
		_ = s.Unsubscribe()
	}
	n.subs = nil
	n.conn.Close()
	n.conn = nil
	log.Info("nats connection closed")
	return nil
}
