package netx

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
)

const tcpDialTimeout = 5 * time.Second

// TCP implements Network over plain sockets carrying Encode frames. Each
// peer gets a reader and a writer goroutine; Outbox fans out to all of them.
type TCP struct {
	addr   string
	inbox  chan protocol.NetMessage
	outbox chan protocol.NetMessage

	ctx   context.Context
	ln    net.Listener
	mu    sync.RWMutex
	peers map[string]*tcpPeer
}

type tcpPeer struct {
	addr      string
	conn      net.Conn
	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func NewTCP(addr string) *TCP {
	return &TCP{
		addr:   addr,
		ctx:    context.Background(),
		inbox:  make(chan protocol.NetMessage, 4096),
		outbox: make(chan protocol.NetMessage, 4096),
		peers:  make(map[string]*tcpPeer),
	}
}

func (t *TCP) Inbox() <-chan protocol.NetMessage  { return t.inbox }
func (t *TCP) Outbox() chan<- protocol.NetMessage { return t.outbox }

// Addr is the bound listen address once started.
func (t *TCP) Addr() string {
	if t.ln != nil {
		return t.ln.Addr().String()
	}
	return t.addr
}

func (t *TCP) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.ln = ln
	t.ctx = ctx
	log.Info("tcp listening on %s", ln.Addr())

	go t.acceptLoop(ln)
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = t.Close()
				return
			case msg := <-t.outbox:
				t.broadcast(msg)
			}
		}
	}()
	return nil
}

func (t *TCP) acceptLoop(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("accept error: %v", err)
			continue
		}
		t.addConn(c.RemoteAddr().String(), c)
	}
}

func (t *TCP) Close() error {
	if t.ln != nil {
		_ = t.ln.Close()
	}
	t.mu.Lock()
	peers := t.peers
	t.peers = map[string]*tcpPeer{}
	t.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
	return nil
}

// AddPeer dials a remote and registers it as a peer.
func (t *TCP) AddPeer(addr string) error {
	d := net.Dialer{Timeout: tcpDialTimeout}
	c, err := d.DialContext(t.ctx, "tcp", addr)
	if err != nil {
		return err
	}
	t.addConn(addr, c)
	return nil
}

// Peers lists connected peer addresses.
func (t *TCP) Peers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.peers))
	for addr := range t.peers {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func (t *TCP) addConn(addr string, c net.Conn) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	p := &tcpPeer{addr: addr, conn: c, send: make(chan []byte, 256), closed: make(chan struct{})}
	t.mu.Lock()
	if old, ok := t.peers[addr]; ok {
		old.close()
	}
	t.peers[addr] = p
	t.mu.Unlock()
	log.Info("peer connected: %s", addr)

	go t.writeLoop(p)
	go t.readLoop(p)
}

func (t *TCP) dropPeer(p *tcpPeer) {
	p.close()
	t.mu.Lock()
	if cur, ok := t.peers[p.addr]; ok && cur == p {
		delete(t.peers, p.addr)
		log.Info("peer disconnected: %s", p.addr)
	}
	t.mu.Unlock()
}

func (t *TCP) readLoop(p *tcpPeer) {
	defer t.dropPeer(p)

	r := bufio.NewReader(p.conn)
	for {
		msg, err := Decode(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && t.ctx.Err() == nil {
				log.Warn("read error from %s: %v", p.addr, err)
			}
			return
		}
		select {
		case t.inbox <- msg:
		case <-p.closed:
			return
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *TCP) writeLoop(p *tcpPeer) {
	defer func() {
		t.dropPeer(p)
		_ = p.conn.Close()
	}()
	for {
		select {
		case <-p.closed:
			return
		case frame := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := p.conn.Write(frame); err != nil {
				log.Warn("write error to %s: %v", p.addr, err)
				return
			}
		}
	}
}

func (t *TCP) broadcast(msg protocol.NetMessage) {
	frame, err := Encode(msg)
	if err != nil {
		log.Error("encode error: %v", err)
		return
	}
	t.mu.RLock()
	peers := make([]*tcpPeer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.RUnlock()
	for _, p := range peers {
		select {
		case p.send <- frame:
		case <-p.closed:
		}
	}
}

func (p *tcpPeer) close() {
	p.closeOnce.Do(func() { close(p.closed) })
}
