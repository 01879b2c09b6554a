package netx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
)

const MeshPath = "/mesh"

var (
	pongWait     = 30 * time.Second
	writeWait    = 10 * time.Second
	pingInterval = (pongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WS implements Network over websocket connections. Every node serves
// MeshPath and dials its peers there; frames are binary JSON envelopes.
type WS struct {
	addr   string
	inbox  chan protocol.NetMessage
	outbox chan protocol.NetMessage

	ctx   context.Context
	ln    net.Listener
	srv   *http.Server
	mu    sync.RWMutex
	peers map[string]*wsPeer
}

// wsPeer owns one connection. gorilla allows a single concurrent writer,
// so all writes go through send.
type wsPeer struct {
	addr      string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func NewWS(addr string) *WS {
	return &WS{
		addr:   addr,
		ctx:    context.Background(),
		inbox:  make(chan protocol.NetMessage, 4096),
		outbox: make(chan protocol.NetMessage, 4096),
		peers:  make(map[string]*wsPeer),
	}
}

func (w *WS) Inbox() <-chan protocol.NetMessage  { return w.inbox }
func (w *WS) Outbox() chan<- protocol.NetMessage { return w.outbox }

func (w *WS) Addr() string {
	if w.ln != nil {
		return w.ln.Addr().String()
	}
	return w.addr
}

func (w *WS) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return err
	}
	w.ln = ln
	w.ctx = ctx

	mux := http.NewServeMux()
	mux.HandleFunc(MeshPath, w.serveMesh)
	w.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("websocket server: %v", err)
		}
	}()
	log.Info("websocket mesh listening on ws://%s%s", ln.Addr(), MeshPath)

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return
			case msg := <-w.outbox:
				w.broadcast(msg)
			}
		}
	}()
	return nil
}

func (w *WS) serveMesh(rw http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Warn("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	w.addConn(r.RemoteAddr, conn)
}

// AddPeer dials ws://addr/mesh.
func (w *WS) AddPeer(addr string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: MeshPath}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(w.ctx, u.String(), nil)
	if err != nil {
		return err
	}
	w.addConn(addr, conn)
	return nil
}

func (w *WS) Peers() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.peers))
	for addr := range w.peers {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func (w *WS) Close() error {
	if w.srv != nil {
		_ = w.srv.Close()
	}
	w.mu.Lock()
	peers := w.peers
	w.peers = map[string]*wsPeer{}
	w.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
	return nil
}

func (w *WS) addConn(addr string, conn *websocket.Conn) {
	p := &wsPeer{addr: addr, conn: conn, send: make(chan []byte, 256), closed: make(chan struct{})}
	w.mu.Lock()
	if old, ok := w.peers[addr]; ok {
		old.close()
	}
	w.peers[addr] = p
	w.mu.Unlock()
	log.Info("peer connected: %s", addr)

	go w.writeLoop(p)
	go w.readLoop(p)
}

func (w *WS) dropPeer(p *wsPeer) {
	p.close()
	w.mu.Lock()
	if cur, ok := w.peers[p.addr]; ok && cur == p {
		delete(w.peers, p.addr)
		log.Info("peer disconnected: %s", p.addr)
	}
	w.mu.Unlock()
}

func (w *WS) readLoop(p *wsPeer) {
	defer w.dropPeer(p)

	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error from %s: %v", p.addr, err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			log.Warn("unsupported frame type %d from %s", mt, p.addr)
			continue
		}
		msg, err := Unmarshal(data)
		if err != nil {
			log.Warn("bad frame from %s: %v", p.addr, err)
			continue
		}
		select {
		case w.inbox <- msg:
		case <-p.closed:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *WS) writeLoop(p *wsPeer) {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		w.dropPeer(p)
		_ = p.conn.Close()
	}()
	for {
		select {
		case <-p.closed:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Warn("write error to %s: %v", p.addr, err)
				return
			}
		case <-ping.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("ping to %s failed: %v", p.addr, err)
				return
			}
		}
	}
}

func (w *WS) broadcast(msg protocol.NetMessage) {
	data, err := Marshal(msg)
	if err != nil {
		log.Error("encode error: %v", err)
		return
	}
	w.mu.RLock()
	peers := make([]*wsPeer, 0, len(w.peers))
	for _, p := range w.peers {
		peers = append(peers, p)
	}
	w.mu.RUnlock()
	for _, p := range peers {
		select {
		case p.send <- data:
		case <-p.closed:
		}
	}
}

func (p *wsPeer) close() {
	// writeLoop sends the close frame and releases the socket
	p.closeOnce.Do(func() { close(p.closed) })
}
