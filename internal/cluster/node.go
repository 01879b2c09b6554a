package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cardmesh/internal/log"
	"cardmesh/internal/netx"
	"cardmesh/internal/protocol"
	"cardmesh/internal/session"
	"cardmesh/pkg/types"
)

var ErrJoinTimeout = errors.New("join timeout (no snapshot received)")

const defaultJoinTimeout = 3 * time.Second

// Node is one peer: a transport, a router and the sessions it runs.
type Node struct {
	ID   protocol.NodeID
	Name string
	Addr string

	net    netx.Network
	router *Router
	mgr    *GameManager
	clock  *protocol.Lamport

	// JoinTimeout bounds how long JoinGame waits for the host's snapshot.
	JoinTimeout time.Duration

	// join waiters for snapshots of games not yet attached locally
	pendMu    sync.Mutex
	pendingSS map[protocol.GameID]chan protocol.GameSnapshot
}

// NewNode builds a node. An empty id gets a fresh one.
func NewNode(id protocol.NodeID, name, addr string, network netx.Network) *Node {
	if id == "" {
		id = protocol.NewNodeID()
	}
	if name == "" {
		name = id.Short()
	}
	r := NewRouter()
	clk := &protocol.Lamport{}
	self := protocol.PlayerRef{ID: id, Name: name}
	return &Node{
		ID:          id,
		Name:        name,
		Addr:        addr,
		net:         network,
		router:      r,
		mgr:         NewGameManager(self, clk, r, network.Outbox()),
		clock:       clk,
		JoinTimeout: defaultJoinTimeout,
		pendingSS:   make(map[protocol.GameID]chan protocol.GameSnapshot),
	}
}

func (n *Node) Start(ctx context.Context) error {
	n.mgr.bind(ctx)
	if err := n.net.Start(ctx); err != nil {
		return err
	}
	go n.dispatcher(ctx)
	return nil
}

func (n *Node) dispatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.net.Inbox():
			if !msg.For(n.ID) {
				continue
			}
			// Route to the game if present; otherwise see if a join is waiting on it
			if n.router.Route(msg) {
				continue
			}
			if !n.maybeDeliverJoin(msg) {
				log.Debug("dropped %s for game %s (not running here)", msg.Type, msg.Game)
			}
		}
	}
}

func (n *Node) maybeDeliverJoin(msg protocol.NetMessage) bool {
	if msg.Type != protocol.MsgSnapshot || msg.State == nil {
		return false
	}
	n.pendMu.Lock()
	ch, ok := n.pendingSS[msg.Game]
	n.pendMu.Unlock()
	if ok {
		select {
		case ch <- *msg.State:
		default:
		}
	}
	return ok
}

// CreateGame opens a lobby hosted by this node.
func (n *Node) CreateGame(cfg types.GameConfig) (*session.Session, error) {
	id := protocol.NewGameID()
	s, err := n.mgr.HostGame(id, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("game %s: lobby %q open, host %s", id, cfg.Name, n.Name)
	return s, nil
}

// JoinGame asks the mesh to seat this node in gameID, then attaches a
// client session seeded with the host's snapshot.
func (n *Node) JoinGame(ctx context.Context, gameID protocol.GameID) (*session.Session, error) {
	n.pendMu.Lock()
	if _, exists := n.pendingSS[gameID]; exists {
		n.pendMu.Unlock()
		return nil, fmt.Errorf("join of %s already in progress", gameID)
	}
	ch := make(chan protocol.GameSnapshot, 1)
	n.pendingSS[gameID] = ch
	n.pendMu.Unlock()
	defer func() {
		n.pendMu.Lock()
		delete(n.pendingSS, gameID)
		n.pendMu.Unlock()
	}()

	n.net.Outbox() <- protocol.NetMessage{
		Game: gameID, From: n.ID, Type: protocol.MsgJoin, Lamport: n.clock.TickLocal(),
		Action: &protocol.Action{ID: protocol.NewActionID(), Player: protocol.PlayerRef{ID: n.ID, Name: n.Name}},
	}

	ctx, cancel := context.WithTimeout(ctx, n.JoinTimeout)
	defer cancel()
	select {
	case ss := <-ch:
		s, err := n.mgr.AttachClient(gameID, ss)
		if err != nil {
			return nil, err
		}
		log.Info("game %s: joined, host %s", gameID, ss.Host.Name)
		return s, nil
	case <-ctx.Done():
		return nil, ErrJoinTimeout
	}
}

// EndGame stops a local session. On the host every peer is told.
func (n *Node) EndGame(gameID protocol.GameID) error {
	return n.mgr.End(gameID)
}

// AddPeer dials addr when the transport supports it.
func (n *Node) AddPeer(addr string) error {
	pa, ok := n.net.(netx.PeerAdder)
	if !ok {
		return fmt.Errorf("transport %T cannot dial peers", n.net)
	}
	return pa.AddPeer(addr)
}

func (n *Node) Network() netx.Network  { return n.net }
func (n *Node) Manager() *GameManager { return n.mgr }
