package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
	"cardmesh/internal/session"
	"cardmesh/pkg/types"
)

var (
	ErrGameExists  = errors.New("game exists")
	ErrUnknownGame = errors.New("unknown game")
	ErrAmbiguousID = errors.New("ambiguous game id")
)

type GameManager struct {
	self   protocol.PlayerRef
	clock  *protocol.Lamport
	router *Router
	netOut chan<- protocol.NetMessage

	mu    sync.RWMutex
	ctx   context.Context
	games map[protocol.GameID]*session.Session
}

func NewGameManager(self protocol.PlayerRef, clock *protocol.Lamport, router *Router, netOut chan<- protocol.NetMessage) *GameManager {
	return &GameManager{
		self:   self,
		clock:  clock,
		router: router,
		netOut: netOut,
		ctx:    context.Background(),
		games:  make(map[protocol.GameID]*session.Session),
	}
}

// bind sets the context every session runs under.
func (m *GameManager) bind(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
}

// HostGame starts a session where this node is the host.
func (m *GameManager) HostGame(id protocol.GameID, cfg types.GameConfig) (*session.Session, error) {
	return m.launch(session.Options{Game: id, Self: m.self, Host: true, Cfg: cfg})
}

// AttachClient starts a client session seeded with the host's snapshot.
func (m *GameManager) AttachClient(id protocol.GameID, ss protocol.GameSnapshot) (*session.Session, error) {
	return m.launch(session.Options{Game: id, Self: m.self, Cfg: ss.Cfg, Seeded: &ss})
}

func (m *GameManager) launch(o session.Options) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[o.Game]; exists {
		return nil, fmt.Errorf("%w: %s", ErrGameExists, o.Game)
	}
	in := make(chan protocol.NetMessage, 256)
	o.Clock = m.clock
	o.In = in
	o.Out = m.netOut
	s := session.New(o)
	m.games[o.Game] = s
	m.router.Register(o.Game, in, s.Done())
	ctx := m.ctx
	go func() {
		s.Run(ctx)
		m.forget(o.Game, s)
	}()
	return s, nil
}

// forget drops a finished session; later messages for it are not routed.
func (m *GameManager) forget(id protocol.GameID, s *session.Session) {
	m.router.Unregister(id)
	m.mu.Lock()
	if cur, ok := m.games[id]; ok && cur == s {
		delete(m.games, id)
	}
	m.mu.Unlock()
	log.Debug("game %s: session removed", id)
}

// End finishes a game locally (and, on the host, for everyone) and waits
// for its session to exit.
func (m *GameManager) End(id protocol.GameID) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}
	err := s.End()
	<-s.Done()
	m.forget(id, s)
	if errors.Is(err, session.ErrNotRunning) {
		return nil
	}
	return err
}

func (m *GameManager) Get(id protocol.GameID) (*session.Session, bool) {
	m.mu.RLock()
	s, ok := m.games[id]
	m.mu.RUnlock()
	return s, ok
}

// Resolve accepts a full game id or a unique prefix of one.
func (m *GameManager) Resolve(prefix string) (*session.Session, error) {
	if s, ok := m.Get(protocol.GameID(prefix)); ok {
		return s, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *session.Session
	for id, s := range m.games {
		if strings.HasPrefix(string(id), prefix) {
			if found != nil {
				return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
			}
			found = s
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, prefix)
	}
	return found, nil
}

// ListIDs returns a sorted list of game IDs known locally.
func (m *GameManager) ListIDs() []protocol.GameID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]protocol.GameID, 0, len(m.games))
	for id := range m.games {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GameListing is a verbose view for CLI/debugging.
type GameListing struct {
	ID      protocol.GameID
	Name    string
	Host    protocol.PlayerRef
	IsHost  bool
	Players int
	Phase   string
	Seq     uint64
}

func (m *GameManager) ListVerbose() []GameListing {
	m.mu.RLock()
	sessions := make([]*session.Session, 0, len(m.games))
	for _, s := range m.games {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]GameListing, 0, len(sessions))
	for _, s := range sessions {
		v := s.View()
		out = append(out, GameListing{
			ID: v.Game, Name: v.Name, Host: v.Host, IsHost: v.IsHost,
			Players: len(v.Lobby), Phase: v.Summary.Phase.String(), Seq: v.Seq,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
