package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"cardmesh/internal/engine"
	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
	"cardmesh/pkg/types"
)

var (
	ErrNotRunning     = errors.New("session is not running")
	ErrNotHost        = errors.New("only the host can do that")
	ErrAlreadyStarted = errors.New("game already started")
	ErrNotStarted     = errors.New("game not started")
)

// IsRejected reports whether err came from host-side validation.
func IsRejected(err error) bool {
	return errors.Is(err, engine.ErrInvalidActor)
}

// Session is the per-game event loop. The host validates and applies every
// mutation and broadcasts confirmations stamped with a sequence number;
// clients send proposals to the host and apply confirmations in sequence
// order. There is no direct network I/O here; messages travel through the
// in/out channels.
type Session struct {
	id     protocol.GameID
	self   protocol.PlayerRef
	isHost bool
	clock  *protocol.Lamport

	in      <-chan protocol.NetMessage
	netOut  chan<- protocol.NetMessage
	intents chan func()
	done    chan struct{}
	stop    chan struct{}
	stopped sync.Once

	// everything below is written only by the Run goroutine, under mu
	mu         sync.RWMutex
	cfg        types.GameConfig
	host       protocol.PlayerRef
	game       *engine.Game
	lobby      []protocol.PlayerRef
	started    bool
	ended      bool
	endSent    bool
	seq        uint64
	dedup      map[string]struct{}
	lastQuery  time.Time
	lastHeard  time.Time
	lastReject string

	ticker *time.Ticker
}

type Options struct {
	Game   protocol.GameID
	Self   protocol.PlayerRef
	Host   bool
	Cfg    types.GameConfig
	Clock  *protocol.Lamport
	In     <-chan protocol.NetMessage
	Out    chan<- protocol.NetMessage
	Rand   *rand.Rand
	Bus    *engine.Bus
	Seeded *protocol.GameSnapshot // client: lobby snapshot received on join
}

func New(o Options) *Session {
	cfg := o.Cfg.Normalize()
	if o.Seeded != nil {
		cfg = o.Seeded.Cfg.Normalize()
	}
	if o.Clock == nil {
		o.Clock = &protocol.Lamport{}
	}
	s := &Session{
		id:      o.Game,
		self:    o.Self,
		isHost:  o.Host,
		clock:   o.Clock,
		in:      o.In,
		netOut:  o.Out,
		intents: make(chan func()),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
		cfg:     cfg,
		game:    engine.New(cfg, o.Rand, o.Bus),
		dedup:   make(map[string]struct{}),
	}
	if o.Host {
		s.host = o.Self
		s.lobby = []protocol.PlayerRef{o.Self}
	}
	if o.Seeded != nil {
		s.installSnapshot(*o.Seeded)
	}
	return s
}

func (s *Session) ID() protocol.GameID      { return s.id }
func (s *Session) IsHost() bool             { return s.isHost }
func (s *Session) Self() protocol.PlayerRef { return s.self }

// Subscribe registers an engine event listener. Listeners run on the
// session goroutine while it holds the session lock, so they must not call
// back into the session.
func (s *Session) Subscribe(fn engine.Listener) (unsubscribe func()) {
	return s.game.Bus().Subscribe(fn)
}

// Run drives the event loop until ctx is done or Close is called. On the
// host it also drives the countdown clock; on a client it watches for a
// silent host.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.stopClock()

	var watch <-chan time.Time
	if s.isHost {
		s.announceHost("")
	} else {
		wd := time.NewTicker(s.cfg.FollowerTO)
		defer wd.Stop()
		watch = wd.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case msg, ok := <-s.in:
			if !ok {
				return
			}
			s.onNet(msg)
		case fn := <-s.intents:
			fn()
		case <-s.tickC():
			s.onTick()
		case <-watch:
			s.checkHost()
		}
	}
}

// Close stops the loop without announcing anything.
func (s *Session) Close() {
	s.stopped.Do(func() { close(s.stop) })
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// do runs fn on the session goroutine and waits for its result.
func (s *Session) do(fn func() error) error {
	res := make(chan error, 1)
	select {
	case s.intents <- func() { res <- fn() }:
	case <-s.done:
		return ErrNotRunning
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrNotRunning
	}
}

func (s *Session) onNet(msg protocol.NetMessage) {
	s.clock.TickRemote(msg.Lamport)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isHost {
		s.onHostNet(msg)
		return
	}
	s.onClientNet(msg)
}

func (s *Session) send(msg protocol.NetMessage) {
	msg.Game = s.id
	msg.From = s.self.ID
	msg.Lamport = s.clock.TickLocal()
	s.netOut <- msg
}

// Start deals a new game to the lobby. Host only.
func (s *Session) Start() error {
	return s.do(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.hostStart()
	})
}

// Play proposes (client) or performs (host) playing card from the local
// player's hand.
func (s *Session) Play(card engine.Card) error {
	return s.do(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		a := protocol.Action{ID: protocol.NewActionID(), Player: s.self, Card: card.Code()}
		if s.isHost {
			return s.hostPlay(s.self.ID, a)
		}
		return s.propose(protocol.MsgPlayProposal, a)
	})
}

// Swap proposes (client) or performs (host) moving hand[index] to the
// front of the local player's hand.
func (s *Session) Swap(index int) error {
	return s.do(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		a := protocol.Action{ID: protocol.NewActionID(), Player: s.self, Index: index}
		if s.isHost {
			return s.hostSwap(s.self.ID, a)
		}
		return s.propose(protocol.MsgSwapProposal, a)
	})
}

// End stops the clock and discards the game. The host tells everyone.
func (s *Session) End() error {
	err := s.do(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		// a game stopped by its clock is still announced so clients drop it
		if s.isHost && !s.endSent {
			s.commit(protocol.MsgEndGame, protocol.Action{Player: s.self})
			s.endSent = true
		}
		s.finishLocal()
		return nil
	})
	s.Close()
	return err
}

func (s *Session) finishLocal() {
	s.stopClock()
	s.game.End()
	s.ended = true
	log.Info("game %s: ended", s.id)
}

func (s *Session) propose(kind protocol.MsgType, a protocol.Action) error {
	if s.ended {
		return ErrNotRunning
	}
	if !s.started {
		return ErrNotStarted
	}
	s.send(protocol.NetMessage{Type: kind, To: s.host.ID, Action: &a})
	log.Debug("game %s: proposed %s %s", s.id, kind, a.ID)
	return nil
}

// View is a read-only copy for the CLI.
type View struct {
	Game       protocol.GameID
	Name       string
	Host       protocol.PlayerRef
	IsHost     bool
	Seq        uint64
	Lobby      []protocol.PlayerRef
	Started    bool
	Ended      bool
	Clock      string
	Hand       []engine.Card
	Summary    engine.Summary
	LastReject string
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Game:       s.id,
		Name:       s.cfg.Name,
		Host:       s.host,
		IsHost:     s.isHost,
		Seq:        s.seq,
		Lobby:      append([]protocol.PlayerRef(nil), s.lobby...),
		Started:    s.started,
		Ended:      s.ended,
		Clock:      s.game.ClockText(),
		Hand:       s.game.Hand(string(s.self.ID)),
		Summary:    s.game.Summary(),
		LastReject: s.lastReject,
	}
}

func toPlayers(refs []protocol.PlayerRef) []engine.Player {
	out := make([]engine.Player, len(refs))
	for i, r := range refs {
		out[i] = engine.Player{ID: string(r.ID), Name: r.Name}
	}
	return out
}

func toRef(p engine.Player) protocol.PlayerRef {
	return protocol.PlayerRef{ID: protocol.NodeID(p.ID), Name: p.Name}
}
