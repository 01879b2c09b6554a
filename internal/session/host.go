package session

import (
	"errors"
	"fmt"

	"cardmesh/internal/engine"
	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
)

func (s *Session) onHostNet(msg protocol.NetMessage) {
	switch msg.Type {
	case protocol.MsgJoin:
		if msg.Action == nil {
			return
		}
		s.hostJoin(msg.From, msg.Action.Player)

	case protocol.MsgPlayProposal:
		if msg.Action == nil {
			return
		}
		if err := s.hostPlay(msg.From, *msg.Action); err != nil {
			s.reject(msg.From, msg.Action.ID, err)
		}

	case protocol.MsgSwapProposal:
		if msg.Action == nil {
			return
		}
		if err := s.hostSwap(msg.From, *msg.Action); err != nil {
			s.reject(msg.From, msg.Action.ID, err)
		}

	case protocol.MsgStateQuery:
		s.sendSnapshotTo(msg.From)

	default:
		log.Debug("game %s: host ignores %s from %s", s.id, msg.Type, msg.From.Short())
	}
}

// hostJoin seats a peer in the lobby and sends it the lobby snapshot.
// Joining again is idempotent; late joiners get the current snapshot so
// they can follow the game as observers.
func (s *Session) hostJoin(from protocol.NodeID, p protocol.PlayerRef) {
	if p.ID != from {
		s.reject(from, "", fmt.Errorf("%w: join for %s sent by %s", engine.ErrInvalidActor, p.ID, from))
		return
	}
	if !s.started && !s.inLobby(p.ID) {
		s.lobby = append(s.lobby, p)
		log.Info("game %s: %s joined the lobby (%d seated)", s.id, p.Name, len(s.lobby))
	} else if s.started && !s.inLobby(p.ID) {
		s.reject(from, "", ErrAlreadyStarted)
	}
	s.sendSnapshotTo(from)
	s.announceHost(from)
}

func (s *Session) inLobby(id protocol.NodeID) bool {
	for _, p := range s.lobby {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) hostStart() error {
	if !s.isHost {
		return ErrNotHost
	}
	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.game.NewGame(toPlayers(s.lobby)); err != nil {
		return err
	}
	s.started = true
	s.commit(protocol.MsgNewGame, protocol.Action{Player: s.self, Roster: append([]protocol.PlayerRef(nil), s.lobby...)})

	drawErr := s.game.DistributeCards(func(d engine.Delivery, err error) {
		if err != nil {
			log.Warn("game %s: %v", s.id, err)
			return
		}
		s.commit(protocol.MsgGiveCard, protocol.Action{Player: toRef(d.Player), Card: d.Card.Code()})
	})
	if _, p := s.game.Turn(); s.game.Phase() == engine.PhasePlaying {
		s.commit(protocol.MsgNextTurn, protocol.Action{Player: toRef(p)})
	}
	s.startClock()
	log.Info("game %s: dealt to %d players, clock %s", s.id, len(s.lobby), s.game.ClockText())
	if drawErr != nil {
		// short deals are reported but the game still runs
		log.Warn("game %s: dealing finished with draw errors", s.id)
	}
	return nil
}

// hostPlay validates and applies a play, then confirms it to everyone.
func (s *Session) hostPlay(from protocol.NodeID, a protocol.Action) error {
	if err := s.checkProposal(from, a); err != nil {
		return err
	}
	card, err := engine.ParseCard(a.Card)
	if err != nil {
		return &engine.InvalidActorError{Player: string(from), Reason: err.Error()}
	}
	out, err := s.game.ThrowCard(string(a.Player.ID), card)
	if err != nil {
		return err
	}
	s.commit(protocol.MsgPlayConfirmed, a)
	log.Info("game %s: %s played %s", s.id, a.Player.Name, card)

	if out.TrickComplete {
		winner, _ := s.game.PlayerAt(out.TrickWinner)
		s.inform(protocol.MsgRoundWinner, protocol.Action{Player: toRef(winner)})
		log.Info("game %s: %s takes the trick", s.id, winner)
	}
	if out.Exhausted {
		log.Info("game %s: no cards left in any hand", s.id)
		return nil
	}
	next, _ := s.game.PlayerAt(out.NextTurn)
	s.commit(protocol.MsgNextTurn, protocol.Action{Player: toRef(next)})
	return nil
}

func (s *Session) hostSwap(from protocol.NodeID, a protocol.Action) error {
	if err := s.checkProposal(from, a); err != nil {
		return err
	}
	if err := s.game.SwapCard(string(a.Player.ID), a.Index); err != nil {
		return err
	}
	s.commit(protocol.MsgSwapConfirmed, a)
	return nil
}

// checkProposal rejects duplicates, spoofed senders and proposals outside
// a running game. Game rules are checked by the engine.
func (s *Session) checkProposal(from protocol.NodeID, a protocol.Action) error {
	if s.ended {
		return ErrNotRunning
	}
	if !s.started {
		return ErrNotStarted
	}
	if _, seen := s.dedup[a.ID]; seen {
		return fmt.Errorf("duplicate action %s", a.ID)
	}
	if a.Player.ID != from {
		return &engine.InvalidActorError{Player: string(a.Player.ID), Reason: "proposal sent by " + string(from)}
	}
	return nil
}

// commit stamps a confirmation with the next sequence number and
// broadcasts it. The host has already applied it.
func (s *Session) commit(kind protocol.MsgType, a protocol.Action) {
	if a.ID == "" {
		a.ID = protocol.NewActionID()
	}
	s.seq++
	s.dedup[a.ID] = struct{}{}
	s.send(protocol.NetMessage{Type: kind, Seq: s.seq, Action: &a})
}

// inform broadcasts something replicas only display.
func (s *Session) inform(kind protocol.MsgType, a protocol.Action) {
	s.send(protocol.NetMessage{Type: kind, Action: &a})
}

func (s *Session) reject(to protocol.NodeID, actionID string, cause error) {
	reason := cause.Error()
	var ia *engine.InvalidActorError
	if errors.As(cause, &ia) {
		reason = ia.Reason
	}
	log.Warn("game %s: rejected %s from %s: %s", s.id, actionID, to.Short(), reason)
	s.send(protocol.NetMessage{Type: protocol.MsgReject, To: to, Action: &protocol.Action{ID: actionID}, Reason: reason})
}

// announceHost tells one peer, or everyone when to is empty, who the host is.
func (s *Session) announceHost(to protocol.NodeID) {
	s.send(protocol.NetMessage{Type: protocol.MsgHostName, To: to, Action: &protocol.Action{Player: s.self}})
}
