package session

import (
	"fmt"
	"time"

	"cardmesh/internal/engine"
	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
)

func (s *Session) onClientNet(msg protocol.NetMessage) {
	if msg.From == s.host.ID {
		s.lastHeard = time.Now()
	}
	if msg.Type.Sequenced() {
		if msg.From != s.host.ID {
			log.Warn("game %s: %s from non-host %s dropped", s.id, msg.Type, msg.From.Short())
			return
		}
		s.applyConfirmed(msg)
		return
	}

	switch msg.Type {
	case protocol.MsgRemainingTime:
		if !s.started || msg.From != s.host.ID {
			return
		}
		secs, err := engine.ParseClock(msg.Clock)
		if err != nil {
			log.Warn("game %s: bad clock %q: %v", s.id, msg.Clock, err)
			return
		}
		if _, ended := s.game.MirrorClock(secs); ended {
			s.ended = true
		}

	case protocol.MsgRoundWinner, protocol.MsgGameWinner:
		if msg.Action != nil {
			log.Info("game %s: host reports %s: %s", s.id, msg.Type, msg.Action.Player.Name)
		}

	case protocol.MsgReject:
		s.lastReject = msg.Reason
		log.Warn("game %s: host rejected %s: %s", s.id, actionID(msg), msg.Reason)

	case protocol.MsgHostName:
		if msg.Action != nil && msg.Action.Player.ID == msg.From && (s.host.ID == "" || s.host.ID == msg.From) {
			s.host = msg.Action.Player
		}

	case protocol.MsgSnapshot:
		if msg.State == nil || msg.From != s.host.ID {
			return
		}
		s.installSnapshot(*msg.State)
		log.Info("game %s: resynced at seq %d", s.id, s.seq)
	}
}

// applyConfirmed applies host confirmations strictly in sequence. A gap
// means something was missed, so the replica asks the host for a snapshot
// and waits for it.
func (s *Session) applyConfirmed(msg protocol.NetMessage) {
	if msg.Action == nil {
		return
	}
	if _, seen := s.dedup[msg.Action.ID]; seen {
		return
	}
	if msg.Seq <= s.seq {
		return
	}
	if msg.Seq != s.seq+1 {
		s.requestSnapshot(fmt.Sprintf("seq gap: have %d, got %d", s.seq, msg.Seq))
		return
	}
	if err := s.apply(msg.Type, *msg.Action); err != nil {
		s.requestSnapshot(fmt.Sprintf("apply %s seq %d: %v", msg.Type, msg.Seq, err))
		return
	}
	s.seq = msg.Seq
	s.dedup[msg.Action.ID] = struct{}{}
}

func (s *Session) apply(kind protocol.MsgType, a protocol.Action) error {
	pid := string(a.Player.ID)
	switch kind {
	case protocol.MsgNewGame:
		if err := s.game.NewGameWithDeck(toPlayers(a.Roster), engine.NewDeckFrom(nil)); err != nil {
			return err
		}
		s.lobby = append([]protocol.PlayerRef(nil), a.Roster...)
		s.started = true
		log.Info("game %s: started with %d players", s.id, len(a.Roster))
		return nil

	case protocol.MsgGiveCard:
		card, err := engine.ParseCard(a.Card)
		if err != nil {
			return err
		}
		return s.game.DeliverFromDeck(card, pid)

	case protocol.MsgPlayConfirmed:
		card, err := engine.ParseCard(a.Card)
		if err != nil {
			return err
		}
		_, err = s.game.ThrowCard(pid, card)
		return err

	case protocol.MsgSwapConfirmed:
		return s.game.SwapCard(pid, a.Index)

	case protocol.MsgNextTurn:
		return s.game.SetTurn(pid)

	case protocol.MsgEndGame:
		s.finishLocal()
		s.Close()
		return nil
	}
	return fmt.Errorf("unknown confirmation %s", kind)
}

// requestSnapshot asks the host for state at most once per second.
func (s *Session) requestSnapshot(reason string) {
	if time.Since(s.lastQuery) < time.Second {
		return
	}
	s.lastQuery = time.Now()
	log.Warn("game %s: %s; requesting snapshot", s.id, reason)
	s.send(protocol.NetMessage{Type: protocol.MsgStateQuery, To: s.host.ID})
}

func actionID(msg protocol.NetMessage) string {
	if msg.Action == nil {
		return ""
	}
	return msg.Action.ID
}
