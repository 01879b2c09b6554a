package session

import (
	"fmt"
	"time"

	"cardmesh/internal/engine"
	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
)

// startClock arms the host ticker. It is selected in Run, so one tick and
// its broadcast finish before the next tick is handled.
func (s *Session) startClock() {
	if !s.isHost || s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.cfg.TickInterval)
}

func (s *Session) stopClock() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Session) tickC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

func (s *Session) onTick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	left, ended := s.game.Tick()
	s.send(protocol.NetMessage{Type: protocol.MsgRemainingTime, Clock: engine.FormatClock(left)})
	if !ended {
		return
	}
	s.stopClock()
	s.ended = true
	if w, ok := s.game.GameWinner(); ok {
		s.inform(protocol.MsgGameWinner, protocol.Action{Player: toRef(w)})
		log.Info("game %s: time is up, %s wins", s.id, w)
	}
}

// checkHost asks for a snapshot when a running game has heard nothing from
// the host for FollowerTO. The host ticks every TickInterval, so silence
// means the tail of the stream was lost.
func (s *Session) checkHost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.ended || s.host.ID == "" || s.game.Phase() == engine.PhaseEnded {
		return
	}
	if quiet := time.Since(s.lastHeard); quiet >= s.cfg.FollowerTO {
		s.requestSnapshot(fmt.Sprintf("no word from host for %s", quiet.Round(time.Millisecond)))
	}
}
