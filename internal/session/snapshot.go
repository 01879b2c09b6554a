package session

import (
	"encoding/json"

	"cardmesh/internal/engine"
	"cardmesh/internal/log"
	"cardmesh/internal/protocol"
)

// Snapshot is the public wrapper used by the CLI and the node.
func (s *Session) Snapshot() protocol.GameSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// snapshot embeds the engine state as JSON so protocol stays leaf-only.
func (s *Session) snapshot() protocol.GameSnapshot {
	ss := protocol.GameSnapshot{
		Cfg:     s.cfg,
		Seq:     s.seq,
		Host:    s.host,
		Lobby:   append([]protocol.PlayerRef(nil), s.lobby...),
		Started: s.started,
	}
	if s.started {
		payload, err := json.Marshal(s.game.Snapshot())
		if err != nil {
			log.Error("game %s: encode engine snapshot: %v", s.id, err)
		} else {
			ss.EngineJSON = payload
		}
	}
	return ss
}

// installSnapshot replaces the replica with the host's view.
func (s *Session) installSnapshot(ss protocol.GameSnapshot) {
	s.cfg = ss.Cfg.Normalize()
	s.seq = ss.Seq
	s.host = ss.Host
	s.lobby = append([]protocol.PlayerRef(nil), ss.Lobby...)
	s.started = ss.Started

	if len(ss.EngineJSON) == 0 {
		return
	}
	var es engine.Snapshot
	if err := json.Unmarshal(ss.EngineJSON, &es); err != nil {
		log.Error("game %s: decode engine snapshot: %v", s.id, err)
		return
	}
	s.game.Restore(es)
	s.ended = es.Phase == engine.PhaseEnded
}

// sendSnapshotTo answers a state query or a join. Host only.
func (s *Session) sendSnapshotTo(target protocol.NodeID) {
	if !s.isHost {
		return
	}
	ss := s.snapshot()
	s.send(protocol.NetMessage{Type: protocol.MsgSnapshot, To: target, Seq: ss.Seq, State: &ss})
}
