package engine

import "slices"

// Snapshot is a serializable copy of a replica, used to resync a client
// that missed confirmations. The undealt deck is host-only and not included.
type Snapshot struct {
	Players      []Player `json:"players"`
	Hands        [][]Card `json:"hands"`
	Center       []Play   `json:"center"`
	Won          [][]Card `json:"won"`
	Turn         int      `json:"turn"`
	SecondsLeft  int      `json:"seconds_left"`
	ClockRunning bool     `json:"clock_running"`
	Phase        Phase    `json:"phase"`
	Winner       int      `json:"winner"`
}

func (g *Game) Snapshot() Snapshot {
	return Snapshot{
		Players:      slices.Clone(g.players),
		Hands:        cloneCards(g.hands),
		Center:       slices.Clone(g.center),
		Won:          cloneCards(g.won),
		Turn:         g.turn,
		SecondsLeft:  g.secondsLeft,
		ClockRunning: g.clockRunning,
		Phase:        g.phase,
		Winner:       g.winner,
	}
}

// Restore replaces the replica state with ss. No events are published.
func (g *Game) Restore(ss Snapshot) {
	g.players = slices.Clone(ss.Players)
	g.seats = make(map[PlayerID]int, len(ss.Players))
	for i, p := range ss.Players {
		g.seats[p.ID] = i
	}
	g.hands = cloneCards(ss.Hands)
	g.won = cloneCards(ss.Won)
	for len(g.hands) < len(g.players) {
		g.hands = append(g.hands, nil)
	}
	for len(g.won) < len(g.players) {
		g.won = append(g.won, nil)
	}
	g.center = slices.Clone(ss.Center)
	g.turn = ss.Turn
	g.secondsLeft = ss.SecondsLeft
	g.clockRunning = ss.ClockRunning
	g.phase = ss.Phase
	g.winner = ss.Winner
	g.deck = nil
}

func cloneCards(in [][]Card) [][]Card {
	if in == nil {
		return nil
	}
	out := make([][]Card, len(in))
	for i, cs := range in {
		out[i] = slices.Clone(cs)
	}
	return out
}
