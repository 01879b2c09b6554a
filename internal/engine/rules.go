package engine

// RoundWinnerOf returns the seat that played the highest rank. Strict
// comparison keeps the earliest play on ties. -1 for an empty pile.
func RoundWinnerOf(center []Play) int {
	if len(center) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(center); i++ {
		if center[i].Card.Beats(center[best].Card) {
			best = i
		}
	}
	return center[best].Seat
}

// resolveTrick moves the full center pile to the winner's won pile.
func (g *Game) resolveTrick() int {
	winner := RoundWinnerOf(g.center)
	cards := make([]Card, 0, len(g.center))
	for _, p := range g.center {
		cards = append(cards, p.Card)
	}
	g.won[winner] = append(g.won[winner], cards...)
	g.center = nil
	g.bus.Publish(Event{Kind: EventRoundWinner, Payload: RoundWinner{Seat: winner, Player: g.players[winner], Cards: cards}})
	return winner
}

// settleTurn hands the turn to the first seat holding cards, starting at
// from and wrapping once around the table. When every hand is empty the
// game enters PhaseExhausted and it returns false.
func (g *Game) settleTurn(from int) bool {
	n := len(g.players)
	for i := 0; i < n; i++ {
		seat := (from + i) % n
		if len(g.hands[seat]) > 0 {
			g.turn = seat
			g.bus.Publish(Event{Kind: EventTurnChanged, Payload: TurnChanged{Seat: seat, Player: g.players[seat]}})
			return true
		}
	}
	g.phase = PhaseExhausted
	g.bus.Publish(Event{Kind: EventNoPlayableSeats, Payload: NoPlayableSeats{}})
	return false
}

// gameWinnerSeat picks the largest won pile, lowest seat on ties.
func gameWinnerSeat(won [][]Card) int {
	if len(won) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(won); i++ {
		if len(won[i]) > len(won[best]) {
			best = i
		}
	}
	return best
}
