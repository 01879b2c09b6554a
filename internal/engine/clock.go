package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatClock renders seconds as m:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// ParseClock is the inverse of FormatClock.
func ParseClock(s string) (int, error) {
	m, sec, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q (want m:ss)", s)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 {
		return 0, fmt.Errorf("invalid clock minutes %q", m)
	}
	secs, err := strconv.Atoi(sec)
	if err != nil || len(sec) != 2 || secs < 0 || secs > 59 {
		return 0, fmt.Errorf("invalid clock seconds %q", sec)
	}
	return mins*60 + secs, nil
}

func (g *Game) SecondsLeft() int   { return g.secondsLeft }
func (g *Game) ClockRunning() bool { return g.clockRunning }
func (g *Game) ClockText() string  { return FormatClock(g.secondsLeft) }

// Tick advances the host clock by one second. It returns the remaining
// seconds and whether this tick ended the game. Ticks on a stopped clock
// are ignored.
func (g *Game) Tick() (int, bool) {
	if !g.clockRunning {
		return g.secondsLeft, false
	}
	return g.MirrorClock(g.secondsLeft - 1)
}

// MirrorClock installs a clock value received from the host. Reaching zero
// finalizes the game the same way a host tick does.
func (g *Game) MirrorClock(seconds int) (int, bool) {
	if g.phase == PhaseEnded || g.phase == PhaseCreated {
		return g.secondsLeft, false
	}
	if seconds < 0 {
		seconds = 0
	}
	g.secondsLeft = seconds
	g.bus.Publish(Event{Kind: EventTimeTick, Payload: TimeTick{SecondsLeft: seconds, Text: FormatClock(seconds)}})
	if seconds > 0 {
		return seconds, false
	}
	g.finish()
	return 0, true
}

// finish stops the clock, picks the winner and enters PhaseEnded. The
// winner event fires once per game.
func (g *Game) finish() {
	g.clockRunning = false
	g.phase = PhaseEnded
	g.winner = gameWinnerSeat(g.won)
	if g.winner < 0 {
		return
	}
	g.bus.Publish(Event{Kind: EventGameWinner, Payload: GameWinner{Seat: g.winner, Player: g.players[g.winner], Won: len(g.won[g.winner])}})
}

// GameWinner is set once the clock has run out.
func (g *Game) GameWinner() (Player, bool) {
	if g.winner < 0 || g.winner >= len(g.players) {
		return Player{}, false
	}
	return g.players[g.winner], true
}
