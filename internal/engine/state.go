package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"cardmesh/pkg/types"
)

// Game is one running game: hands, center pile, won piles, turn pointer and
// clock. It is not safe for concurrent use; the owning session serializes
// every call.
type Game struct {
	cfg types.GameConfig
	rng *rand.Rand
	bus *Bus

	players []Player
	seats   map[PlayerID]int
	deck    *Deck
	hands   [][]Card
	center  []Play
	won     [][]Card

	turn         int
	secondsLeft  int
	clockRunning bool
	phase        Phase
	winner       int
}

// New builds an idle game. A nil rng seeds from the wall clock; a nil bus
// gets a private one.
func New(cfg types.GameConfig, r *rand.Rand, bus *Bus) *Game {
	cfg = cfg.Normalize()
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Game{
		cfg:         cfg,
		rng:         r,
		bus:         bus,
		seats:       make(map[PlayerID]int),
		secondsLeft: cfg.GameSeconds,
		phase:       PhaseCreated,
		winner:      -1,
	}
}

func (g *Game) Bus() *Bus                { return g.bus }
func (g *Game) Config() types.GameConfig { return g.cfg }

// NewGame seats players in the given order with a freshly shuffled deck.
// Cards are not dealt yet.
func (g *Game) NewGame(players []Player) error {
	return g.NewGameWithDeck(players, NewDeck(g.rng))
}

func (g *Game) NewGameWithDeck(players []Player, deck *Deck) error {
	if len(players) < g.cfg.MinPlayers {
		return fmt.Errorf("%w: need at least %d players, have %d", ErrRoster, g.cfg.MinPlayers, len(players))
	}
	seats := make(map[PlayerID]int, len(players))
	for i, p := range players {
		if p.ID == "" {
			return fmt.Errorf("%w: seat %d has no player id", ErrRoster, i)
		}
		if _, dup := seats[p.ID]; dup {
			return fmt.Errorf("%w: player %s seated twice", ErrRoster, p.ID)
		}
		seats[p.ID] = i
	}

	g.players = append([]Player(nil), players...)
	g.seats = seats
	g.deck = deck
	g.hands = make([][]Card, len(players))
	g.won = make([][]Card, len(players))
	g.center = nil
	g.turn = 0
	g.secondsLeft = g.cfg.GameSeconds
	g.clockRunning = false
	g.phase = PhaseDealing
	g.winner = -1
	return nil
}

// Delivery describes one deal of the distribution loop.
type Delivery struct {
	Seat   int
	Round  int
	Player Player
	Card   Card
}

// DistributeCards deals CardsPerPlayer rounds, one card per seat per round.
// A failed draw is reported to onDelivery and dealing continues. Once done
// the clock starts and the first seat with cards gets the turn. The returned
// error joins every CardDrawError.
func (g *Game) DistributeCards(onDelivery func(Delivery, error)) error {
	if g.phase != PhaseDealing {
		return fmt.Errorf("%w: cannot deal while %s", ErrPhase, g.phase)
	}
	var errs []error
	for round := 0; round < g.cfg.CardsPerPlayer; round++ {
		for seat, p := range g.players {
			d := Delivery{Seat: seat, Round: round, Player: p}
			c, ok := g.deck.Draw()
			if !ok {
				err := &CardDrawError{Seat: seat, Round: round}
				errs = append(errs, err)
				if onDelivery != nil {
					onDelivery(d, err)
				}
				continue
			}
			d.Card = c
			g.hands[seat] = append(g.hands[seat], c)
			g.bus.Publish(Event{Kind: EventCardDelivered, Payload: CardDelivered{Seat: seat, Player: p, Card: c}})
			if onDelivery != nil {
				onDelivery(d, nil)
			}
		}
	}
	g.clockRunning = true
	g.phase = PhasePlaying
	g.settleTurn(0)
	return errors.Join(errs...)
}

// DeliverFromDeck grants a card outside the dealing loop. Turn is untouched.
func (g *Game) DeliverFromDeck(card Card, player PlayerID) error {
	seat, ok := g.seats[player]
	if !ok {
		return invalidActor(player, "not seated")
	}
	if g.phase == PhaseCreated || g.phase == PhaseEnded {
		return fmt.Errorf("%w: cannot deliver while %s", ErrPhase, g.phase)
	}
	g.hands[seat] = append(g.hands[seat], card)
	g.bus.Publish(Event{Kind: EventCardDelivered, Payload: CardDelivered{Seat: seat, Player: g.players[seat], Card: card}})
	return nil
}

// ValidatePlay checks that player is on turn and holds card.
func (g *Game) ValidatePlay(player PlayerID, card Card) error {
	seat, ok := g.seats[player]
	if !ok {
		return invalidActor(player, "not seated")
	}
	if g.phase != PhasePlaying {
		return invalidActor(player, "game is %s", g.phase)
	}
	if seat != g.turn {
		return invalidActor(player, "not this player's turn (turn is seat %d)", g.turn)
	}
	if !slices.Contains(g.hands[seat], card) {
		return invalidActor(player, "card %s not in hand", card.Code())
	}
	return nil
}

// Outcome is what a single ThrowCard did.
type Outcome struct {
	Seat          int
	Card          Card
	TrickComplete bool
	TrickWinner   int
	NextTurn      int
	Exhausted     bool
}

// ThrowCard moves card from player's hand to the center, resolves the trick
// when every seat has played, then passes the turn to the next seat holding
// cards. Nothing changes when the play is invalid.
func (g *Game) ThrowCard(player PlayerID, card Card) (Outcome, error) {
	if err := g.ValidatePlay(player, card); err != nil {
		return Outcome{}, err
	}
	seat := g.seats[player]
	hand := g.hands[seat]
	i := slices.Index(hand, card)
	g.hands[seat] = slices.Delete(hand, i, i+1)
	g.center = append(g.center, Play{Seat: seat, Card: card})
	g.bus.Publish(Event{Kind: EventCardPlayed, Payload: CardPlayed{Seat: seat, Player: g.players[seat], Card: card}})

	out := Outcome{Seat: seat, Card: card, TrickWinner: -1}
	if len(g.center) == len(g.players) {
		out.TrickComplete = true
		out.TrickWinner = g.resolveTrick()
	}
	out.Exhausted = !g.settleTurn(seat + 1)
	out.NextTurn = g.turn
	return out, nil
}

// SwapCard exchanges hand[0] with hand[index]. It is a reordering only.
func (g *Game) SwapCard(player PlayerID, index int) error {
	seat, ok := g.seats[player]
	if !ok {
		return invalidActor(player, "not seated")
	}
	if g.phase == PhaseCreated || g.phase == PhaseEnded {
		return fmt.Errorf("%w: cannot swap while %s", ErrPhase, g.phase)
	}
	hand := g.hands[seat]
	if index < 0 || index >= len(hand) {
		return invalidActor(player, "swap index %d out of range [0,%d)", index, len(hand))
	}
	if index != 0 {
		hand[0], hand[index] = hand[index], hand[0]
	}
	g.bus.Publish(Event{Kind: EventHandUpdated, Payload: HandUpdated{Seat: seat, Player: g.players[seat], Hand: slices.Clone(hand)}})
	return nil
}

// SetTurn installs an authoritative turn pointer, as received from the host.
// Confirming the turn a replica already moved to publishes nothing.
func (g *Game) SetTurn(player PlayerID) error {
	seat, ok := g.seats[player]
	if !ok {
		return invalidActor(player, "not seated")
	}
	switch g.phase {
	case PhaseDealing:
		g.phase = PhasePlaying
		g.clockRunning = true
	case PhasePlaying:
		if g.turn == seat {
			return nil
		}
	default:
		return fmt.Errorf("%w: cannot set turn while %s", ErrPhase, g.phase)
	}
	g.turn = seat
	g.bus.Publish(Event{Kind: EventTurnChanged, Payload: TurnChanged{Seat: seat, Player: g.players[seat]}})
	return nil
}

// End stops the clock and marks the game terminal without picking a winner.
func (g *Game) End() {
	g.clockRunning = false
	if g.phase != PhaseCreated {
		g.phase = PhaseEnded
	}
}

func (g *Game) Phase() Phase { return g.phase }

func (g *Game) Players() []Player { return slices.Clone(g.players) }

func (g *Game) Seat(player PlayerID) (int, bool) {
	seat, ok := g.seats[player]
	return seat, ok
}

func (g *Game) PlayerAt(seat int) (Player, bool) {
	if seat < 0 || seat >= len(g.players) {
		return Player{}, false
	}
	return g.players[seat], true
}

func (g *Game) Hand(player PlayerID) []Card {
	seat, ok := g.seats[player]
	if !ok {
		return nil
	}
	return slices.Clone(g.hands[seat])
}

func (g *Game) HandSize(seat int) int {
	if seat < 0 || seat >= len(g.hands) {
		return 0
	}
	return len(g.hands[seat])
}

func (g *Game) Center() []Play { return slices.Clone(g.center) }

func (g *Game) WonCount(seat int) int {
	if seat < 0 || seat >= len(g.won) {
		return 0
	}
	return len(g.won[seat])
}

// Turn returns the seat on turn and its player.
func (g *Game) Turn() (int, Player) {
	if len(g.players) == 0 {
		return -1, Player{}
	}
	return g.turn, g.players[g.turn]
}

func (g *Game) DeckRemaining() int { return g.deck.Remaining() }

// Summary is a read-only view for the CLI.
type Summary struct {
	Phase       Phase
	Turn        Player
	SecondsLeft int
	Center      []Play
	Seats       []SeatView
	Winner      *Player
}

type SeatView struct {
	Seat     int
	Player   Player
	HandSize int
	Won      int
}

func (g *Game) Summary() Summary {
	sum := Summary{Phase: g.phase, SecondsLeft: g.secondsLeft, Center: g.Center()}
	if len(g.players) > 0 {
		sum.Turn = g.players[g.turn]
	}
	for i, p := range g.players {
		sum.Seats = append(sum.Seats, SeatView{Seat: i, Player: p, HandSize: len(g.hands[i]), Won: len(g.won[i])})
	}
	if w, ok := g.GameWinner(); ok {
		sum.Winner = &w
	}
	return sum
}
