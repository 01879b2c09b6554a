package engine

import (
	"fmt"
)

type Suit byte

const (
	SuitClubs Suit = iota
	SuitDiamonds
	SuitHearts
	SuitSpades
)

func (s Suit) Valid() bool { return s <= SuitSpades }

type Rank byte

const (
	RankTwo Rank = iota + 2
	RankThree
	RankFour
	RankFive
	RankSix
	RankSeven
	RankEight
	RankNine
	RankTen
	RankJack
	RankQueen
	RankKing
	RankAce
)

func (r Rank) Valid() bool { return r >= RankTwo && r <= RankAce }

// Less orders ranks from two up to ace.
func (r Rank) Less(o Rank) bool { return r < o }

// Card is an immutable value; two cards are equal when suit and rank match.
type Card struct {
	Rank Rank
	Suit Suit
}

var suitSymbols = [...]string{SuitClubs: "♣", SuitDiamonds: "♦", SuitHearts: "♥", SuitSpades: "♠"}

func (c Card) String() string {
	r, ok := rankToChar(c.Rank)
	if !ok || !c.Suit.Valid() {
		return "??"
	}
	return string(r) + suitSymbols[c.Suit]
}

// Compare orders cards by suit, then rank. It returns -1, 0 or +1 and
// suits slices.SortFunc.
func (c Card) Compare(o Card) int {
	switch {
	case c.Suit < o.Suit:
		return -1
	case c.Suit > o.Suit:
		return 1
	case c.Rank.Less(o.Rank):
		return -1
	case o.Rank.Less(c.Rank):
		return 1
	}
	return 0
}

// Beats reports whether c wins against o in a trick. Only rank counts.
func (c Card) Beats(o Card) bool { return o.Rank.Less(c.Rank) }

type Phase int

const (
	PhaseCreated Phase = iota
	PhaseDealing
	PhasePlaying
	PhaseExhausted // every hand is empty; clock still running
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseDealing:
		return "dealing"
	case PhasePlaying:
		return "playing"
	case PhaseExhausted:
		return "exhausted"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PlayerID is a stable identifier (the peer's NodeID string).
type PlayerID = string

// Player is a seat occupant. Name is for display only and may collide.
type Player struct {
	ID   PlayerID `json:"id"`
	Name string   `json:"name"`
}

func (p Player) String() string {
	if p.Name == "" {
		return p.ID
	}
	return p.Name
}

// Play is one card in the center pile together with the seat that played it.
type Play struct {
	Seat int  `json:"seat"`
	Card Card `json:"card"`
}
