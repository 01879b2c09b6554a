package engine

import (
	"errors"
	"fmt"
)

var (
	ErrDeckExhausted = errors.New("deck exhausted")
	ErrInvalidActor  = errors.New("invalid actor")
	ErrRoster        = errors.New("roster error")
	ErrPhase         = errors.New("operation not allowed in current phase")
)

// CardDrawError reports one deal that could not be served from the deck.
type CardDrawError struct {
	Seat  int
	Round int
}

func (e *CardDrawError) Error() string {
	return fmt.Sprintf("card draw failed for seat %d in round %d: %v", e.Seat, e.Round, ErrDeckExhausted)
}

func (e *CardDrawError) Unwrap() error { return ErrDeckExhausted }

// InvalidActorError is returned when a player or card does not match the
// authoritative state. Nothing is mutated when it is returned.
type InvalidActorError struct {
	Player PlayerID
	Reason string
}

func (e *InvalidActorError) Error() string {
	return fmt.Sprintf("invalid actor %q: %s", e.Player, e.Reason)
}

func (e *InvalidActorError) Unwrap() error { return ErrInvalidActor }

func invalidActor(p PlayerID, format string, args ...any) error {
	return &InvalidActorError{Player: p, Reason: fmt.Sprintf(format, args...)}
}
