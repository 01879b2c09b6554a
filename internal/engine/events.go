package engine

import "sync"

type EventKind string

const (
	EventCardDelivered   EventKind = "card_delivered"
	EventCardPlayed      EventKind = "card_played"
	EventRoundWinner     EventKind = "round_winner"
	EventTurnChanged     EventKind = "turn_changed"
	EventHandUpdated     EventKind = "hand_updated"
	EventTimeTick        EventKind = "time_tick"
	EventGameWinner      EventKind = "game_winner"
	EventNoPlayableSeats EventKind = "no_playable_seats"
)

// Event is what subscribers receive. Payload holds one of the structs below,
// matching Kind.
type Event struct {
	Kind    EventKind
	Payload any
}

type CardDelivered struct {
	Seat   int
	Player Player
	Card   Card
}

type CardPlayed struct {
	Seat   int
	Player Player
	Card   Card
}

type RoundWinner struct {
	Seat   int
	Player Player
	Cards  []Card
}

type TurnChanged struct {
	Seat   int
	Player Player
}

type HandUpdated struct {
	Seat   int
	Player Player
	Hand   []Card
}

type TimeTick struct {
	SecondsLeft int
	Text        string
}

type GameWinner struct {
	Seat   int
	Player Player
	Won    int
}

type NoPlayableSeats struct{}

type Listener func(Event)

// Bus fans events out to every subscriber in subscription order, on the
// goroutine that mutated the game. Listeners must not call back into the
// game that published the event.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn Listener
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
