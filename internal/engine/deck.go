package engine

import "math/rand"

// Deck is an ordered draw pile. Draw takes from the front.
type Deck struct {
	cards []Card
}

func standardCards() []Card {
	cards := make([]Card, 0, 52)
	for s := SuitClubs; s <= SuitSpades; s++ {
		for rnk := RankTwo; rnk <= RankAce; rnk++ {
			cards = append(cards, Card{Rank: rnk, Suit: s})
		}
	}
	return cards
}

// NewDeck returns the 52 standard cards shuffled once with r.
func NewDeck(r *rand.Rand) *Deck {
	cards := standardCards()
	// Fisher-Yates
	for i := len(cards) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
	return &Deck{cards: cards}
}

// NewDeckFrom builds a deck that draws cards in the given order.
func NewDeckFrom(cards []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

// Draw removes and returns the first remaining card. ok is false once the
// deck is exhausted.
func (d *Deck) Draw() (Card, bool) {
	if d == nil || len(d.cards) == 0 {
		return Card{}, false
	}
	c := d.cards[0]
	d.cards = d.cards[1:]
	return c, true
}

func (d *Deck) Remaining() int {
	if d == nil {
		return 0
	}
	return len(d.cards)
}
