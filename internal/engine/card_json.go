package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code returns the two-char literal used on the wire and in the CLI ("As", "Td").
func (c Card) Code() string {
	r, ok := rankToChar(c.Rank)
	if !ok {
		return "??"
	}
	s, ok := suitToChar(c.Suit)
	if !ok {
		return "??"
	}
	return string([]byte{r, s})
}

// ParseCard decodes "As", "th", "2C" and friends. Ten must be 'T'/'t'.
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card literal %q (want 2 chars like As, Td)", s)
	}
	r, ok := charToRank(s[0])
	if !ok {
		return Card{}, fmt.Errorf("invalid rank char %q", s[0])
	}
	suit, ok := charToSuit(s[1])
	if !ok {
		return Card{}, fmt.Errorf("invalid suit char %q (use c/d/h/s)", s[1])
	}
	return Card{Rank: r, Suit: suit}, nil
}

func (c Card) MarshalJSON() ([]byte, error) {
	if !c.Rank.Valid() {
		return nil, fmt.Errorf("invalid rank: %d", c.Rank)
	}
	if !c.Suit.Valid() {
		return nil, fmt.Errorf("invalid suit: %d", c.Suit)
	}
	return json.Marshal(c.Code())
}

func (c *Card) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseCard(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

const rankChars = "23456789TJQKA"

func rankToChar(r Rank) (byte, bool) {
	if !r.Valid() {
		return 0, false
	}
	return rankChars[r-RankTwo], true
}

func charToRank(ch byte) (Rank, bool) {
	if ch >= 'a' && ch <= 'z' {
		ch -= 'a' - 'A'
	}
	i := strings.IndexByte(rankChars, ch)
	if i < 0 {
		return 0, false
	}
	return RankTwo + Rank(i), true
}

const suitChars = "cdhs"

func suitToChar(s Suit) (byte, bool) {
	if !s.Valid() {
		return 0, false
	}
	return suitChars[s], true
}

func charToSuit(ch byte) (Suit, bool) {
	if ch >= 'A' && ch <= 'Z' {
		ch += 'a' - 'A'
	}
	i := strings.IndexByte(suitChars, ch)
	if i < 0 {
		return 0, false
	}
	return Suit(i), true
}
