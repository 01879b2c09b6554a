package types

import "time"

// GameConfig holds the per-game rules shared by every replica through
// snapshots. Keep this struct stable and backward-compatible.
type GameConfig struct {
	Name           string        `json:"name" mapstructure:"name"`
	CardsPerPlayer int           `json:"cards_per_player" mapstructure:"cardsPerPlayer"`
	MinPlayers     int           `json:"min_players" mapstructure:"minPlayers"`
	GameSeconds    int           `json:"game_seconds" mapstructure:"gameSeconds"`
	TickInterval   time.Duration `json:"tick_interval" mapstructure:"tickInterval"`
	FollowerTO     time.Duration `json:"follower_timeout" mapstructure:"followerTimeout"`
}

const (
	DefaultCardsPerPlayer = 13
	DefaultMinPlayers     = 1
	DefaultGameSeconds    = 5 * 60
	DefaultTickInterval   = time.Second
	DefaultFollowerTO     = 3 * time.Second
)

func DefaultGameConfig() GameConfig {
	return GameConfig{
		Name:           "Game",
		CardsPerPlayer: DefaultCardsPerPlayer,
		MinPlayers:     DefaultMinPlayers,
		GameSeconds:    DefaultGameSeconds,
		TickInterval:   DefaultTickInterval,
		FollowerTO:     DefaultFollowerTO,
	}
}

// Normalize fills zero fields with defaults and keeps FollowerTO at least
// two ticks long.
func (c GameConfig) Normalize() GameConfig {
	d := DefaultGameConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.CardsPerPlayer <= 0 {
		c.CardsPerPlayer = d.CardsPerPlayer
	}
	if c.MinPlayers <= 0 {
		c.MinPlayers = d.MinPlayers
	}
	if c.GameSeconds <= 0 {
		c.GameSeconds = d.GameSeconds
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.FollowerTO <= 0 {
		c.FollowerTO = d.FollowerTO
	}
	// clients must hear at least one tick before calling the host silent
	if c.FollowerTO < 2*c.TickInterval {
		c.FollowerTO = 2 * c.TickInterval
	}
	return c
}
