package types

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name         string
		in           GameConfig
		tick, follow time.Duration
	}{
		{"zero value", GameConfig{}, DefaultTickInterval, DefaultFollowerTO},
		{"fast ticks keep the timeout", GameConfig{TickInterval: 10 * time.Millisecond, FollowerTO: time.Second}, 10 * time.Millisecond, time.Second},
		{"timeout below one tick", GameConfig{TickInterval: 2 * time.Second, FollowerTO: time.Second}, 2 * time.Second, 4 * time.Second},
		{"slow ticks with default timeout", GameConfig{TickInterval: time.Hour}, time.Hour, 2 * time.Hour},
	}
	for _, tc := range cases {
		got := tc.in.Normalize()
		if got.TickInterval != tc.tick || got.FollowerTO != tc.follow {
			t.Errorf("%s: tick=%s follow=%s, want %s/%s", tc.name, got.TickInterval, got.FollowerTO, tc.tick, tc.follow)
		}
		if got.CardsPerPlayer != DefaultCardsPerPlayer || got.GameSeconds != DefaultGameSeconds || got.Name == "" {
			t.Errorf("%s: defaults not filled: %+v", tc.name, got)
		}
	}
}
