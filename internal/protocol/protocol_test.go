package protocol

import (
	"sync"
	"testing"
)

func TestLamportMergesRemoteStamps(t *testing.T) {
	var l Lamport
	if got := l.TickLocal(); got != 1 {
		t.Fatalf("first local tick = %d", got)
	}
	if got := l.TickRemote(10); got != 11 {
		t.Fatalf("remote ahead: got %d, want 11", got)
	}
	if got := l.TickRemote(3); got != 12 {
		t.Fatalf("remote behind: got %d, want 12", got)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.TickLocal()
		}()
	}
	wg.Wait()
	if l.Now() != 62 {
		t.Fatalf("concurrent ticks lost: now = %d", l.Now())
	}
}

func TestMessageAddressing(t *testing.T) {
	self, other := NodeID("self"), NodeID("other")
	cases := []struct {
		msg  NetMessage
		want bool
	}{
		{NetMessage{From: other}, true},
		{NetMessage{From: other, To: self}, true},
		{NetMessage{From: other, To: "third"}, false},
		{NetMessage{From: self}, false},
	}
	for i, tc := range cases {
		if got := tc.msg.For(self); got != tc.want {
			t.Fatalf("case %d: For = %v, want %v", i, got, tc.want)
		}
	}
}

func TestSequencedTypes(t *testing.T) {
	for _, mt := range []MsgType{MsgGiveCard, MsgPlayConfirmed, MsgSwapConfirmed, MsgNextTurn, MsgNewGame, MsgEndGame} {
		if !mt.Sequenced() {
			t.Fatalf("%s should be sequenced", mt)
		}
	}
	for _, mt := range []MsgType{MsgRemainingTime, MsgPlayProposal, MsgReject, MsgSnapshot, MsgHostName} {
		if mt.Sequenced() {
			t.Fatalf("%s should not be sequenced", mt)
		}
	}
}

func TestIDs(t *testing.T) {
	a, b := NewNodeID(), NewNodeID()
	if a == b || len(a) != 36 {
		t.Fatalf("node ids %q %q", a, b)
	}
	if len(a.Short()) != 8 {
		t.Fatalf("short id %q", a.Short())
	}
	if g := NewGameID(); len(g) != 14 {
		t.Fatalf("game id %q", g)
	}
}
