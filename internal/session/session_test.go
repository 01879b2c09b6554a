package session

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"cardmesh/internal/engine"
	"cardmesh/internal/protocol"
	"cardmesh/pkg/types"
)

var (
	hostRef   = protocol.PlayerRef{ID: "h", Name: "host"}
	clientRef = protocol.PlayerRef{ID: "c", Name: "client"}
)

func testConfig() types.GameConfig {
	cfg := types.DefaultGameConfig()
	cfg.TickInterval = time.Hour
	return cfg
}

type harness struct {
	s   *Session
	in  chan protocol.NetMessage
	out chan protocol.NetMessage
}

func startSession(t *testing.T, o Options) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := &harness{in: make(chan protocol.NetMessage, 256), out: make(chan protocol.NetMessage, 1024)}
	o.Game = "g"
	o.In = h.in
	o.Out = h.out
	o.Rand = rand.New(rand.NewSource(3))
	h.s = New(o)
	go h.s.Run(ctx)
	return h
}

// expect reads outbound messages until one of kind shows up.
func (h *harness) expect(t *testing.T, kind protocol.MsgType) protocol.NetMessage {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg := <-h.out:
			if msg.Type == kind {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %s sent", kind)
			return protocol.NetMessage{}
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func confirmed(seq uint64, kind protocol.MsgType, a protocol.Action) protocol.NetMessage {
	if a.ID == "" {
		a.ID = protocol.NewActionID()
	}
	return protocol.NetMessage{Game: "g", From: hostRef.ID, Type: kind, Seq: seq, Action: &a}
}

func TestHostStartCommitsDealInSequence(t *testing.T) {
	h := startSession(t, Options{Self: hostRef, Host: true, Cfg: testConfig()})
	h.expect(t, protocol.MsgHostName)

	if err := h.s.Play(engine.Card{Rank: engine.RankAce}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("play before start: err = %v", err)
	}
	if err := h.s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.s.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: err = %v", err)
	}

	ng := h.expect(t, protocol.MsgNewGame)
	if ng.Seq != 1 || len(ng.Action.Roster) != 1 {
		t.Fatalf("new game: %+v", ng)
	}
	for i := 0; i < 13; i++ {
		gc := h.expect(t, protocol.MsgGiveCard)
		if gc.Seq != uint64(i+2) || gc.Action.Player.ID != hostRef.ID {
			t.Fatalf("deal %d: %+v", i, gc)
		}
	}
	nt := h.expect(t, protocol.MsgNextTurn)
	if nt.Seq != 15 || nt.Action.Player.ID != hostRef.ID {
		t.Fatalf("next turn: %+v", nt)
	}

	v := h.s.View()
	if len(v.Hand) != 13 || v.Summary.Phase != engine.PhasePlaying || v.Seq != 15 {
		t.Fatalf("view after start: hand=%d phase=%s seq=%d", len(v.Hand), v.Summary.Phase, v.Seq)
	}
}

func TestHostRejectsBadProposals(t *testing.T) {
	h := startSession(t, Options{Self: hostRef, Host: true, Cfg: testConfig()})
	if err := h.s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	hand := h.s.View().Hand

	cases := []struct {
		name   string
		from   protocol.NodeID
		action protocol.Action
	}{
		{"spoofed sender", "c", protocol.Action{ID: "a1", Player: hostRef, Card: hand[0].Code()}},
		{"unseated player", "c", protocol.Action{ID: "a2", Player: clientRef, Card: hand[0].Code()}},
		{"garbage card", "h2", protocol.Action{ID: "a3", Player: protocol.PlayerRef{ID: "h2"}, Card: "zz"}},
	}
	for _, tc := range cases {
		h.in <- protocol.NetMessage{Game: "g", From: tc.from, Type: protocol.MsgPlayProposal, Action: &tc.action}
		rej := h.expect(t, protocol.MsgReject)
		if rej.To != tc.from || rej.Action.ID != tc.action.ID || rej.Reason == "" {
			t.Fatalf("%s: reject = %+v", tc.name, rej)
		}
	}

	v := h.s.View()
	if len(v.Summary.Center) != 0 || len(v.Hand) != 13 {
		t.Fatalf("rejected proposals changed state")
	}
}

func TestHostPlayConfirmsAndPassesTurn(t *testing.T) {
	h := startSession(t, Options{Self: hostRef, Host: true, Cfg: testConfig()})
	if err := h.s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.expect(t, protocol.MsgNextTurn)

	card := h.s.View().Hand[0]
	if err := h.s.Play(card); err != nil {
		t.Fatalf("play: %v", err)
	}
	pc := h.expect(t, protocol.MsgPlayConfirmed)
	if pc.Seq != 16 || pc.Action.Card != card.Code() {
		t.Fatalf("confirmation: %+v", pc)
	}
	// one seat: every play completes a trick and the turn comes back
	if rw := h.expect(t, protocol.MsgRoundWinner); rw.Seq != 0 || rw.Action.Player.ID != hostRef.ID {
		t.Fatalf("round winner: %+v", rw)
	}
	if nt := h.expect(t, protocol.MsgNextTurn); nt.Seq != 17 {
		t.Fatalf("next turn: %+v", nt)
	}
	if err := h.s.Play(card); !errors.Is(err, engine.ErrInvalidActor) || !IsRejected(err) {
		t.Fatalf("replaying a played card: err = %v", err)
	}
	if IsRejected(ErrNotRunning) {
		t.Fatalf("ErrNotRunning reported as a rejection")
	}
}

func TestClientResyncsOnSequenceGap(t *testing.T) {
	cfg := testConfig()
	lobby := []protocol.PlayerRef{hostRef, clientRef}
	h := startSession(t, Options{
		Self: clientRef, Cfg: cfg,
		Seeded: &protocol.GameSnapshot{Cfg: cfg, Host: hostRef, Lobby: lobby},
	})

	h.in <- confirmed(1, protocol.MsgNewGame, protocol.Action{Player: hostRef, Roster: lobby})
	waitFor(t, "game start", func() bool { return h.s.View().Started })

	h.in <- confirmed(3, protocol.MsgGiveCard, protocol.Action{Player: clientRef, Card: "As"})
	q := h.expect(t, protocol.MsgStateQuery)
	if q.To != hostRef.ID {
		t.Fatalf("state query addressed to %q", q.To)
	}
	if v := h.s.View(); v.Seq != 1 || len(v.Hand) != 0 {
		t.Fatalf("gap message was applied: seq=%d hand=%d", v.Seq, len(v.Hand))
	}

	authoritative := engine.New(cfg, rand.New(rand.NewSource(9)), nil)
	if err := authoritative.NewGame([]engine.Player{{ID: "h", Name: "host"}, {ID: "c", Name: "client"}}); err != nil {
		t.Fatalf("new game: %v", err)
	}
	if err := authoritative.DistributeCards(nil); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	payload, err := json.Marshal(authoritative.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	h.in <- protocol.NetMessage{Game: "g", From: hostRef.ID, Type: protocol.MsgSnapshot, State: &protocol.GameSnapshot{
		Cfg: cfg, Seq: 28, Host: hostRef, Lobby: lobby, Started: true, EngineJSON: payload,
	}}
	waitFor(t, "snapshot install", func() bool { return h.s.View().Seq == 28 })
	if v := h.s.View(); len(v.Hand) != 13 {
		t.Fatalf("hand after resync = %d", len(v.Hand))
	}

	h.in <- confirmed(29, protocol.MsgNextTurn, protocol.Action{Player: clientRef})
	waitFor(t, "turn", func() bool { return h.s.View().Summary.Turn.ID == "c" })
}

func TestClientIgnoresForgedAndDuplicateConfirmations(t *testing.T) {
	cfg := testConfig()
	lobby := []protocol.PlayerRef{hostRef, clientRef}
	h := startSession(t, Options{
		Self: clientRef, Cfg: cfg,
		Seeded: &protocol.GameSnapshot{Cfg: cfg, Host: hostRef, Lobby: lobby},
	})

	forged := confirmed(1, protocol.MsgNewGame, protocol.Action{Player: clientRef, Roster: lobby})
	forged.From = "mallory"
	h.in <- forged

	start := confirmed(1, protocol.MsgNewGame, protocol.Action{ID: "ng", Player: hostRef, Roster: lobby})
	h.in <- start
	give := confirmed(2, protocol.MsgGiveCard, protocol.Action{ID: "gc", Player: clientRef, Card: "Kd"})
	h.in <- give
	h.in <- give
	h.in <- start

	waitFor(t, "deal", func() bool { return h.s.View().Seq == 2 })
	if hand := h.s.View().Hand; len(hand) != 1 || hand[0].Code() != "Kd" {
		t.Fatalf("hand = %v", hand)
	}
}

func TestClientProposesToHostOnly(t *testing.T) {
	cfg := testConfig()
	lobby := []protocol.PlayerRef{hostRef, clientRef}
	h := startSession(t, Options{
		Self: clientRef, Cfg: cfg,
		Seeded: &protocol.GameSnapshot{Cfg: cfg, Host: hostRef, Lobby: lobby},
	})
	h.in <- confirmed(1, protocol.MsgNewGame, protocol.Action{Player: hostRef, Roster: lobby})
	h.in <- confirmed(2, protocol.MsgGiveCard, protocol.Action{Player: clientRef, Card: "Qc"})
	h.in <- confirmed(3, protocol.MsgGiveCard, protocol.Action{Player: clientRef, Card: "2h"})
	waitFor(t, "deal", func() bool { return h.s.View().Seq == 3 })

	qc, _ := engine.ParseCard("Qc")
	if err := h.s.Play(qc); err != nil {
		t.Fatalf("play: %v", err)
	}
	p := h.expect(t, protocol.MsgPlayProposal)
	if p.To != hostRef.ID || p.Action.Card != "Qc" || p.Action.Player.ID != clientRef.ID {
		t.Fatalf("proposal = %+v", p)
	}
	if err := h.s.Swap(1); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if sp := h.expect(t, protocol.MsgSwapProposal); sp.Action.Index != 1 {
		t.Fatalf("swap proposal = %+v", sp)
	}
	if hand := h.s.View().Hand; len(hand) != 2 || hand[0].Code() != "Qc" {
		t.Fatalf("client mutated its hand before confirmation: %v", hand)
	}

	h.in <- protocol.NetMessage{Game: "g", From: hostRef.ID, Type: protocol.MsgReject, To: clientRef.ID,
		Action: &protocol.Action{ID: p.Action.ID}, Reason: "not this player's turn"}
	waitFor(t, "reject", func() bool { return h.s.View().LastReject != "" })
}

func TestClientMirrorsClock(t *testing.T) {
	cfg := testConfig()
	lobby := []protocol.PlayerRef{hostRef, clientRef}
	h := startSession(t, Options{
		Self: clientRef, Cfg: cfg,
		Seeded: &protocol.GameSnapshot{Cfg: cfg, Host: hostRef, Lobby: lobby},
	})
	h.in <- confirmed(1, protocol.MsgNewGame, protocol.Action{Player: hostRef, Roster: lobby})
	h.in <- confirmed(2, protocol.MsgNextTurn, protocol.Action{Player: hostRef})
	h.in <- protocol.NetMessage{Game: "g", From: hostRef.ID, Type: protocol.MsgRemainingTime, Clock: "2:05"}
	waitFor(t, "clock", func() bool { return h.s.View().Clock == "2:05" })

	h.in <- protocol.NetMessage{Game: "g", From: hostRef.ID, Type: protocol.MsgRemainingTime, Clock: "0:00"}
	waitFor(t, "game end", func() bool { return h.s.View().Summary.Phase == engine.PhaseEnded })
	if w := h.s.View().Summary.Winner; w == nil || w.ID != "h" {
		t.Fatalf("winner = %+v, want h", w)
	}
	if !h.s.View().Ended {
		t.Fatalf("view not ended after the clock ran out")
	}
	if err := h.s.Play(engine.Card{Rank: engine.RankTwo}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("play after time up: err = %v", err)
	}
}

func TestClientTurnEventsMatchHost(t *testing.T) {
	cfg := testConfig()
	lobby := []protocol.PlayerRef{hostRef, clientRef}
	h := startSession(t, Options{
		Self: clientRef, Cfg: cfg,
		Seeded: &protocol.GameSnapshot{Cfg: cfg, Host: hostRef, Lobby: lobby},
	})
	var turns atomic.Int32
	h.s.Subscribe(func(ev engine.Event) {
		if ev.Kind == engine.EventTurnChanged {
			turns.Add(1)
		}
	})

	h.in <- confirmed(1, protocol.MsgNewGame, protocol.Action{Player: hostRef, Roster: lobby})
	h.in <- confirmed(2, protocol.MsgGiveCard, protocol.Action{Player: hostRef, Card: "Kd"})
	h.in <- confirmed(3, protocol.MsgGiveCard, protocol.Action{Player: clientRef, Card: "2h"})
	h.in <- confirmed(4, protocol.MsgNextTurn, protocol.Action{Player: hostRef})
	h.in <- confirmed(5, protocol.MsgPlayConfirmed, protocol.Action{Player: hostRef, Card: "Kd"})
	h.in <- confirmed(6, protocol.MsgNextTurn, protocol.Action{Player: clientRef})
	waitFor(t, "play applied", func() bool { return h.s.View().Seq == 6 })

	// one for the deal, one for the play; the host publishes the same two
	if got := turns.Load(); got != 2 {
		t.Fatalf("turn_changed events = %d, want 2", got)
	}
	if turn := h.s.View().Summary.Turn; turn.ID != "c" {
		t.Fatalf("turn = %v, want c", turn)
	}
}

func TestHostClockCountsDownAndEnds(t *testing.T) {
	cfg := testConfig()
	cfg.GameSeconds = 3
	cfg.TickInterval = 5 * time.Millisecond
	h := startSession(t, Options{Self: hostRef, Host: true, Cfg: cfg})
	if err := h.s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, want := range []string{"0:02", "0:01", "0:00"} {
		if got := h.expect(t, protocol.MsgRemainingTime); got.Clock != want {
			t.Fatalf("clock = %s, want %s", got.Clock, want)
		}
	}
	gw := h.expect(t, protocol.MsgGameWinner)
	if gw.Action.Player.ID != hostRef.ID {
		t.Fatalf("winner = %+v", gw.Action.Player)
	}
	select {
	case msg := <-h.out:
		t.Fatalf("clock kept running after the end: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	if err := h.s.Play(h.s.View().Hand[0]); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("play after time up: err = %v", err)
	}
	h.in <- protocol.NetMessage{Game: "g", From: "c", Type: protocol.MsgPlayProposal,
		Action: &protocol.Action{ID: "late", Player: clientRef, Card: "As"}}
	if rej := h.expect(t, protocol.MsgReject); rej.Reason != ErrNotRunning.Error() {
		t.Fatalf("late proposal rejected with %q", rej.Reason)
	}
	if err := h.s.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if eg := h.expect(t, protocol.MsgEndGame); eg.Seq == 0 {
		t.Fatalf("end game after time up not sequenced")
	}
}

func TestEndStopsSession(t *testing.T) {
	h := startSession(t, Options{Self: hostRef, Host: true, Cfg: testConfig()})
	if err := h.s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.s.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if eg := h.expect(t, protocol.MsgEndGame); eg.Seq == 0 {
		t.Fatalf("end game not sequenced")
	}
	<-h.s.Done()
	if err := h.s.Play(engine.Card{Rank: engine.RankTwo}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("play after end: err = %v", err)
	}
}

func TestClientAsksSilentHostForSnapshot(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.FollowerTO = 20 * time.Millisecond
	lobby := []protocol.PlayerRef{hostRef, clientRef}
	h := startSession(t, Options{
		Self: clientRef, Cfg: cfg,
		Seeded: &protocol.GameSnapshot{Cfg: cfg, Host: hostRef, Lobby: lobby},
	})

	// nothing is running yet, so silence is expected
	select {
	case msg := <-h.out:
		t.Fatalf("lobby client sent %s", msg.Type)
	case <-time.After(60 * time.Millisecond):
	}

	h.in <- confirmed(1, protocol.MsgNewGame, protocol.Action{Player: hostRef, Roster: lobby})
	if q := h.expect(t, protocol.MsgStateQuery); q.To != hostRef.ID {
		t.Fatalf("query addressed to %q", q.To)
	}
}
