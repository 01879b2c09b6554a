package netx

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"cardmesh/internal/protocol"
)

func sample(kind protocol.MsgType) protocol.NetMessage {
	return protocol.NetMessage{
		Game:    "g-1",
		From:    "node-a",
		Type:    kind,
		Lamport: 7,
		Seq:     3,
		Action:  &protocol.Action{ID: "x", Player: protocol.PlayerRef{ID: "node-a", Name: "ann"}, Card: "Ks"},
	}
}

func recv(t *testing.T, ch <-chan protocol.NetMessage) protocol.NetMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for message")
		return protocol.NetMessage{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := sample(protocol.MsgPlayConfirmed)
	frame, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(bufio.NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Type != in.Type || out.Seq != in.Seq || out.Action == nil || out.Action.Card != "Ks" {
		t.Fatalf("decoded %+v", out)
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	frame := []byte{0xff, 0xff, 0xff, 0xff}
	if _, err := Decode(bufio.NewReader(bytes.NewReader(frame))); err == nil {
		t.Fatalf("oversized frame accepted")
	}
}

func TestHubFansOutToOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	a, b, c := hub.Endpoint(), hub.Endpoint(), hub.Endpoint()
	for _, ep := range []*Inproc{a, b, c} {
		if err := ep.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	a.Outbox() <- sample(protocol.MsgNextTurn)
	if got := recv(t, b.Inbox()); got.Type != protocol.MsgNextTurn {
		t.Fatalf("b got %s", got.Type)
	}
	if got := recv(t, c.Inbox()); got.Type != protocol.MsgNextTurn {
		t.Fatalf("c got %s", got.Type)
	}
	select {
	case msg := <-a.Inbox():
		t.Fatalf("sender received its own message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	_ = c.Close()
	b.Outbox() <- sample(protocol.MsgGiveCard)
	if got := recv(t, a.Inbox()); got.Type != protocol.MsgGiveCard {
		t.Fatalf("a got %s", got.Type)
	}
}

func TestTCPMesh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := NewTCP("127.0.0.1:0"), NewTCP("127.0.0.1:0")
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}
	if err := b.AddPeer(a.Addr()); err != nil {
		t.Fatalf("dial: %v", err)
	}

	b.Outbox() <- sample(protocol.MsgPlayProposal)
	if got := recv(t, a.Inbox()); got.Type != protocol.MsgPlayProposal {
		t.Fatalf("a got %s", got.Type)
	}

	waitFor(t, "a to register b", func() bool { return len(a.Peers()) == 1 })
	a.Outbox() <- sample(protocol.MsgPlayConfirmed)
	if got := recv(t, b.Inbox()); got.Type != protocol.MsgPlayConfirmed {
		t.Fatalf("b got %s", got.Type)
	}
}

func TestWebsocketMesh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := NewWS("127.0.0.1:0"), NewWS("127.0.0.1:0")
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}
	if err := b.AddPeer(a.Addr()); err != nil {
		t.Fatalf("dial: %v", err)
	}

	b.Outbox() <- sample(protocol.MsgSwapProposal)
	if got := recv(t, a.Inbox()); got.Type != protocol.MsgSwapProposal {
		t.Fatalf("a got %s", got.Type)
	}

	waitFor(t, "a to register b", func() bool { return len(a.Peers()) == 1 })
	a.Outbox() <- sample(protocol.MsgSwapConfirmed)
	if got := recv(t, b.Inbox()); got.Type != protocol.MsgSwapConfirmed {
		t.Fatalf("b got %s", got.Type)
	}
}

// Needs a running server: CARDMESH_NATS_URL=nats://127.0.0.1:4222 go test ./internal/netx
func TestNATSMesh(t *testing.T) {
	url := os.Getenv("CARDMESH_NATS_URL")
	if url == "" {
		t.Skip("CARDMESH_NATS_URL not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prefix := "cardmesh-test-" + protocol.NewActionID()[:8]
	a := NewNATS(url, prefix, "node-a")
	b := NewNATS(url, prefix, "node-b")
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}

	b.Outbox() <- sample(protocol.MsgRemainingTime)
	if got := recv(t, a.Inbox()); got.Type != protocol.MsgRemainingTime {
		t.Fatalf("a got %s", got.Type)
	}

	direct := sample(protocol.MsgReject)
	direct.To = "node-b"
	a.Outbox() <- direct
	if got := recv(t, b.Inbox()); got.Type != protocol.MsgReject || got.To != "node-b" {
		t.Fatalf("b got %+v", got)
	}
}
