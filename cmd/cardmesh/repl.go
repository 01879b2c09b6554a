package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"cardmesh/internal/cluster"
	"cardmesh/internal/engine"
	"cardmesh/internal/protocol"
	"cardmesh/internal/session"
	"cardmesh/pkg/types"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	turnColor = color.New(color.FgCyan, color.Bold)
	winColor  = color.New(color.FgMagenta, color.Bold)
)

type app struct {
	ctx  context.Context
	node *cluster.Node

	outMu sync.Mutex
	out   io.Writer

	mu       sync.Mutex
	defaults types.GameConfig
}

func newApp(ctx context.Context, n *cluster.Node, defaults types.GameConfig) *app {
	return &app{ctx: ctx, node: n, out: os.Stdout, defaults: defaults}
}

func (a *app) setDefaults(cfg types.GameConfig) {
	a.mu.Lock()
	a.defaults = cfg
	a.mu.Unlock()
}

func (a *app) gameDefaults() types.GameConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.defaults
}

func (a *app) printf(c *color.Color, format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if c == nil {
		fmt.Fprintf(a.out, format, args...)
		return
	}
	fmt.Fprint(a.out, c.Sprintf(format, args...))
}

func (a *app) fail(err error) { a.printf(errColor, "error: %v\n", err) }

// actionErr reports a refused play or swap; the host's own moves are
// validated locally and come back as rejections.
func (a *app) actionErr(err error) {
	if session.IsRejected(err) {
		a.printf(errColor, "rejected: %v\n", err)
		return
	}
	a.fail(err)
}

func (a *app) repl(in io.Reader) {
	s := bufio.NewScanner(in)
	prompt := func() { a.printf(nil, "> ") }
	prompt()
	for s.Scan() {
		args := strings.Fields(s.Text())
		if len(args) == 0 {
			prompt()
			continue
		}
		if !a.exec(args) {
			return
		}
		prompt()
	}
}

// exec runs one command and reports whether the loop should continue.
func (a *app) exec(args []string) bool {
	n := a.node
	switch strings.ToLower(args[0]) {
	case "help":
		a.printf(nil, "%s\n", helpText)

	case "whoami":
		a.printf(nil, "node %s name=%s addr=%s\n", n.ID, n.Name, n.Addr)
		if p, ok := n.Network().(interface{ Peers() []string }); ok {
			a.printf(nil, "peers: %s\n", strings.Join(p.Peers(), ", "))
		}

	case "create":
		// create [name] [seconds]
		cfg := a.gameDefaults()
		if len(args) > 1 {
			cfg.Name = args[1]
		}
		if len(args) > 2 {
			secs, err := strconv.Atoi(args[2])
			if err != nil || secs <= 0 {
				a.printf(warnColor, "usage: create [name] [seconds]\n")
				break
			}
			cfg.GameSeconds = secs
		}
		s, err := n.CreateGame(cfg)
		if err != nil {
			a.fail(err)
			break
		}
		a.follow(s)
		a.printf(okColor, "created %s (%q, %s on the clock)\n", s.ID(), cfg.Name, engine.FormatClock(cfg.GameSeconds))

	case "games":
		list := n.Manager().ListVerbose()
		if len(list) == 0 {
			a.printf(nil, "(no games)\n")
			break
		}
		verbose := len(args) > 1 && args[1] == "-v"
		for _, g := range list {
			if !verbose {
				a.printf(nil, "- %s %s\n", g.ID, g.Name)
				continue
			}
			a.printf(nil, "- %s %q host=%s is_host=%v players=%d phase=%s seq=%d\n",
				g.ID, g.Name, g.Host.Name, g.IsHost, g.Players, g.Phase, g.Seq)
		}

	case "join":
		if len(args) < 2 {
			a.printf(warnColor, "usage: join <gameID>\n")
			break
		}
		s, err := n.JoinGame(a.ctx, protocol.GameID(args[1]))
		if err != nil {
			a.fail(err)
			break
		}
		a.follow(s)
		v := s.View()
		a.printf(okColor, "joined %s hosted by %s (%d in lobby)\n", s.ID(), v.Host.Name, len(v.Lobby))

	case "start":
		s, ok := a.game(args, "start <gameID>")
		if !ok {
			break
		}
		if err := s.Start(); err != nil {
			a.fail(err)
		}

	case "hand":
		s, ok := a.game(args, "hand <gameID>")
		if !ok {
			break
		}
		a.printHand(s.View().Hand)

	case "play":
		// play <gameID> <card|#index>
		s, ok := a.game(args, "play <gameID> <card|#index>")
		if !ok {
			break
		}
		if len(args) < 3 {
			a.printf(warnColor, "usage: play <gameID> <card|#index>\n")
			break
		}
		card, err := pickCard(s.View().Hand, args[2])
		if err != nil {
			a.fail(err)
			break
		}
		if err := s.Play(card); err != nil {
			a.actionErr(err)
		}

	case "swap":
		s, ok := a.game(args, "swap <gameID> <index>")
		if !ok {
			break
		}
		if len(args) < 3 {
			a.printf(warnColor, "usage: swap <gameID> <index>\n")
			break
		}
		i, err := strconv.Atoi(args[2])
		if err != nil {
			a.fail(err)
			break
		}
		if err := s.Swap(i); err != nil {
			a.actionErr(err)
		}

	case "state":
		s, ok := a.game(args, "state <gameID>")
		if !ok {
			break
		}
		a.printState(s.View())

	case "end":
		s, ok := a.game(args, "end <gameID>")
		if !ok {
			break
		}
		if err := n.EndGame(s.ID()); err != nil {
			a.fail(err)
			break
		}
		a.printf(okColor, "ended %s\n", s.ID())

	case "addpeer":
		if len(args) < 2 {
			a.printf(warnColor, "usage: addpeer <addr>\n")
			break
		}
		if err := n.AddPeer(args[1]); err != nil {
			a.fail(err)
		} else {
			a.printf(okColor, "peer added\n")
		}

	case "quit", "exit":
		a.printf(nil, "bye\n")
		return false

	default:
		a.printf(warnColor, "unknown command; type 'help'\n")
	}
	return true
}

// game resolves args[1] (a full id or unique prefix) to a local session.
func (a *app) game(args []string, usage string) (*session.Session, bool) {
	if len(args) < 2 {
		a.printf(warnColor, "usage: %s\n", usage)
		return nil, false
	}
	s, err := a.node.Manager().Resolve(args[1])
	if err != nil {
		if errors.Is(err, cluster.ErrUnknownGame) {
			a.printf(warnColor, "unknown game locally; try 'join %s'\n", args[1])
		} else {
			a.fail(err)
		}
		return nil, false
	}
	return s, true
}

func pickCard(hand []engine.Card, arg string) (engine.Card, error) {
	if rest, ok := strings.CutPrefix(arg, "#"); ok {
		i, err := strconv.Atoi(rest)
		if err != nil || i < 0 || i >= len(hand) {
			return engine.Card{}, fmt.Errorf("no card at %s (hand has %d)", arg, len(hand))
		}
		return hand[i], nil
	}
	return engine.ParseCard(arg)
}

// follow prints game events worth a player's attention. Listeners run on the
// session goroutine, so they only print.
func (a *app) follow(s *session.Session) {
	self := string(a.node.ID)
	s.Subscribe(func(ev engine.Event) {
		switch p := ev.Payload.(type) {
		case engine.CardPlayed:
			a.printf(nil, "\n[%s] %s played %s\n", s.ID(), p.Player, p.Card)
		case engine.RoundWinner:
			a.printf(warnColor, "\n[%s] %s takes the trick (%d cards)\n", s.ID(), p.Player, len(p.Cards))
		case engine.TurnChanged:
			if p.Player.ID == self {
				a.printf(turnColor, "\n[%s] your turn\n", s.ID())
			}
		case engine.GameWinner:
			a.printf(winColor, "\n[%s] time is up: %s wins with %d cards\n", s.ID(), p.Player, p.Won)
		case engine.NoPlayableSeats:
			a.printf(warnColor, "\n[%s] every hand is empty; waiting for the clock\n", s.ID())
		}
	})
}

func (a *app) printHand(hand []engine.Card) {
	if len(hand) == 0 {
		a.printf(nil, "(empty hand)\n")
		return
	}
	parts := make([]string, len(hand))
	for i, c := range hand {
		parts[i] = fmt.Sprintf("#%d %s", i, c.Code())
	}
	a.printf(nil, "%s\n", strings.Join(parts, "  "))
}

func (a *app) printState(v session.View) {
	sum := v.Summary
	a.printf(nil, "game=%s %q host=%s seq=%d phase=%s clock=%s\n",
		v.Game, v.Name, v.Host.Name, v.Seq, sum.Phase, v.Clock)
	if !v.Started {
		names := make([]string, len(v.Lobby))
		for i, p := range v.Lobby {
			names[i] = p.Name
		}
		a.printf(nil, "lobby: %s\n", strings.Join(names, ", "))
		return
	}
	for _, sv := range sum.Seats {
		mark := ""
		if sv.Player.ID == sum.Turn.ID && sum.Phase == engine.PhasePlaying {
			mark = turnColor.Sprint(" <- turn")
		}
		a.printf(nil, " %d. %s hand=%d won=%d%s\n", sv.Seat, sv.Player, sv.HandSize, sv.Won, mark)
	}
	if len(sum.Center) > 0 {
		cards := make([]string, len(sum.Center))
		for i, p := range sum.Center {
			cards[i] = p.Card.String()
		}
		a.printf(nil, "center: %s\n", strings.Join(cards, " "))
	}
	if sum.Winner != nil {
		a.printf(winColor, "winner: %s\n", *sum.Winner)
	}
	if v.LastReject != "" {
		a.printf(errColor, "last rejection: %s\n", v.LastReject)
	}
}

const helpText = `commands:
  whoami
  create [name] [seconds]
  games [-v]
  join <gameID>
  start <gameID>
  hand <gameID>
  play <gameID> <card|#index>   card codes look like As, Td, 7c
  swap <gameID> <index>
  state <gameID>
  end <gameID>
  addpeer <addr>
  quit`
