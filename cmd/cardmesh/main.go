package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cardmesh/internal/cluster"
	"cardmesh/internal/config"
	"cardmesh/internal/log"
	"cardmesh/internal/metrics"
	"cardmesh/internal/netx"
	"cardmesh/internal/protocol"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "cardmesh",
	Short:        "peer-to-peer trick-taking card game",
	Long:         "cardmesh runs one peer of a card game mesh. The peer that creates a game hosts it.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	f.String("name", "", "display name (defaults to a short node id)")
	f.String("listen", ":7777", "listen address for tcp and ws transports")
	f.StringSlice("peer", nil, "peer address to dial, repeatable")
	f.String("transport", "tcp", "transport: "+strings.Join(config.Transports, ", "))
	f.String("nats-url", "nats://127.0.0.1:4222", "NATS server url for the nats transport")
	f.String("log-level", "info", "debug, info, warn or error")
	f.Int("metrics-port", 0, "serve runtime charts on this port when > 0")
}

// bindFlags maps flags onto config keys so flags win over file and env.
func bindFlags(cmd *cobra.Command, l *config.Loader) error {
	keys := map[string]string{
		"name":         "name",
		"listen":       "listen",
		"peer":         "peers",
		"transport":    "transport",
		"nats-url":     "nats.url",
		"log-level":    "log.level",
		"metrics-port": "metricPort",
	}
	v := l.Viper()
	for flag, key := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(configFile)
	if err := bindFlags(cmd, loader); err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	id := protocol.NewNodeID()
	name := cfg.Name
	if name == "" {
		name = id.Short()
	}
	log.InitLog(name, cfg.Log.Level)

	if cfg.MetricPort > 0 {
		go func() {
			log.Info("metrics at http://localhost:%d/debug/statsviz/", cfg.MetricPort)
			if err := metrics.Serve(fmt.Sprintf("0.0.0.0:%d", cfg.MetricPort)); err != nil {
				log.Error("metrics server: %v", err)
			}
		}()
	}

	nw, err := newNetwork(cfg, id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := cluster.NewNode(id, name, cfg.Listen, nw)
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start %s transport: %w", cfg.Transport, err)
	}
	defer nw.Close()
	for _, p := range cfg.Peers {
		if err := n.AddPeer(p); err != nil {
			log.Warn("dial %s: %v", p, err)
		}
	}

	a := newApp(ctx, n, cfg.Game)
	loader.Watch(func(c config.NodeConfig) { a.setDefaults(c.Game) })

	fmt.Printf("node %s (%s) on %s via %s\n", n.Name, n.ID.Short(), cfg.Listen, cfg.Transport)
	fmt.Println("type 'help' for commands")
	a.repl(os.Stdin)
	return nil
}

func newNetwork(cfg config.NodeConfig, id protocol.NodeID) (netx.Network, error) {
	switch cfg.Transport {
	case "inproc":
		return netx.NewInproc(), nil
	case "tcp":
		return netx.NewTCP(cfg.Listen), nil
	case "ws":
		return netx.NewWS(cfg.Listen), nil
	case "nats":
		return netx.NewNATS(cfg.Nats.URL, cfg.Nats.Prefix, id), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
