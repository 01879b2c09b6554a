package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"cardmesh/internal/log"
	"cardmesh/pkg/types"
)

const EnvPrefix = "CARDMESH"

var Transports = []string{"inproc", "tcp", "ws", "nats"}

type NodeConfig struct {
	Name       string           `mapstructure:"name"`
	Listen     string           `mapstructure:"listen"`
	Peers      []string         `mapstructure:"peers"`
	Transport  string           `mapstructure:"transport"`
	Nats       NatsConf         `mapstructure:"nats"`
	Log        LogConf          `mapstructure:"log"`
	MetricPort int              `mapstructure:"metricPort"`
	Game       types.GameConfig `mapstructure:"game"`
}

type NatsConf struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type LogConf struct {
	Level string `mapstructure:"level"`
}

// Loader reads a NodeConfig from an optional file, CARDMESH_* environment
// variables and any flags bound through Viper().
type Loader struct {
	file string
	v    *viper.Viper

	mu       sync.Mutex
	onChange func(NodeConfig)
}

func NewLoader(file string) *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
	}
	return &Loader{file: file, v: v}
}

func setDefaults(v *viper.Viper) {
	g := types.DefaultGameConfig()
	v.SetDefault("name", "")
	v.SetDefault("listen", ":7777")
	v.SetDefault("peers", []string{})
	v.SetDefault("transport", "tcp")
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.prefix", "cardmesh")
	v.SetDefault("log.level", "info")
	v.SetDefault("metricPort", 0)
	v.SetDefault("game.name", g.Name)
	v.SetDefault("game.cardsPerPlayer", g.CardsPerPlayer)
	v.SetDefault("game.minPlayers", g.MinPlayers)
	v.SetDefault("game.gameSeconds", g.GameSeconds)
	v.SetDefault("game.tickInterval", g.TickInterval)
	v.SetDefault("game.followerTimeout", g.FollowerTO)
}

// Viper exposes the underlying instance so the CLI can bind flags.
func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads the file (when one was given) and decodes everything.
func (l *Loader) Load() (NodeConfig, error) {
	if l.file != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return NodeConfig{}, fmt.Errorf("read config %s: %w", l.file, err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (NodeConfig, error) {
	var cfg NodeConfig
	if err := l.v.Unmarshal(&cfg); err != nil {
		return NodeConfig{}, err
	}
	cfg.Game = cfg.Game.Normalize()
	cfg.Transport = strings.ToLower(cfg.Transport)
	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func (c NodeConfig) Validate() error {
	for _, t := range Transports {
		if c.Transport == t {
			return nil
		}
	}
	return fmt.Errorf("unknown transport %q (want one of %s)", c.Transport, strings.Join(Transports, ", "))
}

// Watch calls fn with the re-decoded config whenever the file changes. The
// log level is applied before fn runs. Without a file it does nothing.
func (l *Loader) Watch(fn func(NodeConfig)) {
	if l.file == "" {
		return
	}
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
	l.v.OnConfigChange(l.reload)
	l.v.WatchConfig()
}

func (l *Loader) reload(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := l.decode()
	if err != nil {
		log.Warn("config %s changed but is invalid: %v", e.Name, err)
		return
	}
	log.SetLevel(cfg.Log.Level)
	log.Info("config %s reloaded, log level %s", e.Name, cfg.Log.Level)

	l.mu.Lock()
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn(cfg)
	}
}
